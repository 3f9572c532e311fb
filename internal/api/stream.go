package api

import (
	"net/http"
	"time"

	"github.com/UkralStul/blog-service/internal/domain"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

// keepAlivePingInterval - период служебных ping-фреймов, чтобы
// промежуточные прокси не закрывали простаивающее соединение.
const keepAlivePingInterval = 10 * time.Second

// notificationsStream держит websocket-соединение и пересылает клиенту
// уведомления по мере их появления.
func (api *API) notificationsStream(w http.ResponseWriter, r *http.Request) {
	user := api.requireUser(w, r)
	if user == nil {
		return
	}

	conn, err := api.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Errorf("[api] websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	subID, ch := api.observer.Subscribe(user.ID)
	defer api.observer.Unsubscribe(user.ID, subID)

	// Читающая горутина нужна только для обнаружения закрытия со стороны клиента
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(keepAlivePingInterval)
	defer ticker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case n := <-ch:
			views := api.notificationViews(ctx, []*domain.Notification{n})
			if err := conn.WriteJSON(views[0]); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
