package notify

import (
	"sync"

	"github.com/UkralStul/blog-service/internal/domain"
	"github.com/google/uuid"
)

// Observer хранит каналы подписчиков на уведомления пользователя.
// Один пользователь может держать несколько подписок (несколько вкладок).
type Observer struct {
	mu sync.RWMutex
	//          map[userID] map[subscriberID] channel
	subs map[string]map[string]chan *domain.Notification
}

// NewObserver - конструктор для наблюдателя.
func NewObserver() *Observer {
	return &Observer{
		subs: make(map[string]map[string]chan *domain.Notification),
	}
}

// Subscribe регистрирует подписку на уведомления пользователя и возвращает
// ее идентификатор вместе с каналом доставки.
func (o *Observer) Subscribe(userID string) (string, <-chan *domain.Notification) {
	ch := make(chan *domain.Notification, 16)
	subID := uuid.NewString()

	o.mu.Lock()
	if o.subs[userID] == nil {
		o.subs[userID] = make(map[string]chan *domain.Notification)
	}
	o.subs[userID][subID] = ch
	o.mu.Unlock()

	return subID, ch
}

// Unsubscribe снимает подписку; канал после этого больше не получает событий.
func (o *Observer) Unsubscribe(userID, subID string) {
	o.mu.Lock()
	if userSubs, ok := o.subs[userID]; ok {
		delete(userSubs, subID)
		if len(userSubs) == 0 {
			delete(o.subs, userID)
		}
	}
	o.mu.Unlock()
}

// Publish рассылает уведомление всем подпискам получателя.
// Отправка неблокирующая: если клиент не успевает читать, событие пропускается.
func (o *Observer) Publish(n *domain.Notification) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	for _, ch := range o.subs[n.UserID] {
		select {
		case ch <- n:
		default:
		}
	}
}
