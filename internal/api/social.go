package api

import (
	"fmt"
	"net/http"

	"github.com/UkralStul/blog-service/internal/domain"

	"github.com/go-chi/chi/v5"
	log "github.com/sirupsen/logrus"
)

func (api *API) toggleFollow(w http.ResponseWriter, r *http.Request) {
	user := api.requireUser(w, r)
	if user == nil {
		return
	}
	ctx := r.Context()
	other, err := api.store.GetUserByUsername(ctx, chi.URLParam(r, "username"))
	if err != nil {
		api.writeError(w, err)
		return
	}
	if other.ID == user.ID {
		api.writeError(w, fmt.Errorf("%w: cannot follow yourself", domain.ErrValidation))
		return
	}

	following, followers, err := api.store.ToggleFollow(ctx, user.ID, other.ID)
	if err != nil {
		api.writeError(w, err)
		return
	}
	if following {
		api.notify.FollowCreated(ctx, other.ID, user.ID)
	}
	api.ok(w, map[string]any{"following": following, "followersCount": followers})
}

// listNotifications отдает ленту уведомлений. Просмотр ленты помечает
// все уведомления прочитанными, в выдаче флаги отражают состояние
// до просмотра.
func (api *API) listNotifications(w http.ResponseWriter, r *http.Request) {
	user := api.requireUser(w, r)
	if user == nil {
		return
	}
	ctx := r.Context()
	ns, err := api.store.GetNotifications(ctx, user.ID, pagination(r, 20))
	if err != nil {
		api.writeError(w, err)
		return
	}
	views := api.notificationViews(ctx, ns)
	if err := api.store.MarkAllNotificationsRead(ctx, user.ID); err != nil {
		log.Warnf("[api] failed to mark notifications read for user %s: %v", user.ID, err)
	}
	api.ok(w, map[string]any{"notifications": views})
}

func (api *API) notificationsCount(w http.ResponseWriter, r *http.Request) {
	user := api.requireUser(w, r)
	if user == nil {
		return
	}
	count, err := api.store.CountUnreadNotifications(r.Context(), user.ID)
	if err != nil {
		api.writeError(w, err)
		return
	}
	api.ok(w, map[string]any{"count": count})
}

func (api *API) markNotificationRead(w http.ResponseWriter, r *http.Request) {
	user := api.requireUser(w, r)
	if user == nil {
		return
	}
	if err := api.store.MarkNotificationRead(r.Context(), chi.URLParam(r, "notificationID"), user.ID); err != nil {
		api.writeError(w, err)
		return
	}
	api.ok(w, nil)
}

func (api *API) markAllNotificationsRead(w http.ResponseWriter, r *http.Request) {
	user := api.requireUser(w, r)
	if user == nil {
		return
	}
	if err := api.store.MarkAllNotificationsRead(r.Context(), user.ID); err != nil {
		api.writeError(w, err)
		return
	}
	api.ok(w, nil)
}
