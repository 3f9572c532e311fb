package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/UkralStul/blog-service/internal/domain"

	"github.com/go-chi/chi/v5"
	log "github.com/sirupsen/logrus"
)

func (api *API) listConversations(w http.ResponseWriter, r *http.Request) {
	user := api.requireUser(w, r)
	if user == nil {
		return
	}
	ctx := r.Context()
	convs, err := api.store.GetConversations(ctx, user.ID)
	if err != nil {
		api.writeError(w, err)
		return
	}
	api.ok(w, map[string]any{"conversations": api.conversationViews(ctx, convs)})
}

func (api *API) messagesCount(w http.ResponseWriter, r *http.Request) {
	user := api.requireUser(w, r)
	if user == nil {
		return
	}
	count, err := api.store.CountUnreadMessages(r.Context(), user.ID)
	if err != nil {
		api.writeError(w, err)
		return
	}
	api.ok(w, map[string]any{"count": count})
}

// conversation отдает историю переписки с собеседником. Открытие
// переписки помечает входящие от него сообщения прочитанными.
func (api *API) conversation(w http.ResponseWriter, r *http.Request) {
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

	if err := api.store.MarkConversationRead(ctx, user.ID, other.ID); err != nil {
		log.Warnf("[api] failed to mark conversation read for user %s: %v", user.ID, err)
	}
	msgs, err := api.store.GetConversation(ctx, user.ID, other.ID, pagination(r, 50))
	if err != nil {
		api.writeError(w, err)
		return
	}

	views := make([]*messageView, 0, len(msgs))
	for _, m := range msgs {
		views = append(views, api.messageView(ctx, m))
	}
	api.ok(w, map[string]any{
		"with":     api.loadUserView(ctx, other.ID),
		"messages": views,
	})
}

func (api *API) sendMessage(w http.ResponseWriter, r *http.Request) {
	user := api.requireUser(w, r)
	if user == nil {
		return
	}
	var req struct {
		Content string `json:"content"`
	}
	if err := decodeBody(r, &req); err != nil {
		api.writeError(w, err)
		return
	}
	req.Content = strings.TrimSpace(req.Content)
	if req.Content == "" {
		api.writeError(w, fmt.Errorf("%w: message content cannot be empty", domain.ErrValidation))
		return
	}

	ctx := r.Context()
	other, err := api.store.GetUserByUsername(ctx, chi.URLParam(r, "username"))
	if err != nil {
		api.writeError(w, err)
		return
	}
	if other.ID == user.ID {
		api.writeError(w, fmt.Errorf("%w: cannot message yourself", domain.ErrValidation))
		return
	}

	msg, err := api.store.CreateMessage(ctx, &domain.Message{
		SenderID:    user.ID,
		RecipientID: other.ID,
		Content:     req.Content,
	})
	if err != nil {
		api.writeError(w, err)
		return
	}
	api.notify.MessageSent(ctx, msg)

	api.ok(w, map[string]any{"message": api.messageView(ctx, msg)})
}
