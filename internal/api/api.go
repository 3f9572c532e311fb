// Package api реализует HTTP-слой: JSON-эндпоинты вида {ok: bool, ...}
// и websocket-поток уведомлений.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/UkralStul/blog-service/internal/auth"
	"github.com/UkralStul/blog-service/internal/comments"
	"github.com/UkralStul/blog-service/internal/dataloader"
	"github.com/UkralStul/blog-service/internal/domain"
	"github.com/UkralStul/blog-service/internal/notify"
	"github.com/UkralStul/blog-service/internal/storage"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

// API объединяет обработчики и их зависимости.
type API struct {
	r        chi.Router
	store    storage.Storage
	auth     *auth.Service
	comments *comments.Service
	notify   *notify.Dispatcher
	observer *notify.Observer
	upgrader websocket.Upgrader
}

// New создает API и регистрирует маршруты.
func New(store storage.Storage, authSvc *auth.Service, commentsSvc *comments.Service, dispatcher *notify.Dispatcher, observer *notify.Observer) *API {
	api := &API{
		r:        chi.NewRouter(),
		store:    store,
		auth:     authSvc,
		comments: commentsSvc,
		notify:   dispatcher,
		observer: observer,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	api.endpoints()
	return api
}

// Router возвращает корневой обработчик.
func (api *API) Router() http.Handler {
	return api.r
}

func (api *API) endpoints() {
	api.r.Use(middleware.Logger)
	api.r.Use(middleware.RequestID)
	api.r.Use(middleware.Recoverer)
	api.r.Use(api.auth.Middleware)
	api.r.Use(func(next http.Handler) http.Handler {
		return dataloader.Middleware(api.store, next)
	})

	api.r.Route("/api", func(r chi.Router) {
		r.Post("/register", api.register)
		r.Post("/login", api.login)
		r.Post("/logout", api.logout)
		r.Get("/me", api.me)
		r.Post("/verification-code", api.requestCode)

		r.Get("/posts", api.listPosts)
		r.Post("/posts", api.createPost)
		r.Get("/posts/search", api.searchPosts)
		r.Get("/tags/autocomplete", api.tagsAutocomplete)
		r.Route("/posts/{postID}", func(r chi.Router) {
			r.Get("/", api.getPost)
			r.Put("/", api.updatePost)
			r.Delete("/", api.deletePost)
			r.Get("/comments", api.listComments)
			r.Post("/comments", api.addComment)
			r.Post("/like", api.toggleLike)
		})
		r.Delete("/comments/{commentID}", api.deleteComment)

		r.Post("/users/{username}/follow", api.toggleFollow)

		r.Get("/notifications", api.listNotifications)
		r.Get("/notifications/count", api.notificationsCount)
		r.Get("/notifications/stream", api.notificationsStream)
		r.Post("/notifications/read", api.markAllNotificationsRead)
		r.Post("/notifications/{notificationID}/read", api.markNotificationRead)

		r.Get("/messages", api.listConversations)
		r.Get("/messages/count", api.messagesCount)
		r.Get("/messages/{username}", api.conversation)
		r.Post("/messages/{username}", api.sendMessage)
	})
}

// === JSON helpers ===

func (api *API) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Errorf("[api] failed to encode response: %v", err)
	}
}

// ok отвечает 200 с {"ok": true} и дополнительными полями.
func (api *API) ok(w http.ResponseWriter, payload map[string]any) {
	if payload == nil {
		payload = make(map[string]any, 1)
	}
	payload["ok"] = true
	api.writeJSON(w, http.StatusOK, payload)
}

func (api *API) fail(w http.ResponseWriter, status int, msg string) {
	api.writeJSON(w, status, map[string]any{"ok": false, "error": msg})
}

// writeError отображает доменные ошибки на HTTP-статусы.
// Все прочие ошибки фатальны для запроса и не детализируются клиенту.
func (api *API) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		api.fail(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrUnauthorized):
		api.fail(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, domain.ErrForbidden):
		api.fail(w, http.StatusForbidden, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		api.fail(w, http.StatusNotFound, err.Error())
	default:
		log.Errorf("[api] internal error: %v", err)
		api.fail(w, http.StatusInternalServerError, "internal server error")
	}
}

// requireUser возвращает текущего пользователя или пишет 401.
func (api *API) requireUser(w http.ResponseWriter, r *http.Request) *domain.User {
	user := auth.UserFrom(r.Context())
	if user == nil {
		api.fail(w, http.StatusUnauthorized, "authentication required")
	}
	return user
}

// authUser возвращает текущего пользователя или nil для анонима.
func authUser(r *http.Request) *domain.User {
	return auth.UserFrom(r.Context())
}

func decodeBody(r *http.Request, v any) error {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: invalid request body", domain.ErrValidation)
	}
	return nil
}

// pagination разбирает limit/offset из query с верхней границей.
func pagination(r *http.Request, defaultLimit int) storage.PaginationArgs {
	args := storage.PaginationArgs{Limit: defaultLimit}
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 && v <= 100 {
		args.Limit = v
	}
	if v, err := strconv.Atoi(r.URL.Query().Get("offset")); err == nil && v > 0 {
		args.Offset = v
	}
	return args
}
