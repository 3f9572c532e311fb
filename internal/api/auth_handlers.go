package api

import (
	"net/http"

	"github.com/UkralStul/blog-service/internal/auth"
)

func (api *API) requestCode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := decodeBody(r, &req); err != nil {
		api.writeError(w, err)
		return
	}
	if _, err := api.auth.RequestCode(r.Context(), req.Email); err != nil {
		api.writeError(w, err)
		return
	}
	api.ok(w, nil)
}

func (api *API) register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
		Code     string `json:"code"`
	}
	if err := decodeBody(r, &req); err != nil {
		api.writeError(w, err)
		return
	}

	user, session, err := api.auth.Register(r.Context(), req.Username, req.Email, req.Password, req.Code)
	if err != nil {
		api.writeError(w, err)
		return
	}

	http.SetCookie(w, auth.SessionCookie(session.Token))
	api.ok(w, map[string]any{"user": &userView{ID: user.ID, Username: user.Username}})
}

func (api *API) login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := decodeBody(r, &req); err != nil {
		api.writeError(w, err)
		return
	}

	user, session, err := api.auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		api.writeError(w, err)
		return
	}

	http.SetCookie(w, auth.SessionCookie(session.Token))
	api.ok(w, map[string]any{"user": &userView{ID: user.ID, Username: user.Username}})
}

func (api *API) logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(auth.CookieName); err == nil {
		api.auth.Logout(r.Context(), cookie.Value)
	}
	http.SetCookie(w, auth.ExpiredSessionCookie())
	api.ok(w, nil)
}

func (api *API) me(w http.ResponseWriter, r *http.Request) {
	user := api.requireUser(w, r)
	if user == nil {
		return
	}
	api.ok(w, map[string]any{"user": &userView{ID: user.ID, Username: user.Username}})
}
