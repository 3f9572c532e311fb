package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (api *API) listComments(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	post, err := api.store.GetPostByID(ctx, chi.URLParam(r, "postID"))
	if err != nil {
		api.writeError(w, err)
		return
	}
	tree, err := api.comments.TreeForPost(ctx, post.ID)
	if err != nil {
		api.writeError(w, err)
		return
	}
	api.ok(w, map[string]any{"comments": api.threadViews(ctx, tree)})
}

func (api *API) addComment(w http.ResponseWriter, r *http.Request) {
	user := api.requireUser(w, r)
	if user == nil {
		return
	}
	var req struct {
		Content  string  `json:"content"`
		ParentID *string `json:"parentId"`
	}
	if err := decodeBody(r, &req); err != nil {
		api.writeError(w, err)
		return
	}

	ctx := r.Context()
	post, err := api.store.GetPostByID(ctx, chi.URLParam(r, "postID"))
	if err != nil {
		api.writeError(w, err)
		return
	}

	comment, err := api.comments.Create(ctx, post, req.ParentID, user.ID, req.Content)
	if err != nil {
		api.writeError(w, err)
		return
	}
	api.notify.CommentCreated(ctx, post, comment)

	api.ok(w, map[string]any{"comment": api.commentView(ctx, comment)})
}

func (api *API) deleteComment(w http.ResponseWriter, r *http.Request) {
	user := api.requireUser(w, r)
	if user == nil {
		return
	}
	removed, err := api.comments.Delete(r.Context(), user, chi.URLParam(r, "commentID"))
	if err != nil {
		api.writeError(w, err)
		return
	}
	api.ok(w, map[string]any{"removed": removed})
}
