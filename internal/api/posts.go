package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/UkralStul/blog-service/internal/domain"
	"github.com/UkralStul/blog-service/internal/markdown"

	"github.com/go-chi/chi/v5"
	log "github.com/sirupsen/logrus"
)

type postRequest struct {
	Title   string   `json:"title"`
	Content string   `json:"content"`
	Tags    []string `json:"tags"`
}

func (r *postRequest) validate() error {
	r.Title = strings.TrimSpace(r.Title)
	r.Content = strings.TrimSpace(r.Content)
	if r.Title == "" {
		return fmt.Errorf("%w: title is required", domain.ErrValidation)
	}
	if r.Content == "" {
		return fmt.Errorf("%w: content is required", domain.ErrValidation)
	}
	return nil
}

func (api *API) createPost(w http.ResponseWriter, r *http.Request) {
	user := api.requireUser(w, r)
	if user == nil {
		return
	}
	var req postRequest
	if err := decodeBody(r, &req); err != nil {
		api.writeError(w, err)
		return
	}
	if err := req.validate(); err != nil {
		api.writeError(w, err)
		return
	}

	post, err := api.store.CreatePost(r.Context(), &domain.Post{
		Title:       req.Title,
		Content:     req.Content,
		ContentHTML: markdown.Render(req.Content),
		AuthorID:    user.ID,
	}, req.Tags)
	if err != nil {
		api.writeError(w, err)
		return
	}
	api.ok(w, map[string]any{"post": api.postView(r.Context(), post, true)})
}

func (api *API) updatePost(w http.ResponseWriter, r *http.Request) {
	user := api.requireUser(w, r)
	if user == nil {
		return
	}
	post, err := api.store.GetPostByID(r.Context(), chi.URLParam(r, "postID"))
	if err != nil {
		api.writeError(w, err)
		return
	}
	// Редактировать можно только свою статью
	if post.AuthorID != user.ID {
		api.writeError(w, fmt.Errorf("%w: only the author can edit a post", domain.ErrForbidden))
		return
	}

	var req postRequest
	if err := decodeBody(r, &req); err != nil {
		api.writeError(w, err)
		return
	}
	if err := req.validate(); err != nil {
		api.writeError(w, err)
		return
	}

	updated, err := api.store.UpdatePost(r.Context(), &domain.Post{
		ID:          post.ID,
		Title:       req.Title,
		Content:     req.Content,
		ContentHTML: markdown.Render(req.Content),
	}, req.Tags)
	if err != nil {
		api.writeError(w, err)
		return
	}
	api.ok(w, map[string]any{"post": api.postView(r.Context(), updated, true)})
}

func (api *API) deletePost(w http.ResponseWriter, r *http.Request) {
	user := api.requireUser(w, r)
	if user == nil {
		return
	}
	post, err := api.store.GetPostByID(r.Context(), chi.URLParam(r, "postID"))
	if err != nil {
		api.writeError(w, err)
		return
	}
	if post.AuthorID != user.ID {
		api.writeError(w, fmt.Errorf("%w: only the author can delete a post", domain.ErrForbidden))
		return
	}
	if err := api.store.DeletePost(r.Context(), post.ID); err != nil {
		api.writeError(w, err)
		return
	}
	api.ok(w, nil)
}

func (api *API) listPosts(w http.ResponseWriter, r *http.Request) {
	posts, err := api.store.GetPosts(r.Context(), pagination(r, 10))
	if err != nil {
		api.writeError(w, err)
		return
	}
	api.ok(w, map[string]any{"posts": api.postViews(r.Context(), posts)})
}

func (api *API) getPost(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	post, err := api.store.GetPostByID(ctx, chi.URLParam(r, "postID"))
	if err != nil {
		api.writeError(w, err)
		return
	}

	// Счетчик просмотров - best effort, ошибка не мешает отдаче страницы
	if err := api.store.IncrementPostViews(ctx, post.ID); err != nil {
		log.Warnf("[api] failed to increment views for post %s: %v", post.ID, err)
	} else {
		post.Views++
	}

	tree, err := api.comments.TreeForPost(ctx, post.ID)
	if err != nil {
		api.writeError(w, err)
		return
	}
	likes, err := api.store.CountLikes(ctx, post.ID)
	if err != nil {
		api.writeError(w, err)
		return
	}

	payload := map[string]any{
		"post":       api.postView(ctx, post, false),
		"comments":   api.threadViews(ctx, tree),
		"likesCount": likes,
	}
	if user := authUser(r); user != nil {
		liked, err := api.store.HasLiked(ctx, post.ID, user.ID)
		if err == nil {
			payload["liked"] = liked
		}
	}
	api.ok(w, payload)
}

func (api *API) searchPosts(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	tag := r.URL.Query().Get("tag")
	posts, err := api.store.SearchPosts(r.Context(), query, tag, pagination(r, 10))
	if err != nil {
		api.writeError(w, err)
		return
	}
	api.ok(w, map[string]any{"posts": api.postViews(r.Context(), posts)})
}

func (api *API) tagsAutocomplete(w http.ResponseWriter, r *http.Request) {
	tags, err := api.store.GetTagsByPrefix(r.Context(), r.URL.Query().Get("q"), 10)
	if err != nil {
		api.writeError(w, err)
		return
	}
	names := make([]string, 0, len(tags))
	for _, t := range tags {
		names = append(names, t.Name)
	}
	api.ok(w, map[string]any{"tags": names})
}

func (api *API) toggleLike(w http.ResponseWriter, r *http.Request) {
	user := api.requireUser(w, r)
	if user == nil {
		return
	}
	ctx := r.Context()
	post, err := api.store.GetPostByID(ctx, chi.URLParam(r, "postID"))
	if err != nil {
		api.writeError(w, err)
		return
	}

	liked, count, err := api.store.ToggleLike(ctx, post.ID, user.ID)
	if err != nil {
		api.writeError(w, err)
		return
	}
	if liked {
		api.notify.LikeToggledOn(ctx, post, user.ID)
	} else {
		api.notify.LikeToggledOff(ctx, post, user.ID)
	}
	api.ok(w, map[string]any{"liked": liked, "likesCount": count})
}
