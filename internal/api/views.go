package api

import (
	"context"
	"time"

	"github.com/UkralStul/blog-service/internal/comments"
	"github.com/UkralStul/blog-service/internal/dataloader"
	"github.com/UkralStul/blog-service/internal/domain"
	"github.com/UkralStul/blog-service/internal/storage"
)

// userView - публичное представление пользователя.
type userView struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// loadUserView резолвит автора через request-scoped dataloader,
// чтобы сериализация списков не ходила в хранилище на каждую запись.
func (api *API) loadUserView(ctx context.Context, id string) *userView {
	if id == "" {
		return nil
	}
	var user *domain.User
	if loaders := dataloader.For(ctx); loaders != nil {
		user, _ = loaders.User(ctx, id)
	} else {
		user, _ = api.store.GetUserByID(ctx, id)
	}
	if user == nil {
		// Пользователь мог быть удален, показываем только id
		return &userView{ID: id}
	}
	return &userView{ID: user.ID, Username: user.Username}
}

type postView struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Content     string    `json:"content,omitempty"`
	ContentHTML string    `json:"contentHtml"`
	Author      *userView `json:"author"`
	Tags        []string  `json:"tags"`
	Views       int64     `json:"views"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func (api *API) postView(ctx context.Context, p *domain.Post, withSource bool) *postView {
	tags := make([]string, 0, len(p.Tags))
	for _, t := range p.Tags {
		tags = append(tags, t.Name)
	}
	v := &postView{
		ID:          p.ID,
		Title:       p.Title,
		ContentHTML: p.ContentHTML,
		Author:      api.loadUserView(ctx, p.AuthorID),
		Tags:        tags,
		Views:       p.Views,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
	if withSource {
		v.Content = p.Content
	}
	return v
}

func (api *API) postViews(ctx context.Context, posts []*domain.Post) []*postView {
	result := make([]*postView, 0, len(posts))
	for _, p := range posts {
		result = append(result, api.postView(ctx, p, false))
	}
	return result
}

type commentView struct {
	ID          string    `json:"id"`
	PostID      string    `json:"postId"`
	ParentID    *string   `json:"parentId,omitempty"`
	Level       int       `json:"level"`
	Author      *userView `json:"author"`
	ContentHTML string    `json:"contentHtml"`
	CreatedAt   time.Time `json:"createdAt"`
}

func (api *API) commentView(ctx context.Context, c *domain.Comment) *commentView {
	return &commentView{
		ID:          c.ID,
		PostID:      c.PostID,
		ParentID:    c.ParentID,
		Level:       c.Level,
		Author:      api.loadUserView(ctx, c.AuthorID),
		ContentHTML: c.ContentHTML,
		CreatedAt:   c.CreatedAt,
	}
}

type threadView struct {
	Comment *commentView   `json:"comment"`
	Replies []*commentView `json:"replies"`
}

func (api *API) threadViews(ctx context.Context, threads []comments.Thread) []*threadView {
	result := make([]*threadView, 0, len(threads))
	for _, t := range threads {
		replies := make([]*commentView, 0, len(t.Replies))
		for _, r := range t.Replies {
			replies = append(replies, api.commentView(ctx, r))
		}
		result = append(result, &threadView{
			Comment: api.commentView(ctx, t.Comment),
			Replies: replies,
		})
	}
	return result
}

type notificationView struct {
	ID         string            `json:"id"`
	Actor      *userView         `json:"actor,omitempty"`
	Verb       string            `json:"verb"`
	TargetKind domain.TargetKind `json:"targetKind,omitempty"`
	TargetID   string            `json:"targetId,omitempty"`
	Unread     bool              `json:"unread"`
	CreatedAt  time.Time         `json:"createdAt"`
}

func (api *API) notificationViews(ctx context.Context, ns []*domain.Notification) []*notificationView {
	result := make([]*notificationView, 0, len(ns))
	for _, n := range ns {
		v := &notificationView{
			ID:         n.ID,
			Verb:       n.Verb,
			TargetKind: n.TargetKind,
			Unread:     n.Unread,
			CreatedAt:  n.CreatedAt,
		}
		if n.TargetID != nil {
			v.TargetID = *n.TargetID
		}
		if n.ActorID != nil {
			v.Actor = api.loadUserView(ctx, *n.ActorID)
		}
		result = append(result, v)
	}
	return result
}

type messageView struct {
	ID        string    `json:"id"`
	Sender    *userView `json:"sender"`
	Recipient *userView `json:"recipient"`
	Content   string    `json:"content"`
	IsRead    bool      `json:"isRead"`
	CreatedAt time.Time `json:"createdAt"`
}

func (api *API) messageView(ctx context.Context, m *domain.Message) *messageView {
	return &messageView{
		ID:        m.ID,
		Sender:    api.loadUserView(ctx, m.SenderID),
		Recipient: api.loadUserView(ctx, m.RecipientID),
		Content:   m.Content,
		IsRead:    m.IsRead,
		CreatedAt: m.CreatedAt,
	}
}

type conversationView struct {
	With        *userView    `json:"with"`
	LastMessage *messageView `json:"lastMessage"`
	UnreadCount int64        `json:"unreadCount"`
}

func (api *API) conversationViews(ctx context.Context, convs []*storage.Conversation) []*conversationView {
	result := make([]*conversationView, 0, len(convs))
	for _, c := range convs {
		result = append(result, &conversationView{
			With:        api.loadUserView(ctx, c.OtherUserID),
			LastMessage: api.messageView(ctx, c.LastMessage),
			UnreadCount: c.UnreadCount,
		})
	}
	return result
}
