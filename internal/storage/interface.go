package storage

import (
	"context"

	"github.com/UkralStul/blog-service/internal/domain"
)

// PaginationArgs - аргументы для постраничной выборки.
type PaginationArgs struct {
	Limit  int
	Offset int
}

// Conversation - сводка переписки с одним собеседником.
type Conversation struct {
	OtherUserID string          `json:"otherUserId"`
	LastMessage *domain.Message `json:"lastMessage"`
	UnreadCount int64           `json:"unreadCount"`
}

// Storage определяет контракт для хранилищ.
// Реализации: postgres (боевая) и inmemory (разработка и тесты).
type Storage interface {
	// Пользователи и сессии
	CreateUser(ctx context.Context, user *domain.User) (*domain.User, error)
	GetUserByID(ctx context.Context, id string) (*domain.User, error)
	GetUserByUsername(ctx context.Context, username string) (*domain.User, error)
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
	CreateSession(ctx context.Context, session *domain.Session) (*domain.Session, error)
	GetSessionByToken(ctx context.Context, token string) (*domain.Session, error)
	DeactivateSession(ctx context.Context, token string) error

	// Статьи и теги
	CreatePost(ctx context.Context, post *domain.Post, tags []string) (*domain.Post, error)
	UpdatePost(ctx context.Context, post *domain.Post, tags []string) (*domain.Post, error)
	DeletePost(ctx context.Context, id string) error
	GetPostByID(ctx context.Context, id string) (*domain.Post, error)
	GetPosts(ctx context.Context, args PaginationArgs) ([]*domain.Post, error)
	SearchPosts(ctx context.Context, query, tag string, args PaginationArgs) ([]*domain.Post, error)
	IncrementPostViews(ctx context.Context, id string) error
	GetTagsByPrefix(ctx context.Context, prefix string, limit int) ([]*domain.Tag, error)

	// Комментарии. DeleteComment удаляет комментарий со всеми потомками
	// в одной транзакции и возвращает число удаленных строк.
	CreateComment(ctx context.Context, comment *domain.Comment) (*domain.Comment, error)
	GetCommentByID(ctx context.Context, id string) (*domain.Comment, error)
	GetCommentsByPostID(ctx context.Context, postID string) ([]*domain.Comment, error)
	DeleteComment(ctx context.Context, id string) (int64, error)

	// Лайки и подписки: повторный вызов снимает отметку
	ToggleLike(ctx context.Context, postID, userID string) (liked bool, count int64, err error)
	CountLikes(ctx context.Context, postID string) (int64, error)
	HasLiked(ctx context.Context, postID, userID string) (bool, error)
	ToggleFollow(ctx context.Context, followerID, followedID string) (following bool, followers int64, err error)

	// Уведомления
	CreateNotification(ctx context.Context, n *domain.Notification) (*domain.Notification, error)
	GetNotifications(ctx context.Context, userID string, args PaginationArgs) ([]*domain.Notification, error)
	CountUnreadNotifications(ctx context.Context, userID string) (int64, error)
	MarkNotificationRead(ctx context.Context, id, userID string) error
	MarkAllNotificationsRead(ctx context.Context, userID string) error
	// RetractNotifications удаляет уведомления о действии, которое было
	// отменено (например, снятый лайк).
	RetractNotifications(ctx context.Context, userID, actorID, verb, targetID string) error

	// Личные сообщения
	CreateMessage(ctx context.Context, m *domain.Message) (*domain.Message, error)
	GetConversation(ctx context.Context, userID, otherID string, args PaginationArgs) ([]*domain.Message, error)
	GetConversations(ctx context.Context, userID string) ([]*Conversation, error)
	MarkConversationRead(ctx context.Context, recipientID, senderID string) error
	CountUnreadMessages(ctx context.Context, userID string) (int64, error)

	// Батч-метод для dataloader'а
	GetUsersByIDs(ctx context.Context, ids []string) (map[string]*domain.User, error)
}
