package postgres

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/UkralStul/blog-service/internal/domain"
	"github.com/UkralStul/blog-service/internal/storage"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Store реализует интерфейс Storage с использованием PostgreSQL.
type Store struct {
	db *gorm.DB
}

// New создает новый экземпляр хранилища PostgreSQL.
func New(dsn string) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Выполняем миграцию схемы
	if err := db.AutoMigrate(
		&domain.User{},
		&domain.Session{},
		&domain.Tag{},
		&domain.Post{},
		&domain.Comment{},
		&domain.Like{},
		&domain.Follow{},
		&domain.Notification{},
		&domain.Message{},
	); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Store{db: db}, nil
}

func notFound(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %s", domain.ErrNotFound, what)
	}
	return err
}

// === Users & Sessions ===

func (s *Store) CreateUser(ctx context.Context, user *domain.User) (*domain.User, error) {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&domain.User{}).Where("username = ?", user.Username).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return fmt.Errorf("%w: username already taken", domain.ErrValidation)
		}
		if err := tx.Model(&domain.User{}).Where("email = ?", user.Email).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return fmt.Errorf("%w: email already registered", domain.ErrValidation)
		}
		return tx.Create(user).Error
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (s *Store) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	var user domain.User
	if err := s.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "user "+id)
	}
	return &user, nil
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	var user domain.User
	if err := s.db.WithContext(ctx).First(&user, "username = ?", username).Error; err != nil {
		return nil, notFound(err, "user "+username)
	}
	return &user, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	var user domain.User
	if err := s.db.WithContext(ctx).First(&user, "email = ?", email).Error; err != nil {
		return nil, notFound(err, "email "+email)
	}
	return &user, nil
}

func (s *Store) CreateSession(ctx context.Context, session *domain.Session) (*domain.Session, error) {
	session.IsActive = true
	if err := s.db.WithContext(ctx).Create(session).Error; err != nil {
		return nil, err
	}
	return session, nil
}

func (s *Store) GetSessionByToken(ctx context.Context, token string) (*domain.Session, error) {
	var session domain.Session
	if err := s.db.WithContext(ctx).First(&session, "token = ?", token).Error; err != nil {
		return nil, notFound(err, "session")
	}
	return &session, nil
}

func (s *Store) DeactivateSession(ctx context.Context, token string) error {
	res := s.db.WithContext(ctx).Model(&domain.Session{}).Where("token = ?", token).Update("is_active", false)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: session", domain.ErrNotFound)
	}
	return nil
}

// === Posts & Tags ===

func (s *Store) CreatePost(ctx context.Context, post *domain.Post, tags []string) (*domain.Post, error) {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		resolved, err := resolveTags(tx, tags)
		if err != nil {
			return err
		}
		post.Tags = resolved
		return tx.Create(post).Error
	})
	if err != nil {
		return nil, err
	}
	return post, nil
}

func (s *Store) UpdatePost(ctx context.Context, post *domain.Post, tags []string) (*domain.Post, error) {
	var updated domain.Post
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&updated, "id = ?", post.ID).Error; err != nil {
			return notFound(err, "post "+post.ID)
		}
		updated.Title = post.Title
		updated.Content = post.Content
		updated.ContentHTML = post.ContentHTML
		if err := tx.Save(&updated).Error; err != nil {
			return err
		}
		resolved, err := resolveTags(tx, tags)
		if err != nil {
			return err
		}
		if err := tx.Model(&updated).Association("Tags").Replace(resolved); err != nil {
			return err
		}
		updated.Tags = resolved
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// resolveTags находит или создает теги по именам внутри транзакции.
func resolveTags(tx *gorm.DB, names []string) ([]*domain.Tag, error) {
	result := make([]*domain.Tag, 0, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		var tag domain.Tag
		if err := tx.Where(domain.Tag{Name: name}).FirstOrCreate(&tag).Error; err != nil {
			return nil, err
		}
		result = append(result, &tag)
	}
	return result, nil
}

func (s *Store) DeletePost(ctx context.Context, id string) error {
	// Комментарии и лайки удаляет каскад внешних ключей
	res := s.db.WithContext(ctx).Delete(&domain.Post{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: post %s", domain.ErrNotFound, id)
	}
	return nil
}

func (s *Store) GetPostByID(ctx context.Context, id string) (*domain.Post, error) {
	var post domain.Post
	if err := s.db.WithContext(ctx).Preload("Tags").First(&post, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "post "+id)
	}
	return &post, nil
}

func (s *Store) GetPosts(ctx context.Context, args storage.PaginationArgs) ([]*domain.Post, error) {
	var posts []*domain.Post
	err := s.db.WithContext(ctx).
		Preload("Tags").
		Order("created_at DESC").
		Limit(args.Limit).
		Offset(args.Offset).
		Find(&posts).Error
	return posts, err
}

func (s *Store) SearchPosts(ctx context.Context, query, tag string, args storage.PaginationArgs) ([]*domain.Post, error) {
	q := s.db.WithContext(ctx).Model(&domain.Post{}).Preload("Tags")

	query = strings.TrimSpace(query)
	if query != "" {
		pattern := "%" + query + "%"
		q = q.Where("title ILIKE ? OR content ILIKE ?", pattern, pattern)
	}
	if tag != "" {
		q = q.Joins("JOIN post_tags ON post_tags.post_id = posts.id").
			Joins("JOIN tags ON tags.id = post_tags.tag_id").
			Where("tags.name = ?", tag)
	}

	var posts []*domain.Post
	err := q.Order("posts.created_at DESC").Limit(args.Limit).Offset(args.Offset).Find(&posts).Error
	return posts, err
}

func (s *Store) IncrementPostViews(ctx context.Context, id string) error {
	// Счетчик просмотров - best effort, потерянные инкременты допустимы
	return s.db.WithContext(ctx).Model(&domain.Post{}).
		Where("id = ?", id).
		UpdateColumn("views", gorm.Expr("views + 1")).Error
}

func (s *Store) GetTagsByPrefix(ctx context.Context, prefix string, limit int) ([]*domain.Tag, error) {
	var tags []*domain.Tag
	q := s.db.WithContext(ctx).Order("name ASC").Limit(limit)
	if prefix != "" {
		q = q.Where("name ILIKE ?", prefix+"%")
	}
	err := q.Find(&tags).Error
	return tags, err
}

// === Comments ===

func (s *Store) CreateComment(ctx context.Context, comment *domain.Comment) (*domain.Comment, error) {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&domain.Post{}).Where("id = ?", comment.PostID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return fmt.Errorf("%w: post %s", domain.ErrNotFound, comment.PostID)
		}
		return tx.Create(comment).Error
	})
	if err != nil {
		return nil, err
	}
	return comment, nil
}

func (s *Store) GetCommentByID(ctx context.Context, id string) (*domain.Comment, error) {
	var comment domain.Comment
	if err := s.db.WithContext(ctx).First(&comment, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "comment "+id)
	}
	return &comment, nil
}

func (s *Store) GetCommentsByPostID(ctx context.Context, postID string) ([]*domain.Comment, error) {
	var comments []*domain.Comment
	err := s.db.WithContext(ctx).
		Where("post_id = ?", postID).
		Order("created_at ASC").
		Find(&comments).Error
	return comments, err
}

func (s *Store) DeleteComment(ctx context.Context, id string) (int64, error) {
	var removed int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Собираем поддерево рекурсивным запросом и удаляем одним вызовом
		var ids []string
		err := tx.Raw(`
			WITH RECURSIVE subtree AS (
				SELECT id FROM comments WHERE id = ?
				UNION ALL
				SELECT c.id FROM comments c JOIN subtree s ON c.parent_id = s.id
			)
			SELECT id FROM subtree`, id).Scan(&ids).Error
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			return fmt.Errorf("%w: comment %s", domain.ErrNotFound, id)
		}
		res := tx.Delete(&domain.Comment{}, "id IN ?", ids)
		if res.Error != nil {
			return res.Error
		}
		removed = res.RowsAffected
		return nil
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

// === Likes & Follows ===

func (s *Store) ToggleLike(ctx context.Context, postID, userID string) (bool, int64, error) {
	var liked bool
	var count int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var postCount int64
		if err := tx.Model(&domain.Post{}).Where("id = ?", postID).Count(&postCount).Error; err != nil {
			return err
		}
		if postCount == 0 {
			return fmt.Errorf("%w: post %s", domain.ErrNotFound, postID)
		}

		var existing domain.Like
		err := tx.First(&existing, "post_id = ? AND user_id = ?", postID, userID).Error
		switch {
		case err == nil:
			if err := tx.Delete(&existing).Error; err != nil {
				return err
			}
			liked = false
		case errors.Is(err, gorm.ErrRecordNotFound):
			if err := tx.Create(&domain.Like{PostID: postID, UserID: userID}).Error; err != nil {
				return err
			}
			liked = true
		default:
			return err
		}
		return tx.Model(&domain.Like{}).Where("post_id = ?", postID).Count(&count).Error
	})
	if err != nil {
		return false, 0, err
	}
	return liked, count, nil
}

func (s *Store) CountLikes(ctx context.Context, postID string) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&domain.Like{}).Where("post_id = ?", postID).Count(&count).Error
	return count, err
}

func (s *Store) HasLiked(ctx context.Context, postID, userID string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&domain.Like{}).
		Where("post_id = ? AND user_id = ?", postID, userID).
		Count(&count).Error
	return count > 0, err
}

func (s *Store) ToggleFollow(ctx context.Context, followerID, followedID string) (bool, int64, error) {
	var following bool
	var followers int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing domain.Follow
		err := tx.First(&existing, "follower_id = ? AND followed_id = ?", followerID, followedID).Error
		switch {
		case err == nil:
			if err := tx.Delete(&existing).Error; err != nil {
				return err
			}
			following = false
		case errors.Is(err, gorm.ErrRecordNotFound):
			if err := tx.Create(&domain.Follow{FollowerID: followerID, FollowedID: followedID}).Error; err != nil {
				return err
			}
			following = true
		default:
			return err
		}
		return tx.Model(&domain.Follow{}).Where("followed_id = ?", followedID).Count(&followers).Error
	})
	if err != nil {
		return false, 0, err
	}
	return following, followers, nil
}

// === Notifications ===

func (s *Store) CreateNotification(ctx context.Context, n *domain.Notification) (*domain.Notification, error) {
	n.Unread = true
	if err := s.db.WithContext(ctx).Create(n).Error; err != nil {
		return nil, err
	}
	return n, nil
}

func (s *Store) GetNotifications(ctx context.Context, userID string, args storage.PaginationArgs) ([]*domain.Notification, error) {
	var notifs []*domain.Notification
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(args.Limit).
		Offset(args.Offset).
		Find(&notifs).Error
	return notifs, err
}

func (s *Store) CountUnreadNotifications(ctx context.Context, userID string) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&domain.Notification{}).
		Where("user_id = ? AND unread = true", userID).
		Count(&count).Error
	return count, err
}

func (s *Store) MarkNotificationRead(ctx context.Context, id, userID string) error {
	res := s.db.WithContext(ctx).Model(&domain.Notification{}).
		Where("id = ? AND user_id = ?", id, userID).
		Update("unread", false)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: notification %s", domain.ErrNotFound, id)
	}
	return nil
}

func (s *Store) MarkAllNotificationsRead(ctx context.Context, userID string) error {
	return s.db.WithContext(ctx).Model(&domain.Notification{}).
		Where("user_id = ? AND unread = true", userID).
		Update("unread", false).Error
}

func (s *Store) RetractNotifications(ctx context.Context, userID, actorID, verb, targetID string) error {
	return s.db.WithContext(ctx).
		Where("user_id = ? AND actor_id = ? AND verb = ? AND target_id = ?", userID, actorID, verb, targetID).
		Delete(&domain.Notification{}).Error
}

// === Messages ===

func (s *Store) CreateMessage(ctx context.Context, m *domain.Message) (*domain.Message, error) {
	if err := s.db.WithContext(ctx).Create(m).Error; err != nil {
		return nil, err
	}
	return m, nil
}

func (s *Store) GetConversation(ctx context.Context, userID, otherID string, args storage.PaginationArgs) ([]*domain.Message, error) {
	var msgs []*domain.Message
	err := s.db.WithContext(ctx).
		Where("(sender_id = ? AND recipient_id = ?) OR (sender_id = ? AND recipient_id = ?)",
			userID, otherID, otherID, userID).
		Order("created_at ASC").
		Limit(args.Limit).
		Offset(args.Offset).
		Find(&msgs).Error
	return msgs, err
}

func (s *Store) GetConversations(ctx context.Context, userID string) ([]*storage.Conversation, error) {
	var msgs []*domain.Message
	err := s.db.WithContext(ctx).
		Where("sender_id = ? OR recipient_id = ?", userID, userID).
		Order("created_at ASC").
		Find(&msgs).Error
	if err != nil {
		return nil, err
	}

	// Сворачиваем переписки по собеседнику
	byOther := make(map[string]*storage.Conversation)
	for _, m := range msgs {
		otherID := m.SenderID
		if otherID == userID {
			otherID = m.RecipientID
		}
		conv := byOther[otherID]
		if conv == nil {
			conv = &storage.Conversation{OtherUserID: otherID}
			byOther[otherID] = conv
		}
		conv.LastMessage = m
		if m.RecipientID == userID && !m.IsRead {
			conv.UnreadCount++
		}
	}

	result := make([]*storage.Conversation, 0, len(byOther))
	for _, conv := range byOther {
		result = append(result, conv)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].LastMessage.CreatedAt.After(result[j].LastMessage.CreatedAt)
	})
	return result, nil
}

func (s *Store) MarkConversationRead(ctx context.Context, recipientID, senderID string) error {
	return s.db.WithContext(ctx).Model(&domain.Message{}).
		Where("sender_id = ? AND recipient_id = ? AND is_read = false", senderID, recipientID).
		Update("is_read", true).Error
}

func (s *Store) CountUnreadMessages(ctx context.Context, userID string) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&domain.Message{}).
		Where("recipient_id = ? AND is_read = false", userID).
		Count(&count).Error
	return count, err
}

// === Dataloader Method ===

func (s *Store) GetUsersByIDs(ctx context.Context, ids []string) (map[string]*domain.User, error) {
	var users []*domain.User
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&users).Error; err != nil {
		return nil, err
	}
	result := make(map[string]*domain.User, len(users))
	for _, u := range users {
		result[u.ID] = u
	}
	return result, nil
}
