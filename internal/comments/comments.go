// Package comments реализует сервис комментариев: построение дерева
// обсуждения, создание с разрешением родителя и каскадное удаление.
package comments

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/UkralStul/blog-service/internal/domain"
	"github.com/UkralStul/blog-service/internal/markdown"
	"github.com/UkralStul/blog-service/internal/storage"
)

// maxContentLen ограничивает длину исходного Markdown комментария.
const maxContentLen = 2000

// Thread - корневой комментарий со всеми его ответами (прямыми
// и косвенными) в хронологическом порядке. Глубина вложенности
// не ограничивается, Level служит только для отступов при отображении.
type Thread struct {
	Comment *domain.Comment
	Replies []*domain.Comment
}

// BuildTree группирует плоский список комментариев одного поста:
// корневые - от новых к старым, ответы каждого корня - от старых к новым.
func BuildTree(all []*domain.Comment) []Thread {
	children := make(map[string][]*domain.Comment)
	roots := make([]*domain.Comment, 0)
	for _, c := range all {
		if c.ParentID == nil {
			roots = append(roots, c)
		} else {
			children[*c.ParentID] = append(children[*c.ParentID], c)
		}
	}

	sort.Slice(roots, func(i, j int) bool {
		return roots[i].CreatedAt.After(roots[j].CreatedAt)
	})

	threads := make([]Thread, 0, len(roots))
	for _, root := range roots {
		replies := collectReplies(root.ID, children)
		sort.Slice(replies, func(i, j int) bool {
			return replies[i].CreatedAt.Before(replies[j].CreatedAt)
		})
		threads = append(threads, Thread{Comment: root, Replies: replies})
	}
	return threads
}

// collectReplies обходит поддерево комментария в ширину.
func collectReplies(rootID string, children map[string][]*domain.Comment) []*domain.Comment {
	replies := make([]*domain.Comment, 0)
	queue := []string{rootID}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, c := range children[id] {
			replies = append(replies, c)
			queue = append(queue, c.ID)
		}
	}
	return replies
}

// Service - сервис комментариев поверх хранилища.
type Service struct {
	store storage.Storage
}

// NewService создает сервис комментариев.
func NewService(store storage.Storage) *Service {
	return &Service{store: store}
}

// Create создает комментарий к посту. Родитель разрешается по id в рамках
// того же поста: несуществующий или чужой родитель трактуется как его
// отсутствие, а не как ошибка. Текст проходит рендеринг и очистку;
// пустой после очистки контент отклоняется.
func (s *Service) Create(ctx context.Context, post *domain.Post, parentID *string, authorID, raw string) (*domain.Comment, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("%w: comment content cannot be empty", domain.ErrValidation)
	}
	if len(raw) > maxContentLen {
		return nil, fmt.Errorf("%w: comment content is too long", domain.ErrValidation)
	}

	// Несуществующий или чужой родитель - это "нет родителя",
	// но отказ хранилища фатален для запроса
	var parent *domain.Comment
	if parentID != nil && *parentID != "" {
		p, err := s.store.GetCommentByID(ctx, *parentID)
		switch {
		case err == nil:
			if p.PostID == post.ID {
				parent = p
			}
		case !errors.Is(err, domain.ErrNotFound):
			return nil, err
		}
	}

	level := 0
	var pid *string
	if parent != nil {
		level = parent.Level + 1
		pid = &parent.ID
	}

	rendered := markdown.Render(raw)
	if markdown.PlainText(rendered) == "" {
		return nil, fmt.Errorf("%w: comment content cannot be empty", domain.ErrValidation)
	}

	return s.store.CreateComment(ctx, &domain.Comment{
		PostID:      post.ID,
		ParentID:    pid,
		Level:       level,
		AuthorID:    authorID,
		Content:     raw,
		ContentHTML: rendered,
	})
}

// Delete удаляет комментарий вместе со всеми потомками. Разрешено только
// автору комментария или автору поста. Возвращает число удаленных строк.
func (s *Service) Delete(ctx context.Context, actor *domain.User, commentID string) (int64, error) {
	comment, err := s.store.GetCommentByID(ctx, commentID)
	if err != nil {
		return 0, err
	}
	post, err := s.store.GetPostByID(ctx, comment.PostID)
	if err != nil {
		return 0, err
	}
	if actor.ID != comment.AuthorID && actor.ID != post.AuthorID {
		return 0, fmt.Errorf("%w: only the comment author or the post author can delete a comment", domain.ErrForbidden)
	}
	return s.store.DeleteComment(ctx, commentID)
}

// TreeForPost загружает все комментарии поста и строит дерево обсуждения.
func (s *Service) TreeForPost(ctx context.Context, postID string) ([]Thread, error) {
	all, err := s.store.GetCommentsByPostID(ctx, postID)
	if err != nil {
		return nil, err
	}
	return BuildTree(all), nil
}
