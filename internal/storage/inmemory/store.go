package inmemory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/UkralStul/blog-service/internal/domain"
	"github.com/UkralStul/blog-service/internal/storage"
	"github.com/google/uuid"
)

// Store реализует интерфейс Storage в памяти.
type Store struct {
	mu sync.RWMutex

	users        map[string]*domain.User
	userByName   map[string]string // map[username]userID
	userByEmail  map[string]string // map[email]userID
	sessions     map[string]*domain.Session // map[token]
	posts        map[string]*domain.Post
	tags         map[string]*domain.Tag // map[name]
	comments     map[string]*domain.Comment
	commentsByPost   map[string][]string // map[postID][]commentID (все комментарии поста)
	commentsByParent map[string][]string // map[parentID][]commentID
	likes        map[string]map[string]*domain.Like   // map[postID]map[userID]
	follows      map[string]map[string]*domain.Follow // map[followerID]map[followedID]
	followersOf  map[string]map[string]struct{}       // map[followedID]map[followerID]
	notifs       map[string]*domain.Notification
	notifsByUser map[string][]string // map[userID][]notificationID
	messages     []*domain.Message
}

// New создает новый экземпляр in-memory хранилища.
func New() *Store {
	return &Store{
		users:            make(map[string]*domain.User),
		userByName:       make(map[string]string),
		userByEmail:      make(map[string]string),
		sessions:         make(map[string]*domain.Session),
		posts:            make(map[string]*domain.Post),
		tags:             make(map[string]*domain.Tag),
		comments:         make(map[string]*domain.Comment),
		commentsByPost:   make(map[string][]string),
		commentsByParent: make(map[string][]string),
		likes:            make(map[string]map[string]*domain.Like),
		follows:          make(map[string]map[string]*domain.Follow),
		followersOf:      make(map[string]map[string]struct{}),
		notifs:           make(map[string]*domain.Notification),
		notifsByUser:     make(map[string][]string),
	}
}

// === Users & Sessions ===

func (s *Store) CreateUser(ctx context.Context, user *domain.User) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.userByName[user.Username]; ok {
		return nil, fmt.Errorf("%w: username already taken", domain.ErrValidation)
	}
	if _, ok := s.userByEmail[user.Email]; ok {
		return nil, fmt.Errorf("%w: email already registered", domain.ErrValidation)
	}

	user.ID = uuid.NewString()
	user.CreatedAt = time.Now().UTC()
	s.users[user.ID] = user
	s.userByName[user.Username] = user.ID
	s.userByEmail[user.Email] = user.ID
	return user, nil
}

func (s *Store) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[id]
	if !ok {
		return nil, fmt.Errorf("%w: user %s", domain.ErrNotFound, id)
	}
	return user, nil
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.userByName[username]
	if !ok {
		return nil, fmt.Errorf("%w: user %s", domain.ErrNotFound, username)
	}
	return s.users[id], nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.userByEmail[email]
	if !ok {
		return nil, fmt.Errorf("%w: email %s", domain.ErrNotFound, email)
	}
	return s.users[id], nil
}

func (s *Store) CreateSession(ctx context.Context, session *domain.Session) (*domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session.ID = uuid.NewString()
	session.CreatedAt = time.Now().UTC()
	session.IsActive = true
	s.sessions[session.Token] = session
	return session, nil
}

func (s *Store) GetSessionByToken(ctx context.Context, token string) (*domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[token]
	if !ok {
		return nil, fmt.Errorf("%w: session", domain.ErrNotFound)
	}
	return session, nil
}

func (s *Store) DeactivateSession(ctx context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[token]
	if !ok {
		return fmt.Errorf("%w: session", domain.ErrNotFound)
	}
	session.IsActive = false
	return nil
}

// === Posts & Tags ===

func (s *Store) CreatePost(ctx context.Context, post *domain.Post, tags []string) (*domain.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	post.ID = uuid.NewString()
	post.CreatedAt = time.Now().UTC()
	post.UpdatedAt = post.CreatedAt
	post.Tags = s.resolveTags(tags)
	s.posts[post.ID] = post
	return post, nil
}

func (s *Store) UpdatePost(ctx context.Context, post *domain.Post, tags []string) (*domain.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.posts[post.ID]
	if !ok {
		return nil, fmt.Errorf("%w: post %s", domain.ErrNotFound, post.ID)
	}
	existing.Title = post.Title
	existing.Content = post.Content
	existing.ContentHTML = post.ContentHTML
	existing.UpdatedAt = time.Now().UTC()
	existing.Tags = s.resolveTags(tags)
	return existing, nil
}

// resolveTags находит или создает теги по именам. Вызывается под mu.
func (s *Store) resolveTags(names []string) []*domain.Tag {
	result := make([]*domain.Tag, 0, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		tag, ok := s.tags[name]
		if !ok {
			tag = &domain.Tag{ID: uuid.NewString(), Name: name}
			s.tags[name] = tag
		}
		result = append(result, tag)
	}
	return result
}

func (s *Store) DeletePost(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.posts[id]; !ok {
		return fmt.Errorf("%w: post %s", domain.ErrNotFound, id)
	}

	// Каскад: комментарии и лайки поста
	for _, cid := range s.commentsByPost[id] {
		delete(s.commentsByParent, cid)
		delete(s.comments, cid)
	}
	delete(s.commentsByPost, id)
	delete(s.likes, id)
	delete(s.posts, id)
	return nil
}

// GetPostByID возвращает копию записи: хранимый объект меняется
// только методами хранилища под мьютексом.
func (s *Store) GetPostByID(ctx context.Context, id string) (*domain.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	post, ok := s.posts[id]
	if !ok {
		return nil, fmt.Errorf("%w: post %s", domain.ErrNotFound, id)
	}
	cp := *post
	return &cp, nil
}

func (s *Store) GetPosts(ctx context.Context, args storage.PaginationArgs) ([]*domain.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]*domain.Post, 0, len(s.posts))
	for _, p := range s.posts {
		all = append(all, p)
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})
	return paginate(all, args), nil
}

func (s *Store) SearchPosts(ctx context.Context, query, tag string, args storage.PaginationArgs) ([]*domain.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query = strings.ToLower(strings.TrimSpace(query))
	matched := make([]*domain.Post, 0)
	for _, p := range s.posts {
		if query != "" &&
			!strings.Contains(strings.ToLower(p.Title), query) &&
			!strings.Contains(strings.ToLower(p.Content), query) {
			continue
		}
		if tag != "" && !hasTag(p, tag) {
			continue
		}
		matched = append(matched, p)
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	return paginate(matched, args), nil
}

func hasTag(p *domain.Post, name string) bool {
	for _, t := range p.Tags {
		if t.Name == name {
			return true
		}
	}
	return false
}

func (s *Store) IncrementPostViews(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	post, ok := s.posts[id]
	if !ok {
		return fmt.Errorf("%w: post %s", domain.ErrNotFound, id)
	}
	post.Views++
	return nil
}

func (s *Store) GetTagsByPrefix(ctx context.Context, prefix string, limit int) ([]*domain.Tag, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	prefix = strings.ToLower(prefix)
	result := make([]*domain.Tag, 0)
	for name, tag := range s.tags {
		if prefix == "" || strings.HasPrefix(strings.ToLower(name), prefix) {
			result = append(result, tag)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// === Comments ===

func (s *Store) CreateComment(ctx context.Context, comment *domain.Comment) (*domain.Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.posts[comment.PostID]; !ok {
		return nil, fmt.Errorf("%w: post %s", domain.ErrNotFound, comment.PostID)
	}

	comment.ID = uuid.NewString()
	comment.CreatedAt = time.Now().UTC()
	s.comments[comment.ID] = comment
	s.commentsByPost[comment.PostID] = append(s.commentsByPost[comment.PostID], comment.ID)
	if comment.ParentID != nil {
		s.commentsByParent[*comment.ParentID] = append(s.commentsByParent[*comment.ParentID], comment.ID)
	}
	return comment, nil
}

func (s *Store) GetCommentByID(ctx context.Context, id string) (*domain.Comment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	comment, ok := s.comments[id]
	if !ok {
		return nil, fmt.Errorf("%w: comment %s", domain.ErrNotFound, id)
	}
	return comment, nil
}

func (s *Store) GetCommentsByPostID(ctx context.Context, postID string) ([]*domain.Comment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.commentsByPost[postID]
	all := make([]*domain.Comment, 0, len(ids))
	for _, id := range ids {
		if c, ok := s.comments[id]; ok {
			all = append(all, c)
		}
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].CreatedAt.Before(all[j].CreatedAt)
	})
	return all, nil
}

func (s *Store) DeleteComment(ctx context.Context, id string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	root, ok := s.comments[id]
	if !ok {
		return 0, fmt.Errorf("%w: comment %s", domain.ErrNotFound, id)
	}

	// Собираем поддерево целиком, затем удаляем
	toDelete := []string{id}
	for i := 0; i < len(toDelete); i++ {
		toDelete = append(toDelete, s.commentsByParent[toDelete[i]]...)
	}

	for _, cid := range toDelete {
		delete(s.comments, cid)
		delete(s.commentsByParent, cid)
	}
	s.commentsByPost[root.PostID] = without(s.commentsByPost[root.PostID], toDelete)
	if root.ParentID != nil {
		s.commentsByParent[*root.ParentID] = without(s.commentsByParent[*root.ParentID], []string{id})
	}
	return int64(len(toDelete)), nil
}

func without(ids []string, removed []string) []string {
	drop := make(map[string]struct{}, len(removed))
	for _, id := range removed {
		drop[id] = struct{}{}
	}
	kept := ids[:0]
	for _, id := range ids {
		if _, ok := drop[id]; !ok {
			kept = append(kept, id)
		}
	}
	return kept
}

// === Likes & Follows ===

func (s *Store) ToggleLike(ctx context.Context, postID, userID string) (bool, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.posts[postID]; !ok {
		return false, 0, fmt.Errorf("%w: post %s", domain.ErrNotFound, postID)
	}

	byUser := s.likes[postID]
	if byUser == nil {
		byUser = make(map[string]*domain.Like)
		s.likes[postID] = byUser
	}

	liked := false
	if _, ok := byUser[userID]; ok {
		delete(byUser, userID)
	} else {
		byUser[userID] = &domain.Like{
			ID:        uuid.NewString(),
			PostID:    postID,
			UserID:    userID,
			CreatedAt: time.Now().UTC(),
		}
		liked = true
	}
	return liked, int64(len(byUser)), nil
}

func (s *Store) CountLikes(ctx context.Context, postID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.likes[postID])), nil
}

func (s *Store) HasLiked(ctx context.Context, postID, userID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.likes[postID][userID]
	return ok, nil
}

func (s *Store) ToggleFollow(ctx context.Context, followerID, followedID string) (bool, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	byFollowed := s.follows[followerID]
	if byFollowed == nil {
		byFollowed = make(map[string]*domain.Follow)
		s.follows[followerID] = byFollowed
	}
	followers := s.followersOf[followedID]
	if followers == nil {
		followers = make(map[string]struct{})
		s.followersOf[followedID] = followers
	}

	following := false
	if _, ok := byFollowed[followedID]; ok {
		delete(byFollowed, followedID)
		delete(followers, followerID)
	} else {
		byFollowed[followedID] = &domain.Follow{
			ID:         uuid.NewString(),
			FollowerID: followerID,
			FollowedID: followedID,
			CreatedAt:  time.Now().UTC(),
		}
		followers[followerID] = struct{}{}
		following = true
	}
	return following, int64(len(followers)), nil
}

// === Notifications ===

func (s *Store) CreateNotification(ctx context.Context, n *domain.Notification) (*domain.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n.ID = uuid.NewString()
	n.CreatedAt = time.Now().UTC()
	n.Unread = true
	s.notifs[n.ID] = n
	s.notifsByUser[n.UserID] = append(s.notifsByUser[n.UserID], n.ID)
	return n, nil
}

func (s *Store) GetNotifications(ctx context.Context, userID string, args storage.PaginationArgs) ([]*domain.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.notifsByUser[userID]
	all := make([]*domain.Notification, 0, len(ids))
	for _, id := range ids {
		all = append(all, s.notifs[id])
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})
	return paginate(all, args), nil
}

func (s *Store) CountUnreadNotifications(ctx context.Context, userID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	for _, id := range s.notifsByUser[userID] {
		if s.notifs[id].Unread {
			count++
		}
	}
	return count, nil
}

func (s *Store) MarkNotificationRead(ctx context.Context, id, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.notifs[id]
	if !ok || n.UserID != userID {
		// Чужое уведомление неотличимо от несуществующего
		return fmt.Errorf("%w: notification %s", domain.ErrNotFound, id)
	}
	n.Unread = false
	return nil
}

func (s *Store) MarkAllNotificationsRead(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range s.notifsByUser[userID] {
		s.notifs[id].Unread = false
	}
	return nil
}

func (s *Store) RetractNotifications(ctx context.Context, userID, actorID, verb, targetID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := make([]string, 0, len(s.notifsByUser[userID]))
	for _, id := range s.notifsByUser[userID] {
		n := s.notifs[id]
		if n.ActorID != nil && *n.ActorID == actorID && n.Verb == verb &&
			n.TargetID != nil && *n.TargetID == targetID {
			delete(s.notifs, id)
			continue
		}
		kept = append(kept, id)
	}
	s.notifsByUser[userID] = kept
	return nil
}

// === Messages ===

func (s *Store) CreateMessage(ctx context.Context, m *domain.Message) (*domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m.ID = uuid.NewString()
	m.CreatedAt = time.Now().UTC()
	s.messages = append(s.messages, m)
	return m, nil
}

func (s *Store) GetConversation(ctx context.Context, userID, otherID string, args storage.PaginationArgs) ([]*domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv := make([]*domain.Message, 0)
	for _, m := range s.messages {
		if (m.SenderID == userID && m.RecipientID == otherID) ||
			(m.SenderID == otherID && m.RecipientID == userID) {
			conv = append(conv, m)
		}
	}
	// messages append-only, порядок уже хронологический
	return paginate(conv, args), nil
}

func (s *Store) GetConversations(ctx context.Context, userID string) ([]*storage.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byOther := make(map[string]*storage.Conversation)
	for _, m := range s.messages {
		var otherID string
		switch {
		case m.SenderID == userID:
			otherID = m.RecipientID
		case m.RecipientID == userID:
			otherID = m.SenderID
		default:
			continue
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
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, m := range s.messages {
		if m.SenderID == senderID && m.RecipientID == recipientID {
			m.IsRead = true
		}
	}
	return nil
}

func (s *Store) CountUnreadMessages(ctx context.Context, userID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	for _, m := range s.messages {
		if m.RecipientID == userID && !m.IsRead {
			count++
		}
	}
	return count, nil
}

// === Dataloader Method ===

func (s *Store) GetUsersByIDs(ctx context.Context, ids []string) (map[string]*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]*domain.User, len(ids))
	for _, id := range ids {
		if u, ok := s.users[id]; ok {
			result[id] = u
		}
	}
	return result, nil
}

// paginate - вспомогательная функция для среза по limit/offset.
func paginate[T any](items []T, args storage.PaginationArgs) []T {
	start := args.Offset
	if start < 0 {
		start = 0
	}
	if start >= len(items) {
		return []T{}
	}
	end := len(items)
	if args.Limit > 0 && start+args.Limit < end {
		end = start + args.Limit
	}
	return items[start:end]
}
