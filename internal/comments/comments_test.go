package comments

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/UkralStul/blog-service/internal/domain"
	"github.com/UkralStul/blog-service/internal/storage"
	"github.com/UkralStul/blog-service/internal/storage/inmemory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestService создает сервис, автора поста, второго пользователя и пост.
func newTestService(t *testing.T) (*Service, storage.Storage, *domain.User, *domain.User, *domain.Post) {
	store := inmemory.New()
	ctx := context.Background()

	author, err := store.CreateUser(ctx, &domain.User{Username: "author", Email: "author@example.com"})
	require.NoError(t, err)
	reader, err := store.CreateUser(ctx, &domain.User{Username: "reader", Email: "reader@example.com"})
	require.NoError(t, err)
	post, err := store.CreatePost(ctx, &domain.Post{
		Title: "Test Post", Content: "text", ContentHTML: "<p>text</p>", AuthorID: author.ID,
	}, nil)
	require.NoError(t, err)

	return NewService(store), store, author, reader, post
}

func TestService_Create_TopLevel(t *testing.T) {
	svc, _, _, reader, post := newTestService(t)
	ctx := context.Background()

	c, err := svc.Create(ctx, post, nil, reader.ID, "Отличный пост! **Очень** информативно.")
	require.NoError(t, err)
	assert.Nil(t, c.ParentID)
	assert.Equal(t, 0, c.Level)
	assert.Contains(t, c.ContentHTML, "<strong>Очень</strong>")
}

func TestService_Create_ReplyLevel(t *testing.T) {
	svc, _, author, reader, post := newTestService(t)
	ctx := context.Background()

	parent, err := svc.Create(ctx, post, nil, reader.ID, "parent")
	require.NoError(t, err)
	child, err := svc.Create(ctx, post, &parent.ID, author.ID, "child")
	require.NoError(t, err)
	grandchild, err := svc.Create(ctx, post, &child.ID, reader.ID, "grandchild")
	require.NoError(t, err)

	// Level всегда равен parent.Level + 1, пост совпадает с родительским
	assert.Equal(t, 1, child.Level)
	assert.Equal(t, 2, grandchild.Level)
	assert.Equal(t, parent.ID, *child.ParentID)
	assert.Equal(t, post.ID, child.PostID)
	assert.Equal(t, post.ID, grandchild.PostID)
}

func TestService_Create_ForeignParentFallsBackToTopLevel(t *testing.T) {
	svc, store, author, reader, post := newTestService(t)
	ctx := context.Background()

	otherPost, err := store.CreatePost(ctx, &domain.Post{
		Title: "Other", Content: "x", ContentHTML: "<p>x</p>", AuthorID: author.ID,
	}, nil)
	require.NoError(t, err)
	foreign, err := svc.Create(ctx, otherPost, nil, reader.ID, "на другом посте")
	require.NoError(t, err)

	// Родитель с другого поста трактуется как отсутствие родителя
	c, err := svc.Create(ctx, post, &foreign.ID, reader.ID, "ответ")
	require.NoError(t, err)
	assert.Nil(t, c.ParentID)
	assert.Equal(t, 0, c.Level)
}

func TestService_Create_MissingParentFallsBackToTopLevel(t *testing.T) {
	svc, _, _, reader, post := newTestService(t)
	ctx := context.Background()

	missing := "11111111-1111-1111-1111-111111111111"
	c, err := svc.Create(ctx, post, &missing, reader.ID, "ответ")
	require.NoError(t, err)
	assert.Nil(t, c.ParentID)
	assert.Equal(t, 0, c.Level)
}

// brokenStore имитирует отказ хранилища на чтении комментария.
type brokenStore struct {
	storage.Storage
}

func (b *brokenStore) GetCommentByID(ctx context.Context, id string) (*domain.Comment, error) {
	return nil, errors.New("store unavailable")
}

func TestService_Create_ParentLookupFailureIsFatal(t *testing.T) {
	_, store, _, reader, post := newTestService(t)
	ctx := context.Background()

	// Отказ хранилища - не то же самое, что отсутствующий родитель:
	// комментарий не должен молча стать корневым
	svc := NewService(&brokenStore{Storage: store})
	parentID := "11111111-1111-1111-1111-111111111111"
	_, err := svc.Create(ctx, post, &parentID, reader.ID, "ответ")
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrValidation)

	all, lerr := store.GetCommentsByPostID(ctx, post.ID)
	require.NoError(t, lerr)
	assert.Empty(t, all)
}

func TestService_Create_EmptyContent(t *testing.T) {
	svc, _, _, reader, post := newTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, post, nil, reader.ID, "   ")
	assert.ErrorIs(t, err, domain.ErrValidation)

	// Контент, пустой после очистки, тоже отклоняется
	_, err = svc.Create(ctx, post, nil, reader.ID, "<script>alert(1)</script>")
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestService_Create_TooLong(t *testing.T) {
	svc, _, _, reader, post := newTestService(t)
	ctx := context.Background()

	long := make([]byte, maxContentLen+1)
	for i := range long {
		long[i] = 'a'
	}
	_, err := svc.Create(ctx, post, nil, reader.ID, string(long))
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestService_Delete_Authorization(t *testing.T) {
	svc, store, author, reader, post := newTestService(t)
	ctx := context.Background()

	stranger, err := store.CreateUser(ctx, &domain.User{Username: "stranger", Email: "stranger@example.com"})
	require.NoError(t, err)

	c, err := svc.Create(ctx, post, nil, reader.ID, "комментарий")
	require.NoError(t, err)

	_, err = svc.Delete(ctx, stranger, c.ID)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	// Автор поста может удалять чужие комментарии под своим постом
	removed, err := svc.Delete(ctx, author, c.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, removed)
}

func TestService_Delete_CascadesToReplies(t *testing.T) {
	svc, _, author, reader, post := newTestService(t)
	ctx := context.Background()

	root, err := svc.Create(ctx, post, nil, reader.ID, "root")
	require.NoError(t, err)
	reply, err := svc.Create(ctx, post, &root.ID, author.ID, "reply")
	require.NoError(t, err)
	_, err = svc.Create(ctx, post, &reply.ID, reader.ID, "deep reply")
	require.NoError(t, err)

	// N потомков: удаляется ровно N+1 строк
	removed, err := svc.Delete(ctx, reader, root.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 3, removed)

	tree, err := svc.TreeForPost(ctx, post.ID)
	require.NoError(t, err)
	assert.Empty(t, tree)
}

func TestService_Delete_NotFound(t *testing.T) {
	svc, _, author, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Delete(ctx, author, "11111111-1111-1111-1111-111111111111")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestBuildTree_Scenario(t *testing.T) {
	t1 := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Minute)

	a := &domain.Comment{ID: "a", PostID: "p", Level: 0, CreatedAt: t1}
	b := &domain.Comment{ID: "b", PostID: "p", ParentID: &a.ID, Level: 1, CreatedAt: t2}

	tree := BuildTree([]*domain.Comment{a, b})
	require.Len(t, tree, 1)
	assert.Equal(t, "a", tree[0].Comment.ID)
	require.Len(t, tree[0].Replies, 1)
	assert.Equal(t, "b", tree[0].Replies[0].ID)
}

func TestBuildTree_Ordering(t *testing.T) {
	base := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	at := func(min int) time.Time { return base.Add(time.Duration(min) * time.Minute) }

	early := &domain.Comment{ID: "early", CreatedAt: at(0)}
	late := &domain.Comment{ID: "late", CreatedAt: at(10)}
	// Ответы в двух ветках поддерева early
	r1 := &domain.Comment{ID: "r1", ParentID: &early.ID, Level: 1, CreatedAt: at(1)}
	r2 := &domain.Comment{ID: "r2", ParentID: &early.ID, Level: 1, CreatedAt: at(5)}
	r1a := &domain.Comment{ID: "r1a", ParentID: &r1.ID, Level: 2, CreatedAt: at(3)}

	tree := BuildTree([]*domain.Comment{early, late, r1, r2, r1a})
	require.Len(t, tree, 2)

	// Корневые - от новых к старым
	assert.Equal(t, "late", tree[0].Comment.ID)
	assert.Equal(t, "early", tree[1].Comment.ID)
	assert.Empty(t, tree[0].Replies)

	// Все ответы поддерева - в хронологическом порядке
	ids := make([]string, 0, len(tree[1].Replies))
	for _, r := range tree[1].Replies {
		ids = append(ids, r.ID)
	}
	assert.Equal(t, []string{"r1", "r1a", "r2"}, ids)
}

func TestBuildTree_Empty(t *testing.T) {
	assert.Empty(t, BuildTree(nil))
}
