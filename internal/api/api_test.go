package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"regexp"
	"sync"
	"testing"

	"github.com/UkralStul/blog-service/internal/auth"
	"github.com/UkralStul/blog-service/internal/comments"
	"github.com/UkralStul/blog-service/internal/notify"
	"github.com/UkralStul/blog-service/internal/storage/inmemory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var codePattern = regexp.MustCompile(`\d{6}`)

// captureSender перехватывает письма с кодами вместо отправки.
type captureSender struct {
	mu   sync.Mutex
	last string
}

func (s *captureSender) Send(email, subject, body string) error {
	s.mu.Lock()
	s.last = body
	s.mu.Unlock()
	return nil
}

func (s *captureSender) code() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return codePattern.FindString(s.last)
}

func newTestServer(t *testing.T) (*httptest.Server, *captureSender) {
	t.Helper()

	store := inmemory.New()
	sender := &captureSender{}
	authSvc := auth.NewService(store, auth.NewCodeStore(0, sender))
	commentsSvc := comments.NewService(store)
	observer := notify.NewObserver()
	dispatcher := notify.NewDispatcher(store, observer)

	srv := httptest.NewServer(New(store, authSvc, commentsSvc, dispatcher, observer).Router())
	t.Cleanup(srv.Close)
	return srv, sender
}

// client - HTTP-клиент с cookie jar, одна сессия на клиент.
type client struct {
	t    *testing.T
	http *http.Client
	base string
}

func newClient(t *testing.T, srv *httptest.Server) *client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &client{t: t, http: &http.Client{Jar: jar}, base: srv.URL}
}

func (c *client) do(method, path string, body any) (int, map[string]any) {
	c.t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(c.t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, c.base+path, reader)
	require.NoError(c.t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	require.NoError(c.t, err)
	defer resp.Body.Close()

	var decoded map[string]any
	require.NoError(c.t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp.StatusCode, decoded
}

// signUp проводит клиента через полный цикл регистрации.
func (c *client) signUp(sender *captureSender, username string) {
	c.t.Helper()
	email := fmt.Sprintf("%s@example.com", username)

	status, _ := c.do(http.MethodPost, "/api/verification-code", map[string]any{"email": email})
	require.Equal(c.t, http.StatusOK, status)

	status, resp := c.do(http.MethodPost, "/api/register", map[string]any{
		"username": username,
		"email":    email,
		"password": "secret123",
		"code":     sender.code(),
	})
	require.Equal(c.t, http.StatusOK, status)
	require.Equal(c.t, true, resp["ok"])
}

func TestAPI_RegisterLoginLogout(t *testing.T) {
	srv, sender := newTestServer(t)
	c := newClient(t, srv)

	c.signUp(sender, "alice")

	status, resp := c.do(http.MethodGet, "/api/me", nil)
	require.Equal(t, http.StatusOK, status)
	user := resp["user"].(map[string]any)
	assert.Equal(t, "alice", user["username"])

	status, _ = c.do(http.MethodPost, "/api/logout", nil)
	require.Equal(t, http.StatusOK, status)

	status, _ = c.do(http.MethodGet, "/api/me", nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = c.do(http.MethodPost, "/api/login", map[string]any{
		"username": "alice",
		"password": "secret123",
	})
	require.Equal(t, http.StatusOK, status)

	status, _ = c.do(http.MethodGet, "/api/me", nil)
	assert.Equal(t, http.StatusOK, status)
}

func TestAPI_LoginWrongPassword(t *testing.T) {
	srv, sender := newTestServer(t)
	c := newClient(t, srv)
	c.signUp(sender, "alice")

	status, resp := c.do(http.MethodPost, "/api/login", map[string]any{
		"username": "alice",
		"password": "wrong",
	})
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, false, resp["ok"])
}

func TestAPI_AnonymousCannotPost(t *testing.T) {
	srv, _ := newTestServer(t)
	c := newClient(t, srv)

	status, _ := c.do(http.MethodPost, "/api/posts", map[string]any{
		"title": "t", "content": "c",
	})
	assert.Equal(t, http.StatusUnauthorized, status)
}

func createPost(t *testing.T, c *client, title string) string {
	t.Helper()
	status, resp := c.do(http.MethodPost, "/api/posts", map[string]any{
		"title":   title,
		"content": "# Заголовок\n\nТекст статьи.",
		"tags":    []string{"go", "web"},
	})
	require.Equal(t, http.StatusOK, status)
	post := resp["post"].(map[string]any)
	return post["id"].(string)
}

func TestAPI_PostLifecycle(t *testing.T) {
	srv, sender := newTestServer(t)
	author := newClient(t, srv)
	author.signUp(sender, "author")
	stranger := newClient(t, srv)
	stranger.signUp(sender, "stranger")

	postID := createPost(t, author, "First post")

	// Просмотр увеличивает счетчик
	status, resp := author.do(http.MethodGet, "/api/posts/"+postID, nil)
	require.Equal(t, http.StatusOK, status)
	post := resp["post"].(map[string]any)
	assert.Equal(t, float64(1), post["views"])
	assert.Contains(t, post["contentHtml"].(string), "<h1")

	// Чужую статью нельзя ни редактировать, ни удалять
	status, _ = stranger.do(http.MethodPut, "/api/posts/"+postID, map[string]any{
		"title": "hijack", "content": "x",
	})
	assert.Equal(t, http.StatusForbidden, status)
	status, _ = stranger.do(http.MethodDelete, "/api/posts/"+postID, nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, resp = author.do(http.MethodPut, "/api/posts/"+postID, map[string]any{
		"title": "Renamed", "content": "updated", "tags": []string{"go"},
	})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Renamed", resp["post"].(map[string]any)["title"])

	status, _ = author.do(http.MethodDelete, "/api/posts/"+postID, nil)
	require.Equal(t, http.StatusOK, status)
	status, _ = author.do(http.MethodGet, "/api/posts/"+postID, nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestAPI_ViewCounter(t *testing.T) {
	srv, sender := newTestServer(t)
	c := newClient(t, srv)
	c.signUp(sender, "author")
	postID := createPost(t, c, "Post")

	// Каждый просмотр увеличивает счетчик ровно на единицу
	for i := 1; i <= 3; i++ {
		status, resp := c.do(http.MethodGet, "/api/posts/"+postID, nil)
		require.Equal(t, http.StatusOK, status)
		assert.Equal(t, float64(i), resp["post"].(map[string]any)["views"])
	}

	// Конкурентные просмотры не трогают хранимую запись мимо мьютекса
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			viewer := newClient(t, srv)
			status, _ := viewer.do(http.MethodGet, "/api/posts/"+postID, nil)
			assert.Equal(t, http.StatusOK, status)
		}()
	}
	wg.Wait()

	status, resp := c.do(http.MethodGet, "/api/posts/"+postID, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(8), resp["post"].(map[string]any)["views"])
}

func TestAPI_SearchAndTags(t *testing.T) {
	srv, sender := newTestServer(t)
	c := newClient(t, srv)
	c.signUp(sender, "author")
	createPost(t, c, "Golang concurrency")
	createPost(t, c, "Cooking pasta")

	status, resp := c.do(http.MethodGet, "/api/posts/search?q=golang", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, resp["posts"], 1)

	status, resp = c.do(http.MethodGet, "/api/tags/autocomplete?q=g", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, resp["tags"], "go")
}

func TestAPI_CommentsAndNotifications(t *testing.T) {
	srv, sender := newTestServer(t)
	author := newClient(t, srv)
	author.signUp(sender, "author")
	reader := newClient(t, srv)
	reader.signUp(sender, "reader")

	postID := createPost(t, author, "Post")

	status, resp := reader.do(http.MethodPost, "/api/posts/"+postID+"/comments", map[string]any{
		"content": "Отличная статья!",
	})
	require.Equal(t, http.StatusOK, status)
	comment := resp["comment"].(map[string]any)
	assert.Equal(t, float64(0), comment["level"])

	// Ответ на комментарий: уровень растет
	parentID := comment["id"].(string)
	status, resp = author.do(http.MethodPost, "/api/posts/"+postID+"/comments", map[string]any{
		"content":  "Спасибо",
		"parentId": parentID,
	})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(1), resp["comment"].(map[string]any)["level"])

	// У автора поста одно непрочитанное - о комментарии читателя
	status, resp = author.do(http.MethodGet, "/api/notifications/count", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(1), resp["count"])

	// Просмотр ленты уведомлений гасит счетчик
	status, resp = author.do(http.MethodGet, "/api/notifications", nil)
	require.Equal(t, http.StatusOK, status)
	ns := resp["notifications"].([]any)
	require.Len(t, ns, 1)
	assert.Equal(t, "评论了你的文章", ns[0].(map[string]any)["verb"])

	status, resp = author.do(http.MethodGet, "/api/notifications/count", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(0), resp["count"])

	// Ответ автора уведомил читателя
	status, resp = reader.do(http.MethodGet, "/api/notifications", nil)
	require.Equal(t, http.StatusOK, status)
	ns = resp["notifications"].([]any)
	require.Len(t, ns, 1)
	assert.Equal(t, "回复了你的评论", ns[0].(map[string]any)["verb"])
}

func TestAPI_DeleteCommentCascade(t *testing.T) {
	srv, sender := newTestServer(t)
	author := newClient(t, srv)
	author.signUp(sender, "author")
	reader := newClient(t, srv)
	reader.signUp(sender, "reader")

	postID := createPost(t, author, "Post")

	_, resp := reader.do(http.MethodPost, "/api/posts/"+postID+"/comments", map[string]any{"content": "root"})
	rootID := resp["comment"].(map[string]any)["id"].(string)
	_, resp = author.do(http.MethodPost, "/api/posts/"+postID+"/comments", map[string]any{
		"content": "reply", "parentId": rootID,
	})

	// Посторонний удалить не может
	stranger := newClient(t, srv)
	stranger.signUp(sender, "stranger")
	status, _ := stranger.do(http.MethodDelete, "/api/comments/"+rootID, nil)
	assert.Equal(t, http.StatusForbidden, status)

	// Автор поста удаляет чужой корень вместе с ответом
	status, resp = author.do(http.MethodDelete, "/api/comments/"+rootID, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(2), resp["removed"])

	status, resp = author.do(http.MethodGet, "/api/posts/"+postID+"/comments", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Empty(t, resp["comments"])
}

func TestAPI_LikeToggle(t *testing.T) {
	srv, sender := newTestServer(t)
	author := newClient(t, srv)
	author.signUp(sender, "author")
	reader := newClient(t, srv)
	reader.signUp(sender, "reader")

	postID := createPost(t, author, "Post")

	status, resp := reader.do(http.MethodPost, "/api/posts/"+postID+"/like", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, resp["liked"])
	assert.Equal(t, float64(1), resp["likesCount"])

	// Повторный лайк снимает отметку и отзывает уведомление
	status, resp = reader.do(http.MethodPost, "/api/posts/"+postID+"/like", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, false, resp["liked"])
	assert.Equal(t, float64(0), resp["likesCount"])

	status, resp = author.do(http.MethodGet, "/api/notifications/count", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(0), resp["count"])
}

func TestAPI_Follow(t *testing.T) {
	srv, sender := newTestServer(t)
	alice := newClient(t, srv)
	alice.signUp(sender, "alice")
	bob := newClient(t, srv)
	bob.signUp(sender, "bob")

	status, resp := alice.do(http.MethodPost, "/api/users/bob/follow", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, resp["following"])
	assert.Equal(t, float64(1), resp["followersCount"])

	status, resp = bob.do(http.MethodGet, "/api/notifications", nil)
	require.Equal(t, http.StatusOK, status)
	ns := resp["notifications"].([]any)
	require.Len(t, ns, 1)
	assert.Equal(t, "关注了你", ns[0].(map[string]any)["verb"])

	// Повторный вызов - отписка
	status, resp = alice.do(http.MethodPost, "/api/users/bob/follow", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, false, resp["following"])
	assert.Equal(t, float64(0), resp["followersCount"])

	// На себя подписаться нельзя
	status, _ = alice.do(http.MethodPost, "/api/users/alice/follow", nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestAPI_Messages(t *testing.T) {
	srv, sender := newTestServer(t)
	alice := newClient(t, srv)
	alice.signUp(sender, "alice")
	bob := newClient(t, srv)
	bob.signUp(sender, "bob")

	status, resp := alice.do(http.MethodPost, "/api/messages/bob", map[string]any{"content": "привет"})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "привет", resp["message"].(map[string]any)["content"])

	status, resp = bob.do(http.MethodGet, "/api/messages/count", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(1), resp["count"])

	status, resp = bob.do(http.MethodGet, "/api/messages", nil)
	require.Equal(t, http.StatusOK, status)
	convs := resp["conversations"].([]any)
	require.Len(t, convs, 1)
	conv := convs[0].(map[string]any)
	assert.Equal(t, "alice", conv["with"].(map[string]any)["username"])
	assert.Equal(t, float64(1), conv["unreadCount"])

	// Открытие переписки помечает входящие прочитанными
	status, resp = bob.do(http.MethodGet, "/api/messages/alice", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, resp["messages"], 1)

	status, resp = bob.do(http.MethodGet, "/api/messages/count", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(0), resp["count"])

	// Пустое сообщение и сообщение самому себе отклоняются
	status, _ = alice.do(http.MethodPost, "/api/messages/bob", map[string]any{"content": "  "})
	assert.Equal(t, http.StatusBadRequest, status)
	status, _ = alice.do(http.MethodPost, "/api/messages/alice", map[string]any{"content": "x"})
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestAPI_CommentValidation(t *testing.T) {
	srv, sender := newTestServer(t)
	c := newClient(t, srv)
	c.signUp(sender, "author")
	postID := createPost(t, c, "Post")

	status, _ := c.do(http.MethodPost, "/api/posts/"+postID+"/comments", map[string]any{"content": "   "})
	assert.Equal(t, http.StatusBadRequest, status)

	// Контент из одного только скрипта пустеет после очистки
	status, _ = c.do(http.MethodPost, "/api/posts/"+postID+"/comments", map[string]any{
		"content": "<script>alert(1)</script>",
	})
	assert.Equal(t, http.StatusBadRequest, status)
}
