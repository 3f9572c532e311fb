// Package auth реализует cookie-сессии, регистрацию с кодом подтверждения
// и middleware для определения текущего пользователя.
package auth

import (
	"context"
	"fmt"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/UkralStul/blog-service/internal/domain"
	"github.com/UkralStul/blog-service/internal/storage"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

// CookieName - имя cookie с токеном сессии.
const CookieName = "session_token"

type ctxKey struct{}

var userKey = ctxKey{}

// Service - сервис аутентификации поверх хранилища.
type Service struct {
	store storage.Storage
	codes *CodeStore
}

// NewService создает сервис аутентификации.
func NewService(store storage.Storage, codes *CodeStore) *Service {
	return &Service{store: store, codes: codes}
}

// RequestCode выпускает код подтверждения для email и отправляет его.
// Возвращает код для удобства тестов.
func (s *Service) RequestCode(ctx context.Context, email string) (string, error) {
	email = strings.TrimSpace(email)
	if _, err := mail.ParseAddress(email); err != nil {
		return "", fmt.Errorf("%w: invalid email", domain.ErrValidation)
	}
	if _, err := s.store.GetUserByEmail(ctx, email); err == nil {
		return "", fmt.Errorf("%w: email already registered", domain.ErrValidation)
	}

	code := s.codes.Issue(email)
	if err := s.codes.Deliver(email, code); err != nil {
		return "", err
	}
	return code, nil
}

// Register создает пользователя после проверки кода подтверждения
// и сразу открывает сессию.
func (s *Service) Register(ctx context.Context, username, email, password, code string) (*domain.User, *domain.Session, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)
	if username == "" || email == "" || password == "" {
		return nil, nil, fmt.Errorf("%w: username, email and password are required", domain.ErrValidation)
	}
	if !s.codes.Verify(email, code) {
		return nil, nil, fmt.Errorf("%w: wrong or expired verification code", domain.ErrValidation)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, nil, err
	}

	user, err := s.store.CreateUser(ctx, &domain.User{
		Username:     username,
		Email:        email,
		PasswordHash: string(hash),
	})
	if err != nil {
		return nil, nil, err
	}

	session, err := s.openSession(ctx, user.ID)
	if err != nil {
		return nil, nil, err
	}
	return user, session, nil
}

// Login проверяет пару логин/пароль и открывает сессию.
// Неверный логин и неверный пароль неразличимы для вызывающего.
func (s *Service) Login(ctx context.Context, username, password string) (*domain.User, *domain.Session, error) {
	user, err := s.store.GetUserByUsername(ctx, username)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: wrong username or password", domain.ErrUnauthorized)
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return nil, nil, fmt.Errorf("%w: wrong username or password", domain.ErrUnauthorized)
	}

	session, err := s.openSession(ctx, user.ID)
	if err != nil {
		return nil, nil, err
	}
	return user, session, nil
}

func (s *Service) openSession(ctx context.Context, userID string) (*domain.Session, error) {
	return s.store.CreateSession(ctx, &domain.Session{
		UserID: userID,
		Token:  strings.ReplaceAll(uuid.NewString(), "-", ""),
	})
}

// Logout закрывает сессию по токену. Отсутствие сессии не считается ошибкой.
func (s *Service) Logout(ctx context.Context, token string) {
	if token == "" {
		return
	}
	if err := s.store.DeactivateSession(ctx, token); err != nil {
		log.Debugf("[auth] logout with unknown session token: %v", err)
	}
}

// UserByToken разрешает пользователя по токену сессии.
// Просроченная сессия деактивируется.
func (s *Service) UserByToken(ctx context.Context, token string) (*domain.User, error) {
	session, err := s.store.GetSessionByToken(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("%w: session", domain.ErrUnauthorized)
	}
	if !session.Valid(time.Now().UTC()) {
		s.Logout(ctx, token)
		return nil, fmt.Errorf("%w: session expired", domain.ErrUnauthorized)
	}
	return s.store.GetUserByID(ctx, session.UserID)
}

// Middleware кладет текущего пользователя (или nil) в контекст запроса.
// Проверок прав здесь нет: обработчики сами решают, что требовать.
func (s *Service) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if cookie, err := r.Cookie(CookieName); err == nil {
			if user, err := s.UserByToken(r.Context(), cookie.Value); err == nil {
				r = r.WithContext(context.WithValue(r.Context(), userKey, user))
			}
		}
		next.ServeHTTP(w, r)
	})
}

// UserFrom извлекает текущего пользователя из контекста; nil - аноним.
func UserFrom(ctx context.Context) *domain.User {
	user, _ := ctx.Value(userKey).(*domain.User)
	return user
}

// WithUser возвращает контекст с установленным пользователем.
// Используется в тестах обработчиков.
func WithUser(ctx context.Context, user *domain.User) context.Context {
	return context.WithValue(ctx, userKey, user)
}

// SessionCookie собирает httponly cookie для токена сессии.
func SessionCookie(token string) *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(domain.SessionTTL / time.Second),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
}

// ExpiredSessionCookie собирает cookie, удаляющую токен у клиента.
func ExpiredSessionCookie() *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
}
