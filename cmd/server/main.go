package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/UkralStul/blog-service/internal/api"
	"github.com/UkralStul/blog-service/internal/auth"
	"github.com/UkralStul/blog-service/internal/comments"
	"github.com/UkralStul/blog-service/internal/domain"
	"github.com/UkralStul/blog-service/internal/markdown"
	"github.com/UkralStul/blog-service/internal/notify"
	"github.com/UkralStul/blog-service/internal/storage"
	"github.com/UkralStul/blog-service/internal/storage/inmemory"
	"github.com/UkralStul/blog-service/internal/storage/postgres"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

const defaultPort = "8080"

func main() {
	if err := godotenv.Load(); err != nil {
		log.Debug("[main] no .env file, relying on environment")
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = defaultPort
	}

	storageType := flag.String("storage", "in-memory", "Storage type (in-memory or postgres)")
	flag.Parse()

	var store storage.Storage
	var err error

	log.Infof("[main] starting server with %s storage", *storageType)
	if *storageType == "postgres" {
		dsn := os.Getenv("DATABASE_URL")
		if dsn == "" {
			log.Fatal("[main] DATABASE_URL must be set for postgres storage")
		}
		store, err = postgres.New(dsn)
		if err != nil {
			log.Fatalf("[main] failed to connect to postgres: %v", err)
		}
	} else {
		store = inmemory.New()
		// Заполним данными для ручной проверки
		fillWithMockData(store)
	}

	authSvc := auth.NewService(store, auth.NewCodeStore(auth.DefaultCodeTTL, nil))
	commentsSvc := comments.NewService(store)
	observer := notify.NewObserver()
	dispatcher := notify.NewDispatcher(store, observer)

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: api.New(store, authSvc, commentsSvc, dispatcher, observer).Router(),
	}

	go func() {
		log.Infof("[main] listening on http://localhost:%s/api", port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("[main] server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("[main] shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Errorf("[main] graceful shutdown failed: %v", err)
	}
}

func fillWithMockData(s storage.Storage) {
	ctx := context.Background()

	hash, err := bcrypt.GenerateFromPassword([]byte("password"), bcrypt.DefaultCost)
	if err != nil {
		log.Fatalf("fillWithMockData: failed to hash password: %v", err)
	}

	alice, err := s.CreateUser(ctx, &domain.User{
		Username: "alice", Email: "alice@example.com", PasswordHash: string(hash),
	})
	if err != nil {
		log.Fatalf("fillWithMockData: failed to create user alice: %v", err)
	}
	bob, err := s.CreateUser(ctx, &domain.User{
		Username: "bob", Email: "bob@example.com", PasswordHash: string(hash),
	})
	if err != nil {
		log.Fatalf("fillWithMockData: failed to create user bob: %v", err)
	}

	content := "# Первая запись\n\nЭто содержимое тестовой статьи.\n\n```go\nfmt.Println(\"привет\")\n```"
	post, err := s.CreatePost(ctx, &domain.Post{
		Title:       "Тестовая статья",
		Content:     content,
		ContentHTML: markdown.Render(content),
		AuthorID:    alice.ID,
	}, []string{"go", "blog"})
	if err != nil {
		log.Fatalf("fillWithMockData: failed to create post: %v", err)
	}

	c1, err := s.CreateComment(ctx, &domain.Comment{
		PostID:      post.ID,
		AuthorID:    bob.ID,
		Content:     "Отличная статья!",
		ContentHTML: markdown.Render("Отличная статья!"),
	})
	if err != nil {
		log.Fatalf("fillWithMockData: failed to create comment: %v", err)
	}
	_, err = s.CreateComment(ctx, &domain.Comment{
		PostID:      post.ID,
		ParentID:    &c1.ID,
		Level:       1,
		AuthorID:    alice.ID,
		Content:     "Спасибо!",
		ContentHTML: markdown.Render("Спасибо!"),
	})
	if err != nil {
		log.Fatalf("fillWithMockData: failed to create nested comment: %v", err)
	}

	log.Infof("Mock data filled successfully. Created post ID: %s (users alice/bob, password \"password\")", post.ID)
}
