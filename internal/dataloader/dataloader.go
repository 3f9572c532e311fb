package dataloader

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/UkralStul/blog-service/internal/domain"
	"github.com/UkralStul/blog-service/internal/storage"
	"github.com/graph-gophers/dataloader"
)

type contextKey string

const key = contextKey("dataloaders")

// Loaders содержит все дата-лоадеры приложения.
type Loaders struct {
	UserByID *dataloader.Loader
}

// Middleware для внедрения лоадеров в контекст запроса.
// Лоадеры живут в пределах одного запроса: сериализация дерева
// комментариев или списка уведомлений собирает авторов одним
// обращением к хранилищу вместо запроса на каждую запись.
func Middleware(store storage.Storage, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		batchFn := func(ctx context.Context, keys dataloader.Keys) []*dataloader.Result {
			ids := make([]string, len(keys))
			for i, key := range keys {
				ids[i] = key.String()
			}

			// Один запрос к хранилищу на весь батч
			users, err := store.GetUsersByIDs(ctx, ids)
			if err != nil {
				results := make([]*dataloader.Result, len(keys))
				for i := range results {
					results[i] = &dataloader.Result{Error: err}
				}
				return results
			}

			// Результаты в том же порядке, что и ключи
			results := make([]*dataloader.Result, len(keys))
			for i, id := range ids {
				user, ok := users[id]
				if !ok {
					results[i] = &dataloader.Result{Error: fmt.Errorf("%w: user %s", domain.ErrNotFound, id)}
					continue
				}
				results[i] = &dataloader.Result{Data: user}
			}
			return results
		}

		loaders := Loaders{
			UserByID: dataloader.NewBatchedLoader(batchFn, dataloader.WithWait(time.Millisecond*1)),
		}

		ctx := context.WithValue(r.Context(), key, &loaders)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// For извлекает лоадеры из контекста; nil, если middleware не подключен.
func For(ctx context.Context) *Loaders {
	loaders, _ := ctx.Value(key).(*Loaders)
	return loaders
}

// User загружает пользователя через лоадер.
func (l *Loaders) User(ctx context.Context, id string) (*domain.User, error) {
	v, err := l.UserByID.Load(ctx, dataloader.StringKey(id))()
	if err != nil {
		return nil, err
	}
	return v.(*domain.User), nil
}
