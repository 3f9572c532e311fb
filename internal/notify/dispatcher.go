// Package notify реализует рассылку уведомлений по событиям платформы.
// Создание уведомления никогда не прерывает вызвавшую операцию:
// ошибки записи логируются и проглатываются.
package notify

import (
	"context"

	"github.com/UkralStul/blog-service/internal/domain"
	"github.com/UkralStul/blog-service/internal/storage"

	log "github.com/sirupsen/logrus"
)

// Тексты уведомлений. Пользовательские строки, не менять без миграции.
const (
	VerbCommentedPost  = "评论了你的文章"
	VerbRepliedComment = "回复了你的评论"
	VerbLikedPost      = "赞了你的文章"
	VerbFollowed       = "关注了你"
	VerbSentMessage    = "向你发送了私信"
)

// Dispatcher создает уведомления по правилам событий и передает их
// наблюдателю для живой доставки.
type Dispatcher struct {
	store    storage.Storage
	observer *Observer
}

// NewDispatcher создает диспетчер уведомлений. observer может быть nil.
func NewDispatcher(store storage.Storage, observer *Observer) *Dispatcher {
	return &Dispatcher{store: store, observer: observer}
}

// CommentCreated обрабатывает новый комментарий: уведомляет автора поста
// и автора родительского комментария. Себе уведомления не создаются,
// один получатель не уведомляется дважды об одном событии.
func (d *Dispatcher) CommentCreated(ctx context.Context, post *domain.Post, comment *domain.Comment) {
	actorID := comment.AuthorID

	if post.AuthorID != actorID {
		d.dispatch(ctx, post.AuthorID, actorID, VerbCommentedPost, domain.TargetComment, comment.ID)
	}

	if comment.ParentID == nil {
		return
	}
	parent, err := d.store.GetCommentByID(ctx, *comment.ParentID)
	if err != nil {
		log.Errorf("[notify] failed to load parent comment %s: %v", *comment.ParentID, err)
		return
	}
	if parent.AuthorID != actorID && parent.AuthorID != post.AuthorID {
		d.dispatch(ctx, parent.AuthorID, actorID, VerbRepliedComment, domain.TargetComment, comment.ID)
	}
}

// LikeToggledOn обрабатывает поставленный лайк. Снятие лайка
// уведомлений не создает, это обязанность вызывающего.
func (d *Dispatcher) LikeToggledOn(ctx context.Context, post *domain.Post, actorID string) {
	if post.AuthorID == actorID {
		return
	}
	d.dispatch(ctx, post.AuthorID, actorID, VerbLikedPost, domain.TargetPost, post.ID)
}

// LikeToggledOff обрабатывает снятый лайк: уведомление о лайке отзывается,
// так что пара лайк/анлайк не оставляет следа у получателя.
func (d *Dispatcher) LikeToggledOff(ctx context.Context, post *domain.Post, actorID string) {
	if post.AuthorID == actorID {
		return
	}
	err := d.store.RetractNotifications(ctx, post.AuthorID, actorID, VerbLikedPost, post.ID)
	if err != nil {
		log.Errorf("[notify] failed to retract like notification for user %s: %v", post.AuthorID, err)
	}
}

// FollowCreated обрабатывает новую подписку. Отписка уведомлений не создает.
func (d *Dispatcher) FollowCreated(ctx context.Context, followedID, actorID string) {
	d.dispatch(ctx, followedID, actorID, VerbFollowed, domain.TargetNone, "")
}

// MessageSent обрабатывает отправленное личное сообщение.
func (d *Dispatcher) MessageSent(ctx context.Context, m *domain.Message) {
	d.dispatch(ctx, m.RecipientID, m.SenderID, VerbSentMessage, domain.TargetMessage, m.ID)
}

// dispatch создает одно уведомление. Ошибка записи логируется
// и не возвращается наверх.
func (d *Dispatcher) dispatch(ctx context.Context, userID, actorID, verb string, kind domain.TargetKind, targetID string) {
	n := &domain.Notification{
		UserID:     userID,
		ActorID:    &actorID,
		Verb:       verb,
		TargetKind: kind,
	}
	// Отсутствующий target хранится как NULL: uuid-колонка
	// не принимает пустую строку
	if targetID != "" {
		n.TargetID = &targetID
	}

	created, err := d.store.CreateNotification(ctx, n)
	if err != nil {
		log.Errorf("[notify] failed to create notification for user %s: %v", userID, err)
		return
	}

	if d.observer != nil {
		d.observer.Publish(created)
	}
}
