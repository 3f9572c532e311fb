package domain

import "time"

// User представляет зарегистрированного пользователя.
type User struct {
	ID           string    `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	Username     string    `json:"username" gorm:"type:varchar(150);uniqueIndex;not null"`
	Email        string    `json:"email" gorm:"type:varchar(254);uniqueIndex;not null"`
	PasswordHash string    `json:"-" gorm:"type:varchar(128);not null"`
	CreatedAt    time.Time `json:"createdAt" gorm:"not null;default:now()"`
}

// Session - серверная сессия пользователя. Токен непрозрачен для клиента
// и передается в httponly cookie.
type Session struct {
	ID        string    `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	UserID    string    `json:"userId" gorm:"type:uuid;not null;index"`
	Token     string    `json:"-" gorm:"type:varchar(64);uniqueIndex;not null"`
	IsActive  bool      `json:"-" gorm:"not null;default:true"`
	CreatedAt time.Time `json:"createdAt" gorm:"not null;default:now()"`
}

// SessionTTL - срок жизни сессии (и cookie).
const SessionTTL = 7 * 24 * time.Hour

// Valid сообщает, действительна ли сессия на момент now.
func (s *Session) Valid(now time.Time) bool {
	return s.IsActive && s.CreatedAt.Add(SessionTTL).After(now)
}

// Tag - тег статьи. Связь многие-ко-многим с Post.
type Tag struct {
	ID    string  `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	Name  string  `json:"name" gorm:"type:varchar(50);uniqueIndex;not null"`
	Posts []*Post `json:"-" gorm:"many2many:post_tags"` // gorm only
}

// Post представляет статью. Content хранит исходный Markdown,
// ContentHTML - очищенный отрендеренный HTML.
type Post struct {
	ID          string     `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	Title       string     `json:"title" gorm:"type:varchar(200);not null"`
	Content     string     `json:"content" gorm:"type:text;not null"`
	ContentHTML string     `json:"contentHtml" gorm:"type:text;not null"`
	AuthorID    string     `json:"authorId" gorm:"type:uuid;not null;index"`
	Views       int64      `json:"views" gorm:"not null;default:0"`
	CreatedAt   time.Time  `json:"createdAt" gorm:"not null;default:now()"`
	UpdatedAt   time.Time  `json:"updatedAt" gorm:"not null;default:now()"`
	Tags        []*Tag     `json:"tags" gorm:"many2many:post_tags"`
	Comments    []*Comment `json:"-" gorm:"foreignKey:PostID;constraint:OnDelete:CASCADE"` // gorm only
	Likes       []*Like    `json:"-" gorm:"foreignKey:PostID;constraint:OnDelete:CASCADE"` // gorm only
}

// Comment представляет комментарий к статье.
// Инварианты: Level == parent.Level+1 при наличии родителя, иначе 0;
// PostID комментария всегда совпадает с PostID родителя.
type Comment struct {
	ID          string     `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	PostID      string     `json:"postId" gorm:"type:uuid;not null;index"`
	ParentID    *string    `json:"parentId,omitempty" gorm:"type:uuid;index"`
	Level       int        `json:"level" gorm:"not null;default:0"`
	AuthorID    string     `json:"authorId" gorm:"type:uuid;not null"`
	Content     string     `json:"content" gorm:"type:varchar(2000);not null"`
	ContentHTML string     `json:"contentHtml" gorm:"type:text;not null"`
	CreatedAt   time.Time  `json:"createdAt" gorm:"not null;default:now()"`
	Children    []*Comment `json:"-" gorm:"foreignKey:ParentID;constraint:OnDelete:CASCADE"` // gorm only
}

// Like - отметка "нравится". Пара (PostID, UserID) уникальна.
type Like struct {
	ID        string    `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	PostID    string    `json:"postId" gorm:"type:uuid;not null;uniqueIndex:idx_like_post_user"`
	UserID    string    `json:"userId" gorm:"type:uuid;not null;uniqueIndex:idx_like_post_user"`
	CreatedAt time.Time `json:"createdAt" gorm:"not null;default:now()"`
}

// Follow - подписка одного пользователя на другого.
// Пара (FollowerID, FollowedID) уникальна.
type Follow struct {
	ID         string    `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	FollowerID string    `json:"followerId" gorm:"type:uuid;not null;uniqueIndex:idx_follow_pair"`
	FollowedID string    `json:"followedId" gorm:"type:uuid;not null;uniqueIndex:idx_follow_pair;index"`
	CreatedAt  time.Time `json:"createdAt" gorm:"not null;default:now()"`
}

// TargetKind - тип объекта, к которому относится уведомление.
type TargetKind string

const (
	TargetNone    TargetKind = ""
	TargetPost    TargetKind = "post"
	TargetComment TargetKind = "comment"
	TargetMessage TargetKind = "message"
)

// Notification - уведомление получателю UserID о действии ActorID.
// Переход Unread -> read односторонний, меняет его только получатель.
type Notification struct {
	ID         string     `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	UserID     string     `json:"userId" gorm:"type:uuid;not null;index"`
	ActorID    *string    `json:"actorId,omitempty" gorm:"type:uuid"`
	Verb       string     `json:"verb" gorm:"type:varchar(140);not null"`
	TargetKind TargetKind `json:"targetKind,omitempty" gorm:"type:varchar(20)"`
	TargetID   *string    `json:"targetId,omitempty" gorm:"type:uuid"`
	Unread     bool       `json:"unread" gorm:"not null;default:true;index"`
	CreatedAt  time.Time  `json:"createdAt" gorm:"not null;default:now()"`
}

// Message - личное сообщение.
type Message struct {
	ID          string    `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	SenderID    string    `json:"senderId" gorm:"type:uuid;not null;index"`
	RecipientID string    `json:"recipientId" gorm:"type:uuid;not null;index"`
	Content     string    `json:"content" gorm:"type:text;not null"`
	IsRead      bool      `json:"isRead" gorm:"not null;default:false"`
	CreatedAt   time.Time `json:"createdAt" gorm:"not null;default:now()"`
}
