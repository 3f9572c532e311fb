package auth

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// DefaultCodeTTL - срок действия кода подтверждения.
const DefaultCodeTTL = 5 * time.Minute

// Sender доставляет письмо с кодом подтверждения.
type Sender interface {
	Send(email, subject, body string) error
}

// LogSender пишет письмо в лог вместо отправки. Используется там,
// где SMTP не настроен, и в тестах.
type LogSender struct{}

func (LogSender) Send(email, subject, body string) error {
	log.Infof("[mail] to=%s subject=%q body=%q", email, subject, body)
	return nil
}

type codeEntry struct {
	Code     string
	IssuedAt time.Time
	TTL      time.Duration
}

// CodeStore - короткоживущее хранилище кодов подтверждения по email.
// Срок действия проверяется явно при верификации, код одноразовый.
type CodeStore struct {
	mu      sync.Mutex
	entries map[string]codeEntry
	ttl     time.Duration
	sender  Sender
	now     func() time.Time
}

// NewCodeStore создает хранилище кодов с заданным TTL.
func NewCodeStore(ttl time.Duration, sender Sender) *CodeStore {
	if ttl <= 0 {
		ttl = DefaultCodeTTL
	}
	if sender == nil {
		sender = LogSender{}
	}
	return &CodeStore{
		entries: make(map[string]codeEntry),
		ttl:     ttl,
		sender:  sender,
		now:     time.Now,
	}
}

// Issue выпускает шестизначный код для email, замещая предыдущий.
func (c *CodeStore) Issue(email string) string {
	code := fmt.Sprintf("%06d", rand.Intn(1000000))

	c.mu.Lock()
	c.entries[email] = codeEntry{Code: code, IssuedAt: c.now(), TTL: c.ttl}
	c.mu.Unlock()

	return code
}

// Deliver отправляет письмо с кодом получателю.
func (c *CodeStore) Deliver(email, code string) error {
	body := fmt.Sprintf("您的注册验证码为: %s，有效期 %d 分钟。", code, int(c.ttl.Minutes()))
	return c.sender.Send(email, "注册验证码", body)
}

// Verify проверяет код: совпадение и срок действия.
// Успешная проверка поглощает код.
func (c *CodeStore) Verify(email, code string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[email]
	if !ok {
		return false
	}
	if c.now().Sub(entry.IssuedAt) > entry.TTL {
		delete(c.entries, email)
		return false
	}
	if entry.Code != code {
		return false
	}
	delete(c.entries, email)
	return true
}
