package domain

import "errors"

// Базовые ошибки доменного слоя. Конкретные сообщения оборачиваются
// через fmt.Errorf("%w: ...") и проверяются errors.Is на границе API.
var (
	ErrValidation   = errors.New("validation error")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("not found")
)
