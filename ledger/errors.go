package ledger

import (
	"errors"
	"fmt"
)

var (
	ErrItemNotFound      = errors.New("item not found")
	ErrInsufficientStock = errors.New("not enough stock")
	ErrDuplicateItemID   = errors.New("item id already exists")
	ErrUserNotFound      = errors.New("user not found")
	ErrLockTimeout       = errors.New("ledger is busy, please retry")
	ErrInvalidRequest    = errors.New("invalid request")
)

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, fmt.Sprintf(format, args...))
}

// Phase 批处理所处阶段
type Phase string

const (
	PhaseValidating Phase = "Validating"
	PhaseApplying   Phase = "Applying"
)

// BatchError 指出是哪一行、哪个物品导致整批失败
type BatchError struct {
	Phase  Phase
	Line   int // 从 0 开始
	ItemID string
	Err    error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("%v for item %s (line %d)", e.Err, e.ItemID, e.Line+1)
}

func (e *BatchError) Unwrap() error { return e.Err }
