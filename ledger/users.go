package ledger

import (
	"context"
	"errors"
	"strings"

	"Gin_postgres_redis_tool_crib/db"
	"Gin_postgres_redis_tool_crib/models"

	"golang.org/x/crypto/bcrypt"
)

const (
	minPinLen = 4
	maxPinLen = 6
)

var ErrPinMismatch = errors.New("pin does not match")

// 用户资料不涉及库存，不进 gate

func (s *Service) FindUser(ctx context.Context, userID string) (*models.User, error) {
	u, err := s.store.FindUserByID(ctx, strings.TrimSpace(userID))
	if errors.Is(err, db.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	return u, err
}

type ProfileInput struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
	Department  string `json:"department"`
	Cohort      string `json:"cohort"`
}

// UpsertUser 首次注册创建，之后只改资料；role 和 pin 不会被覆盖
func (s *Service) UpsertUser(ctx context.Context, in ProfileInput) (*models.User, error) {
	in.UserID = strings.TrimSpace(in.UserID)
	in.DisplayName = strings.TrimSpace(in.DisplayName)
	if in.UserID == "" {
		return nil, invalid("userId is required")
	}
	if in.DisplayName == "" {
		return nil, invalid("displayName is required")
	}
	return s.store.UpsertUserProfile(ctx, &models.User{
		ID:          in.UserID,
		DisplayName: in.DisplayName,
		Department:  strings.TrimSpace(in.Department),
		Cohort:      strings.TrimSpace(in.Cohort),
	})
}

// SetUserPin 只存 bcrypt 哈希
func (s *Service) SetUserPin(ctx context.Context, userID, pin string) error {
	if !validPin(pin) {
		return invalid("pin must be %d-%d digits", minPinLen, maxPinLen)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	err = s.store.UpdateUserFields(ctx, userID, map[string]any{"pin_hash": string(hash)})
	if errors.Is(err, db.ErrNotFound) {
		return ErrUserNotFound
	}
	return err
}

// VerifyPin 用于进入管理后台前的二次确认
func (s *Service) VerifyPin(ctx context.Context, userID, pin string) error {
	u, err := s.FindUser(ctx, userID)
	if err != nil {
		return err
	}
	if !u.HasPin() {
		return ErrPinMismatch
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PinHash), []byte(pin)); err != nil {
		return ErrPinMismatch
	}
	return nil
}

func validPin(pin string) bool {
	if len(pin) < minPinLen || len(pin) > maxPinLen {
		return false
	}
	for _, r := range pin {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
