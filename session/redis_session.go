package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/redis/go-redis/v9"
)

// Store 保存 WebAuthn 仪式（注册/登录/追加凭据）中间态，ttl 很短
type Store struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewStore(rdb *redis.Client, ttl time.Duration) *Store { return &Store{rdb: rdb, ttl: ttl} }

func regKey(userID string) string { return fmt.Sprintf("crib:webauthn:reg:%s", userID) }
func authKey(sid string) string   { return fmt.Sprintf("crib:webauthn:auth:%s", sid) }
func addKey(userID string) string { return fmt.Sprintf("crib:webauthn:add:%s", userID) }

func (s *Store) save(ctx context.Context, k string, sd *webauthn.SessionData) error {
	b, err := json.Marshal(sd)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, k, b, s.ttl).Err()
}

func (s *Store) load(ctx context.Context, k string) (*webauthn.SessionData, error) {
	b, err := s.rdb.Get(ctx, k).Bytes()
	if err != nil {
		return nil, err
	}
	var sd webauthn.SessionData
	if err := json.Unmarshal(b, &sd); err != nil {
		return nil, err
	}
	return &sd, nil
}

// 首次注册（按 userId）
func (s *Store) SaveReg(ctx context.Context, userID string, sd *webauthn.SessionData) error {
	return s.save(ctx, regKey(userID), sd)
}

func (s *Store) LoadReg(ctx context.Context, userID string) (*webauthn.SessionData, error) {
	return s.load(ctx, regKey(userID))
}

func (s *Store) DelReg(ctx context.Context, userID string) {
	_ = s.rdb.Del(ctx, regKey(userID)).Err()
}

// 登录（可发现凭据，按临时 sid）
func (s *Store) SaveAuth(ctx context.Context, sid string, sd *webauthn.SessionData) error {
	return s.save(ctx, authKey(sid), sd)
}

func (s *Store) LoadAuth(ctx context.Context, sid string) (*webauthn.SessionData, error) {
	return s.load(ctx, authKey(sid))
}

func (s *Store) DelAuth(ctx context.Context, sid string) { _ = s.rdb.Del(ctx, authKey(sid)).Err() }

// 已登录用户追加新设备
func (s *Store) SaveAdd(ctx context.Context, userID string, sd *webauthn.SessionData) error {
	return s.save(ctx, addKey(userID), sd)
}

func (s *Store) LoadAdd(ctx context.Context, userID string) (*webauthn.SessionData, error) {
	return s.load(ctx, addKey(userID))
}

func (s *Store) DelAdd(ctx context.Context, userID string) { _ = s.rdb.Del(ctx, addKey(userID)).Err() }
