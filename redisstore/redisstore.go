// Package redisstore provides Redis-backed implementations of the session,
// reset-token, and registration-workflow stores, for deployments running
// more than one instance of the service.
//
// Redis native key TTLs replace the lazy expiry-on-read of the in-memory
// store: an expired entry is removed by Redis itself and reads simply miss.
// One consequence is that an expired reset token is indistinguishable from
// an unknown one here; the API layer merges the two cases anyway.
package redisstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/caregate/caregate/account"
	"github.com/caregate/caregate/domain"
)

// Store implements the token-keyed storage interfaces over a Redis client.
type Store struct {
	client *redis.Client
	prefix string
}

var (
	_ domain.SessionStorage      = (*Store)(nil)
	_ domain.ResetTokenStorage   = (*Store)(nil)
	_ domain.RegistrationStorage = (*Store)(nil)
)

// New creates a Store. An empty prefix defaults to "caregate:".
func New(client *redis.Client, prefix string) *Store {
	if prefix == "" {
		prefix = "caregate:"
	}
	return &Store{client: client, prefix: prefix}
}

func (s *Store) sessionKey(token string) string { return s.prefix + "session:" + token }
func (s *Store) resetKey(token string) string   { return s.prefix + "reset:" + token }
func (s *Store) regKey(token string) string     { return s.prefix + "registration:" + token }

func (s *Store) CreateSession(ctx context.Context, sess *account.Session) error {
	raw, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	ttl := time.Until(sess.ExpiresAt)
	if ttl <= 0 {
		return nil
	}
	if err := s.client.Set(ctx, s.sessionKey(sess.Token), raw, ttl).Err(); err != nil {
		return fmt.Errorf("redisstore: create session failed: %w", err)
	}
	return nil
}

func (s *Store) GetSession(ctx context.Context, token string) (*account.Session, error) {
	raw, err := s.client.Get(ctx, s.sessionKey(token)).Bytes()
	if err == redis.Nil {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redisstore: get session failed: %w", err)
	}
	var sess account.Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return nil, err
	}
	sess.Token = token
	return &sess, nil
}

func (s *Store) DeleteSession(ctx context.Context, token string) error {
	if err := s.client.Del(ctx, s.sessionKey(token)).Err(); err != nil {
		return fmt.Errorf("redisstore: delete session failed: %w", err)
	}
	return nil
}

func (s *Store) SaveResetToken(ctx context.Context, t *account.ResetToken) error {
	raw, err := json.Marshal(t)
	if err != nil {
		return err
	}
	ttl := time.Until(t.ExpiresAt)
	if ttl <= 0 {
		return nil
	}
	if err := s.client.Set(ctx, s.resetKey(t.Token), raw, ttl).Err(); err != nil {
		return fmt.Errorf("redisstore: save reset token failed: %w", err)
	}
	return nil
}

func (s *Store) ConsumeResetToken(ctx context.Context, token string) (string, error) {
	raw, err := s.client.GetDel(ctx, s.resetKey(token)).Bytes()
	if err == redis.Nil {
		return "", domain.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("redisstore: consume reset token failed: %w", err)
	}
	var t account.ResetToken
	if err := json.Unmarshal(raw, &t); err != nil {
		return "", err
	}
	return t.Email, nil
}

// initScript creates the workflow hash only when absent, attaching the
// one-hour TTL once. Re-running it against a live workflow changes nothing,
// so the deadline stays absolute.
var initScript = redis.NewScript(`
	if redis.call('EXISTS', KEYS[1]) == 1 then
		return 0
	end
	redis.call('HSET', KEYS[1], 'created_at', ARGV[1], 'updated_at', ARGV[1])
	redis.call('PEXPIRE', KEYS[1], ARGV[2])
	return 1
`)

// stepScript writes a step field only while the workflow key is live, so a
// save can never resurrect an entry Redis already expired.
var stepScript = redis.NewScript(`
	if redis.call('EXISTS', KEYS[1]) == 0 then
		return 0
	end
	redis.call('HSET', KEYS[1], ARGV[1], ARGV[2], 'updated_at', ARGV[3])
	return 1
`)

func (s *Store) InitRegistration(ctx context.Context, token string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	err := initScript.Run(ctx, s.client, []string{s.regKey(token)}, now, time.Hour.Milliseconds()).Err()
	if err != nil {
		return fmt.Errorf("redisstore: init registration failed: %w", err)
	}
	return nil
}

func (s *Store) SaveRegistrationStep(ctx context.Context, token, step string, payload json.RawMessage) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := stepScript.Run(ctx, s.client, []string{s.regKey(token)}, step, string(payload), now).Result()
	if err != nil {
		return fmt.Errorf("redisstore: save registration step failed: %w", err)
	}
	if n, ok := res.(int64); ok && n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *Store) GetRegistration(ctx context.Context, token string) (*account.RegistrationState, error) {
	fields, err := s.client.HGetAll(ctx, s.regKey(token)).Result()
	if err != nil {
		return nil, fmt.Errorf("redisstore: get registration failed: %w", err)
	}
	if len(fields) == 0 {
		return nil, domain.ErrNotFound
	}

	state := &account.RegistrationState{
		Token: token,
		Steps: make(map[string]json.RawMessage),
	}
	for k, v := range fields {
		switch k {
		case "created_at":
			state.CreatedAt, _ = time.Parse(time.RFC3339Nano, v)
		case "updated_at":
			state.UpdatedAt, _ = time.Parse(time.RFC3339Nano, v)
		default:
			state.Steps[k] = json.RawMessage(v)
		}
	}
	return state, nil
}

func (s *Store) DeleteRegistration(ctx context.Context, token string) error {
	if err := s.client.Del(ctx, s.regKey(token)).Err(); err != nil {
		return fmt.Errorf("redisstore: delete registration failed: %w", err)
	}
	return nil
}
