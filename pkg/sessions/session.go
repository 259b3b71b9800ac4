package sessions

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	apperrors "github.com/tendant/lms-auth/pkg/errors"
	"github.com/tendant/lms-auth/pkg/identity"
)

var ErrSessionNotFound = errors.New("session not found")

const (
	DefaultIdleTimeout     = 30 * time.Minute
	DefaultAbsoluteTimeout = 24 * time.Hour
	DefaultKeyPrefix       = "lms:sess:"

	idBytes = 32
)

// Session is the server-side record behind a session cookie. The identity
// fields are a reference for quick authorization; callers re-check status
// against the credential store.
type Session struct {
	ID           string    `json:"-"`
	IdentityID   uuid.UUID `json:"identity_id"`
	Email        string    `json:"email"`
	Role         string    `json:"role"`
	Organization string    `json:"organization,omitempty"`
	Clearance    string    `json:"clearance"`
	CreatedAt    time.Time `json:"created_at"`
	ExpiresAt    time.Time `json:"expires_at"`
	LastSeenAt   time.Time `json:"last_seen_at"`
}

// Store keeps sessions in Redis. Each access slides the key TTL forward by
// the idle timeout but never past the absolute expiry fixed at creation.
type Store struct {
	redis    redis.UniversalClient
	prefix   string
	idle     time.Duration
	absolute time.Duration
	now      func() time.Time
}

type Option func(*Store)

func WithIdleTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.idle = d
		}
	}
}

func WithAbsoluteTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.absolute = d
		}
	}
}

func WithKeyPrefix(prefix string) Option {
	return func(s *Store) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

func NewStore(client redis.UniversalClient, opts ...Option) *Store {
	s := &Store{
		redis:    client,
		prefix:   DefaultKeyPrefix,
		idle:     DefaultIdleTimeout,
		absolute: DefaultAbsoluteTimeout,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) key(id string) string {
	return s.prefix + id
}

func (s *Store) indexKey(identityID uuid.UUID) string {
	return s.prefix + "idx:" + identityID.String()
}

func newSessionID() (string, error) {
	b := make([]byte, idBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate session id: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// Create starts a session for the identity.
func (s *Store) Create(ctx context.Context, i identity.Identity) (*Session, error) {
	id, err := newSessionID()
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	sess := &Session{
		ID:           id,
		IdentityID:   i.ID,
		Email:        i.Email,
		Role:         string(i.Role),
		Organization: i.Organization,
		Clearance:    string(i.Clearance),
		CreatedAt:    now,
		ExpiresAt:    now.Add(s.absolute),
		LastSeenAt:   now,
	}
	data, err := json.Marshal(sess)
	if err != nil {
		return nil, err
	}

	idx := s.indexKey(i.ID)
	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key(id), data, s.ttl(sess, now))
		pipe.SAdd(ctx, idx, id)
		pipe.Expire(ctx, idx, s.absolute)
		return nil
	})
	if err != nil {
		return nil, apperrors.ServiceUnavailable(err, "session store unavailable")
	}
	return sess, nil
}

// ttl is the idle timeout capped by the remaining absolute lifetime.
func (s *Store) ttl(sess *Session, now time.Time) time.Duration {
	remaining := sess.ExpiresAt.Sub(now)
	if remaining < s.idle {
		return remaining
	}
	return s.idle
}

func (s *Store) get(ctx context.Context, id string) (*Session, error) {
	if id == "" {
		return nil, ErrSessionNotFound
	}
	data, err := s.redis.Get(ctx, s.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSessionNotFound
		}
		return nil, apperrors.ServiceUnavailable(err, "session store unavailable")
	}
	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		// A record we cannot read is as good as gone.
		_ = s.redis.Del(ctx, s.key(id)).Err()
		return nil, ErrSessionNotFound
	}
	sess.ID = id
	return &sess, nil
}

// Load returns the session and slides its expiry. ErrSessionNotFound covers
// unknown, idle-expired and absolutely-expired sessions alike.
func (s *Store) Load(ctx context.Context, id string) (*Session, error) {
	sess, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	if !now.Before(sess.ExpiresAt) {
		_ = s.Destroy(ctx, id)
		return nil, ErrSessionNotFound
	}

	sess.LastSeenAt = now
	data, err := json.Marshal(sess)
	if err != nil {
		return nil, err
	}
	// XX: never resurrect a session destroyed since the read.
	ok, err := s.redis.SetXX(ctx, s.key(id), data, s.ttl(sess, now)).Result()
	if err != nil {
		return nil, apperrors.ServiceUnavailable(err, "session store unavailable")
	}
	if !ok {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

// Touch records activity on the session.
func (s *Store) Touch(ctx context.Context, id string) error {
	_, err := s.Load(ctx, id)
	return err
}

// Destroy removes the session. Destroying an unknown session is not an error.
func (s *Store) Destroy(ctx context.Context, id string) error {
	sess, err := s.get(ctx, id)
	if errors.Is(err, ErrSessionNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.key(id))
		pipe.SRem(ctx, s.indexKey(sess.IdentityID), id)
		return nil
	})
	if err != nil {
		return apperrors.ServiceUnavailable(err, "session store unavailable")
	}
	return nil
}

// DestroyAllForIdentity ends every session of an identity, for example after
// a password reset.
func (s *Store) DestroyAllForIdentity(ctx context.Context, identityID uuid.UUID) error {
	idx := s.indexKey(identityID)
	ids, err := s.redis.SMembers(ctx, idx).Result()
	if err != nil {
		return apperrors.ServiceUnavailable(err, "session store unavailable")
	}
	keys := make([]string, 0, len(ids)+1)
	for _, id := range ids {
		keys = append(keys, s.key(id))
	}
	keys = append(keys, idx)
	if err := s.redis.Del(ctx, keys...).Err(); err != nil {
		return apperrors.ServiceUnavailable(err, "session store unavailable")
	}
	return nil
}
