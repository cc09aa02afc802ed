package session

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrSessionNotFound is an exported constant or variable used by the location-gated auth engine.
var ErrSessionNotFound = errors.New("session not found")

// ErrSessionExpired is an exported constant or variable used by the location-gated auth engine.
var ErrSessionExpired = errors.New("session expired")

// ErrRedisUnavailable is an exported constant or variable used by the location-gated auth engine.
var ErrRedisUnavailable = errors.New("redis unavailable")

const sessionRecordVersionV1 = 1

// Store owns session issuance and strict expiry enforcement. One
// record per account; a fresh successful authentication overwrites
// it (last-writer-wins — both racers write a freshly computed
// now+lifetime).
//
// Store instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Store struct {
	redis  *redis.Client
	prefix string
	now    func() time.Time
}

// NewStore describes the newstore operation and its observable behavior.
//
// NewStore may return an error when input validation, dependency calls, or security checks fail.
// NewStore does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NewStore(redisClient *redis.Client, prefix string) *Store {
	if prefix == "" {
		prefix = "ggs"
	}
	return &Store{
		redis:  redisClient,
		prefix: prefix,
		now:    time.Now,
	}
}

func (s *Store) key(accountID string) string {
	return s.prefix + ":" + accountID
}

// Finalize sets the account's session expiry to now+lifetime and
// persists it. This is the only event that advances expiry; reloads
// and reconnects never touch it.
func (s *Store) Finalize(ctx context.Context, accountID string, lifetime time.Duration) (*Session, error) {
	if accountID == "" {
		return nil, ErrSessionNotFound
	}

	now := s.now()
	sess := &Session{
		AccountID: accountID,
		CreatedAt: now.Unix(),
		ExpiresAt: now.Add(lifetime).Unix(),
	}

	encoded, err := encodeSession(sess)
	if err != nil {
		return nil, err
	}

	// Redis TTL is belt and braces; the authoritative check is the
	// ExpiresAt comparison inside Get.
	if err := s.redis.Set(ctx, s.key(accountID), encoded, lifetime).Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return sess, nil
}

// Get loads the persisted session and enforces the absolute expiry.
// An expired record is deleted on observation and surfaced as
// [ErrSessionExpired].
func (s *Store) Get(ctx context.Context, accountID string) (*Session, error) {
	data, err := s.redis.Get(ctx, s.key(accountID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	sess, err := decodeSession(data)
	if err != nil {
		return nil, err
	}

	if s.now().Unix() > sess.ExpiresAt {
		_, _ = s.redis.Del(ctx, s.key(accountID)).Result()
		return nil, ErrSessionExpired
	}

	return sess, nil
}

// IsValid reports whether the account currently holds an unexpired
// session, re-derived from the persisted record.
func (s *Store) IsValid(ctx context.Context, accountID string) (bool, error) {
	_, err := s.Get(ctx, accountID)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) || errors.Is(err, ErrSessionExpired) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Invalidate clears the session pointer. Idempotent.
func (s *Store) Invalidate(ctx context.Context, accountID string) error {
	if err := s.redis.Del(ctx, s.key(accountID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func encodeSession(sess *Session) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(sessionRecordVersionV1)

	if err := binary.Write(&buf, binary.BigEndian, sess.CreatedAt); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, sess.ExpiresAt); err != nil {
		return nil, err
	}

	if len(sess.AccountID) > 65535 {
		return nil, errors.New("session account id too long")
	}
	if err := binary.Write(&buf, binary.BigEndian, uint16(len(sess.AccountID))); err != nil {
		return nil, err
	}
	buf.WriteString(sess.AccountID)

	return buf.Bytes(), nil
}

func decodeSession(data []byte) (*Session, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != sessionRecordVersionV1 {
		return nil, errors.New("invalid session record version")
	}

	sess := &Session{}
	if err := binary.Read(reader, binary.BigEndian, &sess.CreatedAt); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &sess.ExpiresAt); err != nil {
		return nil, err
	}

	var idLen uint16
	if err := binary.Read(reader, binary.BigEndian, &idLen); err != nil {
		return nil, err
	}

	accountID := make([]byte, idLen)
	if _, err := io.ReadFull(reader, accountID); err != nil {
		return nil, err
	}
	sess.AccountID = string(accountID)

	return sess, nil
}
