package geogate

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/goGeoGate/geo"
)

const (
	pendingChallengeKeyPrefix = "gpc"
	pendingAccountKeyPrefix   = "gpa"
	pendingRecordVersionV1    = 1
)

var (
	errPendingNotFound         = errors.New("pending verification not found")
	errPendingCodeMismatch     = errors.New("pending verification code mismatch")
	errPendingAttemptsExceeded = errors.New("pending verification attempts exceeded")
	errPendingRedisUnavailable = errors.New("pending verification redis unavailable")
	errPendingRecordCorrupt    = errors.New("pending verification record corrupt")
	errPendingAccountIDTooLong = errors.New("pending verification account id too long")
	errPendingProviderTooLong  = errors.New("pending verification provider name too long")
)

// Issuing a new challenge atomically revokes the account's previous
// one: the account index points at the live challenge id, and the
// stale challenge key is deleted in the same script invocation. A
// stolen step-up token from an earlier attempt is therefore dead the
// moment a newer attempt starts.
const supersedeChallengeScript = `
local prior = redis.call("GET", KEYS[2])
if prior and prior ~= ARGV[1] then
  redis.call("DEL", KEYS[3] .. prior)
end
redis.call("SET", KEYS[1], ARGV[2], "PX", ARGV[3])
redis.call("SET", KEYS[2], ARGV[1], "PX", ARGV[3])
return 1
`

var supersedeChallengeLua = redis.NewScript(supersedeChallengeScript)

type pendingVerificationRecord struct {
	AccountID string
	CodeHash  [32]byte
	Tier      RiskTier
	Attempts  uint16
	ExpiresAt int64
	Candidate geo.Coordinate
	HasClient bool
}

type pendingVerificationStore struct {
	redis *redis.Client
}

func newPendingVerificationStore(redisClient *redis.Client) *pendingVerificationStore {
	return &pendingVerificationStore{redis: redisClient}
}

func (s *pendingVerificationStore) key(challengeID string) string {
	return pendingChallengeKeyPrefix + ":" + challengeID
}

func (s *pendingVerificationStore) accountKey(accountID string) string {
	return pendingAccountKeyPrefix + ":" + accountID
}

// Save persists the challenge and repoints the per-account index at
// it, revoking any prior challenge for the same account.
func (s *pendingVerificationStore) Save(
	ctx context.Context,
	challengeID string,
	record *pendingVerificationRecord,
	ttl time.Duration,
) error {
	encoded, err := encodePendingVerificationRecord(record)
	if err != nil {
		return err
	}

	keys := []string{
		s.key(challengeID),
		s.accountKey(record.AccountID),
		pendingChallengeKeyPrefix + ":",
	}
	args := []any{challengeID, encoded, ttl.Milliseconds()}

	if err := supersedeChallengeLua.Run(ctx, s.redis, keys, args...).Err(); err != nil {
		return fmt.Errorf("%w: %v", errPendingRedisUnavailable, err)
	}

	return nil
}

// Consume verifies the provided code hash against the stored one and
// deletes the challenge on success or on attempt exhaustion. Failed
// attempts below the cap persist the incremented counter under the
// remaining TTL. The code comparison is constant time.
func (s *pendingVerificationStore) Consume(
	ctx context.Context,
	challengeID string,
	providedHash [32]byte,
	maxAttempts int,
) (*pendingVerificationRecord, error) {
	const maxRetries = 4
	key := s.key(challengeID)

	for i := 0; i < maxRetries; i++ {
		var matched *pendingVerificationRecord

		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}

			record, err := decodePendingVerificationRecord(data)
			if err != nil {
				return err
			}

			if time.Now().Unix() > record.ExpiresAt {
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Del(ctx, key)
					pipe.Del(ctx, s.accountKey(record.AccountID))
					return nil
				})
				if err != nil {
					return err
				}
				return errPendingNotFound
			}

			if subtle.ConstantTimeCompare(record.CodeHash[:], providedHash[:]) != 1 {
				record.Attempts++
				if int(record.Attempts) >= maxAttempts {
					_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
						pipe.Del(ctx, key)
						pipe.Del(ctx, s.accountKey(record.AccountID))
						return nil
					})
					if err != nil {
						return err
					}
					return errPendingAttemptsExceeded
				}

				ttl := time.Until(time.Unix(record.ExpiresAt, 0))
				if ttl <= 0 {
					_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
						pipe.Del(ctx, key)
						pipe.Del(ctx, s.accountKey(record.AccountID))
						return nil
					})
					if err != nil {
						return err
					}
					return errPendingNotFound
				}

				updated, err := encodePendingVerificationRecord(record)
				if err != nil {
					return err
				}

				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Set(ctx, key, updated, ttl)
					return nil
				})
				if err != nil {
					return err
				}
				return errPendingCodeMismatch
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Del(ctx, key)
				pipe.Del(ctx, s.accountKey(record.AccountID))
				return nil
			})
			if err != nil {
				return err
			}

			matched = record
			return nil
		}, key)

		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			switch {
			case errors.Is(err, redis.Nil):
				return nil, errPendingNotFound
			case errors.Is(err, errPendingNotFound),
				errors.Is(err, errPendingCodeMismatch),
				errors.Is(err, errPendingAttemptsExceeded),
				errors.Is(err, errPendingRecordCorrupt):
				return nil, err
			default:
				return nil, fmt.Errorf("%w: %v", errPendingRedisUnavailable, err)
			}
		}

		return matched, nil
	}

	return nil, errPendingNotFound
}

// Cancel discards the challenge without verifying anything. Idempotent.
func (s *pendingVerificationStore) Cancel(ctx context.Context, challengeID string) error {
	data, err := s.redis.Get(ctx, s.key(challengeID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", errPendingRedisUnavailable, err)
	}

	record, err := decodePendingVerificationRecord(data)
	if err != nil {
		_, _ = s.redis.Del(ctx, s.key(challengeID)).Result()
		return nil
	}

	if err := s.redis.Del(ctx, s.key(challengeID), s.accountKey(record.AccountID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", errPendingRedisUnavailable, err)
	}
	return nil
}

func encodePendingVerificationRecord(record *pendingVerificationRecord) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(pendingRecordVersionV1)
	buf.WriteByte(byte(record.Tier))
	if record.HasClient {
		buf.WriteByte(1)
	} else {
		buf.WriteByte(0)
	}

	if err := binary.Write(&buf, binary.BigEndian, record.Attempts); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, record.ExpiresAt); err != nil {
		return nil, err
	}

	if err := binary.Write(&buf, binary.BigEndian, math.Float64bits(record.Candidate.Lat)); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, math.Float64bits(record.Candidate.Lon)); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, math.Float64bits(record.Candidate.AccuracyMeters)); err != nil {
		return nil, err
	}

	if len(record.Candidate.Source) > 255 {
		return nil, errPendingProviderTooLong
	}
	buf.WriteByte(byte(len(record.Candidate.Source)))
	buf.WriteString(string(record.Candidate.Source))

	if len(record.AccountID) > 65535 {
		return nil, errPendingAccountIDTooLong
	}
	if err := binary.Write(&buf, binary.BigEndian, uint16(len(record.AccountID))); err != nil {
		return nil, err
	}
	buf.WriteString(record.AccountID)
	buf.Write(record.CodeHash[:])

	return buf.Bytes(), nil
}

func decodePendingVerificationRecord(data []byte) (*pendingVerificationRecord, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, errPendingRecordCorrupt
	}
	if version != pendingRecordVersionV1 {
		return nil, errPendingRecordCorrupt
	}

	tier, err := reader.ReadByte()
	if err != nil {
		return nil, errPendingRecordCorrupt
	}
	hasClient, err := reader.ReadByte()
	if err != nil {
		return nil, errPendingRecordCorrupt
	}

	record := &pendingVerificationRecord{
		Tier:      RiskTier(tier),
		HasClient: hasClient == 1,
	}

	if err := binary.Read(reader, binary.BigEndian, &record.Attempts); err != nil {
		return nil, errPendingRecordCorrupt
	}
	if err := binary.Read(reader, binary.BigEndian, &record.ExpiresAt); err != nil {
		return nil, errPendingRecordCorrupt
	}

	var lat, lon, acc uint64
	if err := binary.Read(reader, binary.BigEndian, &lat); err != nil {
		return nil, errPendingRecordCorrupt
	}
	if err := binary.Read(reader, binary.BigEndian, &lon); err != nil {
		return nil, errPendingRecordCorrupt
	}
	if err := binary.Read(reader, binary.BigEndian, &acc); err != nil {
		return nil, errPendingRecordCorrupt
	}
	record.Candidate.Lat = math.Float64frombits(lat)
	record.Candidate.Lon = math.Float64frombits(lon)
	record.Candidate.AccuracyMeters = math.Float64frombits(acc)

	sourceLen, err := reader.ReadByte()
	if err != nil {
		return nil, errPendingRecordCorrupt
	}
	source := make([]byte, sourceLen)
	if _, err := io.ReadFull(reader, source); err != nil {
		return nil, errPendingRecordCorrupt
	}
	record.Candidate.Source = geo.Source(source)

	var idLen uint16
	if err := binary.Read(reader, binary.BigEndian, &idLen); err != nil {
		return nil, errPendingRecordCorrupt
	}
	accountID := make([]byte, idLen)
	if _, err := io.ReadFull(reader, accountID); err != nil {
		return nil, errPendingRecordCorrupt
	}
	record.AccountID = string(accountID)

	if _, err := io.ReadFull(reader, record.CodeHash[:]); err != nil {
		return nil, errPendingRecordCorrupt
	}

	return record, nil
}
