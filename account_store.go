package geogate

import (
	"bytes"
	"context"
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
	accountRecordKeyPrefix = "gar"
	accountRecordVersionV1 = 1
)

var (
	errAccountRecordNotFound    = errors.New("account record not found")
	errAccountRecordCorrupt     = errors.New("account record corrupt")
	errAccountRedisUnavailable  = errors.New("account record redis unavailable")
	errAccountRecordFieldTooBig = errors.New("account record field too long")
)

// accountRecord is the engine-owned slice of an account: the trusted
// home location and bookkeeping timestamps. The credential itself
// never enters this store.
type accountRecord struct {
	Email        string
	Name         string
	HomeLocation geo.Coordinate
	CreatedAt    int64
	UpdatedAt    int64
}

type accountRecordStore struct {
	redis *redis.Client
}

func newAccountRecordStore(redisClient *redis.Client) *accountRecordStore {
	return &accountRecordStore{redis: redisClient}
}

func (s *accountRecordStore) key(accountID string) string {
	return accountRecordKeyPrefix + ":" + accountID
}

// Save writes the record unconditionally. Used at registration, where
// the identity provider has already rejected duplicates.
func (s *accountRecordStore) Save(ctx context.Context, accountID string, record *accountRecord) error {
	encoded, err := encodeAccountRecord(record)
	if err != nil {
		return err
	}

	if err := s.redis.Set(ctx, s.key(accountID), encoded, 0).Err(); err != nil {
		return fmt.Errorf("%w: %v", errAccountRedisUnavailable, err)
	}
	return nil
}

// Get describes the get operation and its observable behavior.
//
// Get may return an error when input validation, dependency calls, or security checks fail.
// Get does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *accountRecordStore) Get(ctx context.Context, accountID string) (*accountRecord, error) {
	data, err := s.redis.Get(ctx, s.key(accountID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, errAccountRecordNotFound
		}
		return nil, fmt.Errorf("%w: %v", errAccountRedisUnavailable, err)
	}

	record, err := decodeAccountRecord(data)
	if err != nil {
		return nil, err
	}
	return record, nil
}

// UpdateHomeLocation replaces the trusted home coordinate under WATCH
// so that a concurrent relocation never produces a torn record.
func (s *accountRecordStore) UpdateHomeLocation(ctx context.Context, accountID string, home geo.Coordinate) error {
	const maxRetries = 4
	key := s.key(accountID)

	for i := 0; i < maxRetries; i++ {
		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}

			record, err := decodeAccountRecord(data)
			if err != nil {
				return err
			}

			record.HomeLocation = home
			record.UpdatedAt = time.Now().Unix()

			updated, err := encodeAccountRecord(record)
			if err != nil {
				return err
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, updated, 0)
				return nil
			})
			return err
		}, key)

		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return errAccountRecordNotFound
			}
			if errors.Is(err, errAccountRecordCorrupt) {
				return err
			}
			return fmt.Errorf("%w: %v", errAccountRedisUnavailable, err)
		}
		return nil
	}

	return errAccountRecordNotFound
}

// Delete removes the record. Idempotent.
func (s *accountRecordStore) Delete(ctx context.Context, accountID string) error {
	if err := s.redis.Del(ctx, s.key(accountID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", errAccountRedisUnavailable, err)
	}
	return nil
}

func encodeAccountRecord(record *accountRecord) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(accountRecordVersionV1)

	if err := binary.Write(&buf, binary.BigEndian, record.CreatedAt); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, record.UpdatedAt); err != nil {
		return nil, err
	}

	if err := binary.Write(&buf, binary.BigEndian, math.Float64bits(record.HomeLocation.Lat)); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, math.Float64bits(record.HomeLocation.Lon)); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, math.Float64bits(record.HomeLocation.AccuracyMeters)); err != nil {
		return nil, err
	}

	if len(record.HomeLocation.Source) > 255 {
		return nil, errAccountRecordFieldTooBig
	}
	buf.WriteByte(byte(len(record.HomeLocation.Source)))
	buf.WriteString(string(record.HomeLocation.Source))

	if len(record.Email) > 65535 || len(record.Name) > 65535 {
		return nil, errAccountRecordFieldTooBig
	}
	if err := binary.Write(&buf, binary.BigEndian, uint16(len(record.Email))); err != nil {
		return nil, err
	}
	buf.WriteString(record.Email)
	if err := binary.Write(&buf, binary.BigEndian, uint16(len(record.Name))); err != nil {
		return nil, err
	}
	buf.WriteString(record.Name)

	return buf.Bytes(), nil
}

func decodeAccountRecord(data []byte) (*accountRecord, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, errAccountRecordCorrupt
	}
	if version != accountRecordVersionV1 {
		return nil, errAccountRecordCorrupt
	}

	record := &accountRecord{}
	if err := binary.Read(reader, binary.BigEndian, &record.CreatedAt); err != nil {
		return nil, errAccountRecordCorrupt
	}
	if err := binary.Read(reader, binary.BigEndian, &record.UpdatedAt); err != nil {
		return nil, errAccountRecordCorrupt
	}

	var lat, lon, acc uint64
	if err := binary.Read(reader, binary.BigEndian, &lat); err != nil {
		return nil, errAccountRecordCorrupt
	}
	if err := binary.Read(reader, binary.BigEndian, &lon); err != nil {
		return nil, errAccountRecordCorrupt
	}
	if err := binary.Read(reader, binary.BigEndian, &acc); err != nil {
		return nil, errAccountRecordCorrupt
	}
	record.HomeLocation.Lat = math.Float64frombits(lat)
	record.HomeLocation.Lon = math.Float64frombits(lon)
	record.HomeLocation.AccuracyMeters = math.Float64frombits(acc)

	sourceLen, err := reader.ReadByte()
	if err != nil {
		return nil, errAccountRecordCorrupt
	}
	source := make([]byte, sourceLen)
	if _, err := io.ReadFull(reader, source); err != nil {
		return nil, errAccountRecordCorrupt
	}
	record.HomeLocation.Source = geo.Source(source)

	var emailLen uint16
	if err := binary.Read(reader, binary.BigEndian, &emailLen); err != nil {
		return nil, errAccountRecordCorrupt
	}
	email := make([]byte, emailLen)
	if _, err := io.ReadFull(reader, email); err != nil {
		return nil, errAccountRecordCorrupt
	}
	record.Email = string(email)

	var nameLen uint16
	if err := binary.Read(reader, binary.BigEndian, &nameLen); err != nil {
		return nil, errAccountRecordCorrupt
	}
	name := make([]byte, nameLen)
	if _, err := io.ReadFull(reader, name); err != nil {
		return nil, errAccountRecordCorrupt
	}
	record.Name = string(name)

	return record, nil
}
