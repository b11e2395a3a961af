package stepauth

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

const challengeRecordVersion1 = 1

var (
	errChallengeNotFound = errors.New("login challenge not found")
	errChallengeExpired  = errors.New("login challenge expired")
	errChallengeBackend  = errors.New("login challenge backend unavailable")
)

type loginChallenge struct {
	ID        string
	Factor    FactorKind
	Prompt    string
	ExpiresAt int64
	Attempts  uint16
}

// loginChallengeStore tracks at most one pending step-up challenge per
// username. Records live in Redis so a restarted process cannot mint a
// second concurrent challenge for the same user.
type loginChallengeStore struct {
	redis  redis.UniversalClient
	prefix string
}

func newLoginChallengeStore(redisClient redis.UniversalClient, prefix string) *loginChallengeStore {
	return &loginChallengeStore{redis: redisClient, prefix: prefix}
}

func (s *loginChallengeStore) key(username string) string {
	return s.prefix + ":" + username
}

// Begin stores a new challenge record unless one is already pending for
// the username. Returns false without overwriting when a live record
// exists.
func (s *loginChallengeStore) Begin(
	ctx context.Context,
	username string,
	record *loginChallenge,
	ttl time.Duration,
) (bool, error) {
	encoded, err := encodeLoginChallenge(record)
	if err != nil {
		return false, err
	}
	created, err := s.redis.SetNX(ctx, s.key(username), encoded, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", errChallengeBackend, err)
	}
	return created, nil
}

func (s *loginChallengeStore) Get(ctx context.Context, username string) (*loginChallenge, error) {
	data, err := s.redis.Get(ctx, s.key(username)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, errChallengeNotFound
		}
		return nil, fmt.Errorf("%w: %v", errChallengeBackend, err)
	}

	record, err := decodeLoginChallenge(data)
	if err != nil {
		return nil, err
	}
	if time.Now().Unix() > record.ExpiresAt {
		_, _ = s.redis.Del(ctx, s.key(username)).Result()
		return nil, errChallengeExpired
	}
	return record, nil
}

func (s *loginChallengeStore) Delete(ctx context.Context, username string) (bool, error) {
	n, err := s.redis.Del(ctx, s.key(username)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", errChallengeBackend, err)
	}
	return n > 0, nil
}

// RecordFailure increments the attempt counter under a Watch so two
// concurrent failures cannot both land on the same count. Returns true
// when the budget is spent; the record is deleted in that case.
func (s *loginChallengeStore) RecordFailure(
	ctx context.Context,
	username string,
	maxAttempts int,
) (bool, error) {
	const maxRetries = 4
	key := s.key(username)

	for i := 0; i < maxRetries; i++ {
		var exceeded bool
		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}

			record, err := decodeLoginChallenge(data)
			if err != nil {
				return err
			}
			if time.Now().Unix() > record.ExpiresAt {
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Del(ctx, key)
					return nil
				})
				if err != nil {
					return err
				}
				return errChallengeExpired
			}

			record.Attempts++
			if int(record.Attempts) >= maxAttempts {
				exceeded = true
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Del(ctx, key)
					return nil
				})
				return err
			}

			ttl := time.Until(time.Unix(record.ExpiresAt, 0))
			if ttl <= 0 {
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Del(ctx, key)
					return nil
				})
				if err != nil {
					return err
				}
				return errChallengeExpired
			}

			updated, err := encodeLoginChallenge(record)
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, updated, ttl)
				return nil
			})
			return err
		}, key)

		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return false, errChallengeNotFound
			}
			if errors.Is(err, errChallengeExpired) {
				return false, err
			}
			return false, fmt.Errorf("%w: %v", errChallengeBackend, err)
		}
		return exceeded, nil
	}

	return false, errChallengeNotFound
}

func encodeLoginChallenge(record *loginChallenge) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(challengeRecordVersion1)
	buf.WriteByte(byte(record.Factor))

	if err := binary.Write(&buf, binary.BigEndian, record.Attempts); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, record.ExpiresAt); err != nil {
		return nil, err
	}

	if len(record.ID) > 65535 || len(record.Prompt) > 65535 {
		return nil, errors.New("login challenge field length exceeded")
	}
	if err := binary.Write(&buf, binary.BigEndian, uint16(len(record.ID))); err != nil {
		return nil, err
	}
	buf.WriteString(record.ID)
	if err := binary.Write(&buf, binary.BigEndian, uint16(len(record.Prompt))); err != nil {
		return nil, err
	}
	buf.WriteString(record.Prompt)

	return buf.Bytes(), nil
}

func decodeLoginChallenge(data []byte) (*loginChallenge, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != challengeRecordVersion1 {
		return nil, errors.New("invalid login challenge version")
	}

	factor, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}

	record := &loginChallenge{Factor: FactorKind(factor)}
	if err := binary.Read(reader, binary.BigEndian, &record.Attempts); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &record.ExpiresAt); err != nil {
		return nil, err
	}

	var idLen uint16
	if err := binary.Read(reader, binary.BigEndian, &idLen); err != nil {
		return nil, err
	}
	id := make([]byte, idLen)
	if _, err := io.ReadFull(reader, id); err != nil {
		return nil, err
	}
	record.ID = string(id)

	var promptLen uint16
	if err := binary.Read(reader, binary.BigEndian, &promptLen); err != nil {
		return nil, err
	}
	prompt := make([]byte, promptLen)
	if _, err := io.ReadFull(reader, prompt); err != nil {
		return nil, err
	}
	record.Prompt = string(prompt)

	return record, nil
}
