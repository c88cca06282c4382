package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"screencast/internal/core/domain"
	"screencast/internal/core/ports"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "screencast:"

type RedisRecordingRepository struct {
	client *redis.Client
	prefix string
}

func NewRedisRecordingRepository(client *redis.Client) ports.RecordingRepository {
	return &RedisRecordingRepository{
		client: client,
		prefix: keyPrefix + "recording:",
	}
}

func (r *RedisRecordingRepository) recordingKey(id domain.RecordingID) string {
	return r.prefix + string(id)
}

// createdIndexKey is a sorted set of recording ids scored by creation time.
func (r *RedisRecordingRepository) createdIndexKey() string {
	return createdIndexKey
}

func (r *RedisRecordingRepository) Create(ctx context.Context, recording *domain.Recording) error {
	data, err := json.Marshal(recording)
	if err != nil {
		return fmt.Errorf("failed to marshal recording: %w", err)
	}

	key := r.recordingKey(recording.ID)
	created, err := r.client.SetNX(ctx, key, data, 0).Result()
	if err != nil {
		return fmt.Errorf("failed to set recording in Redis: %w", err)
	}
	if !created {
		return fmt.Errorf("recording already exists: %s", recording.ID)
	}

	member := redis.Z{Score: indexScore(recording), Member: string(recording.ID)}
	if err := r.client.ZAdd(ctx, r.createdIndexKey(), member).Err(); err != nil {
		return fmt.Errorf("failed to index recording: %w", err)
	}

	return nil
}

func (r *RedisRecordingRepository) GetByID(ctx context.Context, id domain.RecordingID) (*domain.Recording, error) {
	data, err := r.client.Get(ctx, r.recordingKey(id)).Result()
	if err == redis.Nil {
		return nil, domain.ErrRecordingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get recording from Redis: %w", err)
	}

	var recording domain.Recording
	if err := json.Unmarshal([]byte(data), &recording); err != nil {
		return nil, fmt.Errorf("failed to unmarshal recording: %w", err)
	}

	return &recording, nil
}

func (r *RedisRecordingRepository) Delete(ctx context.Context, id domain.RecordingID) error {
	var del *redis.IntCmd
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		del = pipe.Del(ctx, r.recordingKey(id))
		pipe.ZRem(ctx, r.createdIndexKey(), string(id))
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete recording from Redis: %w", err)
	}
	if del.Val() == 0 {
		return domain.ErrRecordingNotFound
	}

	return nil
}

func (r *RedisRecordingRepository) List(ctx context.Context) ([]*domain.Recording, error) {
	ids, err := r.client.ZRevRange(ctx, r.createdIndexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list recordings from Redis: %w", err)
	}

	recordings := make([]*domain.Recording, 0, len(ids))
	if len(ids) == 0 {
		return recordings, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.recordingKey(domain.RecordingID(id))
	}
	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load recordings from Redis: %w", err)
	}

	for _, value := range values {
		data, ok := value.(string)
		if !ok {
			// Index entry without a record
			continue
		}
		var recording domain.Recording
		if err := json.Unmarshal([]byte(data), &recording); err != nil {
			return nil, fmt.Errorf("failed to unmarshal recording: %w", err)
		}
		recordings = append(recordings, &recording)
	}

	return recordings, nil
}

func indexScore(recording *domain.Recording) float64 {
	return float64(recording.CreatedAt.UnixMilli())
}
