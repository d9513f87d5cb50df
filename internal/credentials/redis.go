package credentials

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"pamana/notes/internal/model"
)

const (
	fieldAccess  = "access"
	fieldRefresh = "refresh"
)

// RedisStore shares one profile's session between processes on the same
// machine or lab network. Both fields live in one hash.
type RedisStore struct {
	client *redis.Client
	key    string
}

func NewRedisStore(client *redis.Client, profile string) *RedisStore {
	return &RedisStore{client: client, key: credentialsKey(profile)}
}

var _ Store = (*RedisStore)(nil)

func (s *RedisStore) Set(ctx context.Context, cred model.Credential) error {
	values := make([]interface{}, 0, 4)
	if cred.Access != "" {
		values = append(values, fieldAccess, cred.Access)
	}
	if cred.Refresh != "" {
		values = append(values, fieldRefresh, cred.Refresh)
	}
	if len(values) == 0 {
		return nil
	}
	// a single HSET is atomic for both fields
	return errors.Wrap(s.client.HSet(ctx, s.key, values...).Err(), "store credentials")
}

func (s *RedisStore) Get(ctx context.Context) (model.Credential, bool, error) {
	values, err := s.client.HGetAll(ctx, s.key).Result()
	if err == redis.Nil {
		return model.Credential{}, false, nil
	}
	if err != nil {
		return model.Credential{}, false, errors.Wrap(err, "load credentials")
	}
	cred := model.Credential{Access: values[fieldAccess], Refresh: values[fieldRefresh]}
	return cred, !cred.Empty(), nil
}

func (s *RedisStore) Clear(ctx context.Context) error {
	return errors.Wrap(s.client.Del(ctx, s.key).Err(), "clear credentials")
}

func credentialsKey(profile string) string {
	if profile == "" {
		profile = "default"
	}
	return fmt.Sprintf("pamana:credentials:%s", profile)
}
