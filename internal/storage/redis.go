package storage

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	logx "noticebot/pkg/logx"
)

const defaultRedisPrefix = "noticebot"

type redisStore struct {
	client *redis.Client
	key    string
	log    logx.Logger
}

func openRedis(cfg Config, log logx.Logger) (Store, error) {
	addr := strings.TrimSpace(cfg.Redis.Addr)
	if addr == "" {
		return nil, errors.New("redis addr is required for redis driver")
	}
	prefix := strings.TrimSpace(cfg.Redis.Prefix)
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrapf(err, "failed to reach redis at %s", addr)
	}
	return newRedisStore(client, prefix, log), nil
}

func newRedisStore(client *redis.Client, prefix string, log logx.Logger) *redisStore {
	return &redisStore{client: client, key: prefix + ":delivered", log: log}
}

func (s *redisStore) LoadNotices(ctx context.Context) ([]int64, error) {
	members, err := s.client.SMembers(ctx, s.key).Result()
	if err != nil {
		if err == redis.Nil {
			return []int64{}, nil
		}
		return nil, errors.Wrap(err, "failed to load delivered notices")
	}
	out := make([]int64, 0, len(members))
	for _, m := range members {
		id, err := strconv.ParseInt(m, 10, 64)
		if err != nil {
			s.log.Warn("skipping malformed ledger member", logx.String("member", m))
			continue
		}
		out = append(out, id)
	}
	return out, nil
}

func (s *redisStore) AddNotice(ctx context.Context, id int64, _ time.Time) error {
	if err := s.client.SAdd(ctx, s.key, strconv.FormatInt(id, 10)).Err(); err != nil {
		return errors.Wrap(err, "failed to record delivered notice")
	}
	return nil
}

func (s *redisStore) Close() error {
	return s.client.Close()
}
