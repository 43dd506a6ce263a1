// Package cachesvc caches monthly attendance summaries in Redis.
package cachesvc

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"

	"github.com/trezcool/mahudhurio/core"
	"github.com/trezcool/mahudhurio/core/attendance"
)

const (
	summaryKeyPrefix = "attendance:summary:"         // Hash: attendance:summary:{YYYY-MM} -> summaries of the month
	versionKeyPrefix = "attendance:summary:version:" // String: attendance:summary:version:{YYYY-MM} -> writes counter
	classField       = "class"
	studentPrefix    = "student:" // Hash field prefix: student:{id}
)

var errStaleVersion = errors.New("stale summary version")

// NewRedisClient connects to the configured Redis server.
func NewRedisClient(ctx context.Context, conf *core.Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     conf.Redis.Addr,
		Password: conf.Redis.Password,
		DB:       conf.Redis.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "pinging redis")
	}
	return client, nil
}

// NewFromConfig builds the summary cache when a Redis address is configured.
// It returns a nil cache and a no-op closer otherwise.
func NewFromConfig(ctx context.Context, conf *core.Config) (attendance.Cache, func() error, error) {
	if conf.Redis.Addr == "" {
		return nil, func() error { return nil }, nil
	}
	client, err := NewRedisClient(ctx, conf)
	if err != nil {
		return nil, nil, err
	}
	return NewRedisCache(client, conf.Redis.TTL), client.Close, nil
}

// RedisCache keeps one Hash per month so that any write to the month drops all its summaries at once.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

var _ attendance.Cache = (*RedisCache)(nil)

func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

func summaryKey(month attendance.Month) string {
	return summaryKeyPrefix + month.String()
}

func versionKey(month attendance.Month) string {
	return versionKeyPrefix + month.String()
}

func (c *RedisCache) MonthVersion(ctx context.Context, month attendance.Month) (int64, error) {
	return c.version(ctx, c.client, month)
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (c *RedisCache) version(ctx context.Context, cmd getter, month attendance.Month) (int64, error) {
	version, err := cmd.Get(ctx, versionKey(month)).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return version, errors.Wrapf(err, "reading version of %s", month)
}

func (c *RedisCache) get(ctx context.Context, month attendance.Month, field string, dst interface{}) (bool, error) {
	data, err := c.client.HGet(ctx, summaryKey(month), field).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrapf(err, "reading %s of %s", field, month)
	}
	if err = json.Unmarshal(data, dst); err != nil {
		return false, errors.Wrapf(err, "decoding %s of %s", field, month)
	}
	return true, nil
}

// set stores a summary computed at the given month version.
// Nothing is stored when the month was invalidated since, or while storing it.
func (c *RedisCache) set(ctx context.Context, month attendance.Month, version int64, field string, src interface{}) error {
	data, err := json.Marshal(src)
	if err != nil {
		return errors.Wrapf(err, "encoding %s of %s", field, month)
	}

	key := summaryKey(month)
	err = c.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := c.version(ctx, tx, month)
		if err != nil {
			return err
		}
		if current != version {
			return errStaleVersion
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, field, data)
			if c.ttl > 0 {
				pipe.Expire(ctx, key, c.ttl)
			}
			return nil
		})
		return err
	}, versionKey(month))

	if err == errStaleVersion || err == redis.TxFailedErr {
		return nil
	}
	return errors.Wrapf(err, "writing %s of %s", field, month)
}

func (c *RedisCache) GetClassSummary(ctx context.Context, month attendance.Month) (attendance.ClassSummary, bool, error) {
	var summary attendance.ClassSummary
	ok, err := c.get(ctx, month, classField, &summary)
	return summary, ok, err
}

func (c *RedisCache) SetClassSummary(ctx context.Context, month attendance.Month, version int64, summary attendance.ClassSummary) error {
	return c.set(ctx, month, version, classField, summary)
}

func (c *RedisCache) GetStudentSummary(ctx context.Context, studentID string, month attendance.Month) (attendance.StudentSummary, bool, error) {
	var summary attendance.StudentSummary
	ok, err := c.get(ctx, month, studentPrefix+studentID, &summary)
	return summary, ok, err
}

func (c *RedisCache) SetStudentSummary(ctx context.Context, month attendance.Month, version int64, summary attendance.StudentSummary) error {
	return c.set(ctx, month, version, studentPrefix+summary.StudentID, summary)
}

func (c *RedisCache) InvalidateMonths(ctx context.Context, months ...attendance.Month) error {
	if len(months) == 0 {
		return nil
	}
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, m := range months {
			pipe.Incr(ctx, versionKey(m))
			pipe.Del(ctx, summaryKey(m))
		}
		return nil
	})
	return errors.Wrap(err, "invalidating summaries")
}
