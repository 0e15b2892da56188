package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache 可选的 redis 读缓存（status 端点等短 TTL 场景）；
// 未启用时所有方法都是 miss 直通。
type Cache struct {
	client *redis.Client
}

func New(addr string) *Cache {
	return &Cache{client: redis.NewClient(&redis.Options{Addr: addr})}
}

// Disabled 返回直通缓存
func Disabled() *Cache { return &Cache{} }

func (c *Cache) Enabled() bool { return c.client != nil }

func (c *Cache) Get(ctx context.Context, key string) (string, bool) {
	if c.client == nil {
		return "", false
	}
	v, err := c.client.Get(ctx, key).Result()
	if err != nil {
		return "", false
	}
	return v, true
}

func (c *Cache) Set(ctx context.Context, key, val string, ttl time.Duration) {
	if c.client == nil {
		return
	}
	// 缓存失败不影响主流程
	_ = c.client.Set(ctx, key, val, ttl).Err()
}

func (c *Cache) Close() error {
	if c.client == nil {
		return nil
	}
	return c.client.Close()
}
