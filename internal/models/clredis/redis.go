package clredis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// CaptchaStore implémente base64Captcha.Store au-dessus de redis
type CaptchaStore struct {
	client     *redis.Client
	expiration time.Duration
}

// NewClient retourne nil si aucune adresse n'est configurée
func NewClient(addr string, db int) *redis.Client {
	if addr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})
}

func NewCaptchaStore(client *redis.Client) *CaptchaStore {
	return &CaptchaStore{
		client:     client,
		expiration: 5 * time.Minute,
	}
}

func (r *CaptchaStore) Set(id string, value string) error {
	return r.client.Set(context.Background(), "captcha:"+id, value, r.expiration).Err()
}

func (r *CaptchaStore) Get(id string, clear bool) string {
	ctx := context.Background()
	key := "captcha:" + id
	if clear {
		val, _ := r.client.GetDel(ctx, key).Result()
		return val
	}
	val, _ := r.client.Get(ctx, key).Result()
	return val
}

func (r *CaptchaStore) Verify(id, answer string, clear bool) bool {
	v := r.Get(id, clear)
	return v != "" && v == answer
}
