package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"triviaduel/internal/domain"
)

// PackLoader fetches question packs from a backing store.
type PackLoader interface {
	LoadPack(ctx context.Context, packID string) (domain.QuestionPack, error)
}

// PackRepository caches serialized packs in Redis and falls back to a loader
// on cache miss. Packs are stored as: SET pack:{packID}:data {json}
type PackRepository struct {
	client *redis.Client
	loader PackLoader
	ttl    time.Duration
	sf     singleflight.Group
	rnd    *rand.Rand
}

func NewPackRepository(client *redis.Client, loader PackLoader, ttl time.Duration) *PackRepository {
	return &PackRepository{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *PackRepository) GetPack(ctx context.Context, packID string) (domain.QuestionPack, error) {
	key := r.key(packID)

	if pack, ok := r.fromCache(ctx, key); ok {
		return pack, nil
	}

	result, err, _ := r.sf.Do(packID, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if pack, ok := r.fromCache(ctx, key); ok {
			return pack, nil
		}

		pack, err := r.loader.LoadPack(ctx, packID)
		if err != nil {
			return domain.QuestionPack{}, err
		}

		data, err := json.Marshal(pack)
		if err != nil {
			return domain.QuestionPack{}, fmt.Errorf("marshal pack: %w", err)
		}
		// best-effort cache fill
		_ = r.client.Set(ctx, key, data, r.ttlWithJitter()).Err()

		return pack, nil
	})
	if err != nil {
		return domain.QuestionPack{}, err
	}
	return result.(domain.QuestionPack), nil
}

func (r *PackRepository) fromCache(ctx context.Context, key string) (domain.QuestionPack, bool) {
	raw, err := r.client.Get(ctx, key).Bytes()
	if err != nil || len(raw) == 0 {
		return domain.QuestionPack{}, false
	}
	var pack domain.QuestionPack
	if err := json.Unmarshal(raw, &pack); err != nil {
		return domain.QuestionPack{}, false
	}
	return pack, true
}

func (r *PackRepository) key(packID string) string {
	return "pack:" + packID + ":data"
}

func (r *PackRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
