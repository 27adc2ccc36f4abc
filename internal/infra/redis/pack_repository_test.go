package redis

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"triviaduel/internal/domain"
	"triviaduel/internal/infra/memory"
)

func TestPackRepositoryCachesInRedis(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	client := newClient(mr)

	loader := &countingLoader{
		PackLoader: memory.NewStaticPackLoader(map[string]domain.QuestionPack{
			"pack-1": samplePack(),
		}),
	}
	repo := NewPackRepository(client, loader, time.Minute)

	pack, err := repo.GetPack(context.Background(), "pack-1")
	if err != nil {
		t.Fatalf("get pack: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected loader called once, got %d", loader.calls)
	}
	if len(pack.Questions) != 1 || pack.Questions[0].ID != "q1" {
		t.Fatalf("unexpected pack: %+v", pack)
	}

	// Second call should hit the Redis cache, loader not incremented.
	_, _ = repo.GetPack(context.Background(), "pack-1")
	if loader.calls != 1 {
		t.Fatalf("expected cache hit, loader calls=%d", loader.calls)
	}

	if !mr.Exists("pack:pack-1:data") {
		t.Fatalf("expected cached key in redis")
	}
}

func TestPackRepositoryFallsBackOnCorruptCache(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	if err := mr.Set("pack:pack-1:data", "not-json"); err != nil {
		t.Fatalf("seed redis: %v", err)
	}

	loader := &countingLoader{
		PackLoader: memory.NewStaticPackLoader(map[string]domain.QuestionPack{
			"pack-1": samplePack(),
		}),
	}
	repo := NewPackRepository(newClient(mr), loader, time.Minute)

	pack, err := repo.GetPack(context.Background(), "pack-1")
	if err != nil {
		t.Fatalf("get pack: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected loader fallback, calls=%d", loader.calls)
	}
	if pack.ID != "pack-1" {
		t.Fatalf("unexpected pack: %+v", pack)
	}
}

type countingLoader struct {
	memory.PackLoader
	calls int
}

func (l *countingLoader) LoadPack(ctx context.Context, packID string) (domain.QuestionPack, error) {
	l.calls++
	return l.PackLoader.LoadPack(ctx, packID)
}

func samplePack() domain.QuestionPack {
	return domain.QuestionPack{
		ID: "pack-1",
		Questions: []domain.Question{
			{
				ID:           "q1",
				Prompt:       "What is 2 + 2?",
				Options:      []string{"3", "4", "5"},
				CorrectIndex: 1,
				TimeLimitSec: 15,
			},
		},
	}
}
