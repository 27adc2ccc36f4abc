package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"triviaduel/internal/domain"
)

func TestPackRepositoryCaches(t *testing.T) {
	loader := &countingLoader{
		PackLoader: NewStaticPackLoader(map[string]domain.QuestionPack{
			"pack-1": samplePack(),
		}),
	}
	repo := NewPackRepository(loader, time.Minute)

	if _, err := repo.GetPack(context.Background(), "pack-1"); err != nil {
		t.Fatalf("get pack: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected loader once, got %d", loader.calls)
	}

	if _, err := repo.GetPack(context.Background(), "pack-1"); err != nil {
		t.Fatalf("get pack 2: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected cache hit, loader calls %d", loader.calls)
	}
}

func TestPackRepositoryReloadsAfterExpiry(t *testing.T) {
	loader := &countingLoader{
		PackLoader: NewStaticPackLoader(map[string]domain.QuestionPack{
			"pack-1": samplePack(),
		}),
	}
	repo := NewPackRepository(loader, time.Minute)

	now := time.Now()
	repo.clock = func() time.Time { return now }

	if _, err := repo.GetPack(context.Background(), "pack-1"); err != nil {
		t.Fatalf("get pack: %v", err)
	}

	// Advance beyond TTL (incl. jitter headroom) and expect a reload.
	now = now.Add(2 * time.Minute)
	if _, err := repo.GetPack(context.Background(), "pack-1"); err != nil {
		t.Fatalf("get pack after expiry: %v", err)
	}
	if loader.calls != 2 {
		t.Fatalf("expected reload after expiry, loader calls %d", loader.calls)
	}
}

func TestPackRepositoryUnknownPack(t *testing.T) {
	repo := NewPackRepository(NewStaticPackLoader(nil), time.Minute)

	_, err := repo.GetPack(context.Background(), "nope")
	if !errors.Is(err, domain.ErrPackNotFound) {
		t.Fatalf("expected ErrPackNotFound, got %v", err)
	}
}

type countingLoader struct {
	PackLoader
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
