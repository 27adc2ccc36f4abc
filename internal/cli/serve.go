package cli

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"triviaduel/internal/config"
	"triviaduel/internal/domain"
	"triviaduel/internal/infra/memory"
	pgloader "triviaduel/internal/infra/postgres"
	redispack "triviaduel/internal/infra/redis"
	"triviaduel/internal/server"
)

// NewServeCmd builds the CLI subcommand to start the reference duel server.
func NewServeCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the reference duel server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), *configPath, *port)
		},
	}
}

func runServe(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil && !os.IsNotExist(err) {
		return err
	}

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
	}

	var loader memory.PackLoader = memory.NewStaticPackLoader(samplePacks())
	if pool != nil {
		loader = pgloader.NewPackLoader(pool)
	}

	packTTL := config.Duration(cfg.PackCache.TTL, 10*time.Minute)
	var packs server.PackRepository
	if redisClient != nil {
		packs = redispack.NewPackRepository(redisClient, redisLoader{loader}, packTTL)
	} else {
		packs = memory.NewPackRepository(loader, packTTL)
	}

	serverCtx, cancelServer := context.WithCancel(ctx)
	defer cancelServer()

	duelServer := server.New(serverCtx, server.Config{
		PackID:            cfg.Server.Pack,
		QuestionsPerDuel:  cfg.Server.QuestionsPerDuel,
		QuestionTimeLimit: cfg.Server.QuestionTimeLimit,
		ReadyTimeout:      config.Duration(cfg.Server.ReadyTimeout, 15*time.Second),
		RoundDelay:        config.Duration(cfg.Server.RoundDelay, time.Second),
	}, packs)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws", duelServer.ServeWS)

	httpServer := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("starting duel server on :%s", finalPort)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("failed to start server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Println("shutting down server...")
	case <-ctx.Done():
		log.Println("context canceled, shutting down server...")
	}

	cancelServer()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

// redisLoader adapts the shared PackLoader shape to the redis package's
// interface without the two infra packages importing each other.
type redisLoader struct {
	loader memory.PackLoader
}

func (l redisLoader) LoadPack(ctx context.Context, packID string) (domain.QuestionPack, error) {
	return l.loader.LoadPack(ctx, packID)
}

// samplePacks provides a minimal question bank; swap the loader for a
// Postgres-backed one in production.
func samplePacks() map[string]domain.QuestionPack {
	return map[string]domain.QuestionPack{
		"pack-1": {
			ID: "pack-1",
			Questions: []domain.Question{
				{
					ID:           "q1",
					Prompt:       "What is 2 + 2?",
					Options:      []string{"3", "4", "5"},
					CorrectIndex: 1,
				},
				{
					ID:           "q2",
					Prompt:       "Which planet is known as the Red Planet?",
					Options:      []string{"Venus", "Jupiter", "Mars", "Saturn"},
					CorrectIndex: 2,
				},
				{
					ID:           "q3",
					Prompt:       "How many continents are there?",
					Options:      []string{"5", "6", "7", "8"},
					CorrectIndex: 2,
				},
				{
					ID:           "q4",
					Prompt:       "What is the capital of Japan?",
					Options:      []string{"Osaka", "Kyoto", "Tokyo"},
					CorrectIndex: 2,
				},
				{
					ID:           "q5",
					Prompt:       "Which gas do plants absorb from the air?",
					Options:      []string{"Oxygen", "Carbon dioxide", "Nitrogen"},
					CorrectIndex: 1,
				},
			},
		},
	}
}
