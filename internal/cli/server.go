package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"team-quiz-service/internal/app"
	"team-quiz-service/internal/config"
	"team-quiz-service/internal/domain"
	"team-quiz-service/internal/infra/memory"
	"team-quiz-service/internal/infra/postgres"
	redisinfra "team-quiz-service/internal/infra/redis"
	transport "team-quiz-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			return runServer(cmd.Context(), cfg, config.NewLogger(cfg, os.Stderr))
		},
	}
}

// services is the wired application graph.
type services struct {
	coordinator *app.Coordinator
	catalog     *app.Catalog
	close       func()
}

func runServer(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc, err := buildServices(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer svc.close()

	ws := transport.NewWSHandler(svc.coordinator, logger)
	api := transport.NewAPI(svc.catalog, logger)

	// No read/write timeouts: websocket liveness is enforced by ping/pong deadlines.
	server := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           transport.NewRouter(api, ws, logger, nil),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting quiz service", slog.String("addr", server.Addr), slog.String("public_url", cfg.PublicURL()))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down server")
	case err := <-errCh:
		return fmt.Errorf("listen: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func buildServices(ctx context.Context, cfg config.Config, logger *slog.Logger) (*services, error) {
	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	var (
		store   app.Store
		answers app.AnswerSource
	)
	if cfg.Postgres.URL != "" {
		db := openBun(cfg.Postgres.URL)
		closers = append(closers, func() { _ = db.Close() })
		if err := runMigrations(ctx, db, logger); err != nil {
			closeAll()
			return nil, err
		}
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		closers = append(closers, pool.Close)

		store, answers = postgres.NewStore(db), postgres.NewReader(pool)
		logger.Info("using postgres store")
	} else {
		mem := memory.NewStore()
		store, answers = mem, mem
		logger.Info("using in-memory store")
	}

	questionTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	var (
		questions app.QuestionRepository = memory.NewQuestionRepository(store, questionTTL)
		sessions  app.SessionRegistry    = memory.NewSessionStore()
		events    app.EventLog           = app.NopEventLog{}
	)
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		closers = append(closers, func() { _ = client.Close() })
		if err := client.Ping(ctx).Err(); err != nil {
			closeAll()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		redisTTL := config.TTLDuration(cfg.Redis.TTL, 10*time.Minute)
		questions = redisinfra.NewQuestionRepository(client, store, questionTTL)
		sessions = redisinfra.NewSessionStore(client, redisTTL, logger)
		events = redisinfra.NewEventLog(client, 0)
		logger.Info("using redis cache", slog.String("addr", cfg.Redis.Addr))
	}

	locks := app.NewGameLocks()
	scheme := app.NewEvaluator(app.ScoringScheme(cfg.Quiz.Scoring))
	coordinator := app.NewCoordinator(app.CoordinatorConfig{
		Store:        store,
		Questions:    questions,
		Sessions:     sessions,
		Router:       app.NewRouter(logger),
		Answers:      answers,
		Evaluator:    scheme,
		Events:       events,
		Logger:       logger,
		Locks:        locks,
		Grace:        config.TTLDuration(cfg.Quiz.Grace, app.DefaultGrace),
		StoreTimeout: config.TTLDuration(cfg.Quiz.StoreTimeout, app.DefaultStoreTimeout),
	})
	catalog := app.NewCatalog(app.CatalogConfig{
		Store:     store,
		Questions: questions,
		Sessions:  sessions,
		Locks:     locks,
		PublicURL: cfg.PublicURL(),
		Logger:    logger,
	})
	logger.Info("scoring configured", slog.String("scheme", string(scheme.Scheme())))

	if cfg.Postgres.URL == "" {
		if err := seedSampleGame(ctx, catalog, logger); err != nil {
			closeAll()
			return nil, err
		}
	}

	return &services{coordinator: coordinator, catalog: catalog, close: closeAll}, nil
}

// seedSampleGame gives the in-memory store a playable game.
func seedSampleGame(ctx context.Context, catalog *app.Catalog, logger *slog.Logger) error {
	game, err := catalog.CreateGame(ctx, "Sample quiz")
	if err != nil {
		return err
	}
	for _, name := range []string{"Red", "Blue"} {
		team, err := catalog.CreateTeam(ctx, game.ID, name)
		if err != nil {
			return err
		}
		logger.Info("sample team", slog.String("team", team.Name), slog.String("join_url", catalog.JoinURL(team)))
	}

	sample := []struct {
		text    string
		answers []string
		correct int
	}{
		{"What is 2 + 2?", []string{"3", "4", "5"}, 1},
		{"Which planet is known as the red planet?", []string{"Venus", "Jupiter", "Mars"}, 2},
	}
	for i, s := range sample {
		q, err := catalog.CreateQuestion(ctx, domain.Question{
			GameID:     game.ID,
			Text:       s.text,
			TimeLimit:  30,
			Points:     100,
			OrderIndex: i,
		})
		if err != nil {
			return err
		}
		for j, text := range s.answers {
			if _, err := catalog.CreateAnswer(ctx, domain.Answer{QuestionID: q.ID, Text: text, IsCorrect: j == s.correct}); err != nil {
				return err
			}
		}
	}
	logger.Info("sample game seeded", slog.Int64("game_id", game.ID))
	return nil
}
