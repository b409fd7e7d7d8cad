package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"assessment-engine/internal/app"
	"assessment-engine/internal/config"
	"assessment-engine/internal/domain"
	"assessment-engine/internal/grading"
	"assessment-engine/internal/infra/memory"
	"assessment-engine/internal/infra/postgres"
	redisinfra "assessment-engine/internal/infra/redis"
	"assessment-engine/internal/logging"
	"assessment-engine/internal/metrics"
	"assessment-engine/internal/notify"
	transport "assessment-engine/internal/transport/http"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the assessment server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func newRedisClient(cfg config.Config) *redis.Client {
	if cfg.Redis.Addr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return err
	}
	log, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if cfg.Postgres.URL != "" {
		if err := runMigrations(ctx, cfg, log); err != nil {
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

	var (
		loader    memory.QuizLoader
		writer    app.QuizWriter
		attempts  app.AttemptRepository
		analytics app.AnalyticsRepository
	)
	if cfg.Postgres.URL != "" {
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
		db := postgres.OpenDB(cfg.Postgres.URL)
		defer db.Close()

		quizLoader := postgres.NewQuizLoader(pool)
		loader, writer = quizLoader, quizLoader
		attempts, analytics = postgres.NewAttemptStore(db), postgres.NewAnalyticsStore(db)
	} else {
		log.Warn("postgres not configured, using in-memory stores with a sample quiz")
		store := memory.NewQuizStore(sampleQuiz())
		loader, writer = store, store
		attempts, analytics = memory.NewAttemptStore(), memory.NewAnalyticsStore()
	}

	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	broadcaster := notify.NewBroadcaster()
	notifiers := notify.Fanout{notify.NewLogNotifier(log)}

	var quizRepo app.QuizRepository
	if client := newRedisClient(cfg); client != nil {
		defer client.Close()
		quizRepo = redisinfra.NewQuizRepository(client, loader, quizTTL)

		// every instance relays the shared channel to its local websocket sessions
		publisher := redisinfra.NewEventPublisher(client, cfg.Redis.EventsChannel)
		events, err := publisher.Subscribe(ctx, log)
		if err != nil {
			return err
		}
		go broadcaster.Relay(ctx, events)
		notifiers = append(notifiers, publisher)
	} else {
		quizRepo = memory.NewQuizRepository(loader, quizTTL)
		notifiers = append(notifiers, broadcaster)
	}

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
	}

	service := app.NewAssessmentService(quizRepo, writer, attempts, analytics,
		app.WithLogger(log),
		app.WithMetrics(m),
		app.WithNotifier(notifiers),
		app.WithTextLimits(grading.Limits{ShortText: cfg.Quiz.ShortTextLimit, Essay: cfg.Quiz.EssayLimit}),
	)

	router := transport.NewRouter(transport.RouterConfig{
		Service:     service,
		Auth:        transport.NewAuthenticator(cfg.Auth.JWTSecret, cfg.Auth.Issuer),
		Broadcaster: broadcaster,
		Metrics:     m,
		MetricsPath: cfg.Metrics.Path,
		CORSOrigins: cfg.Server.CORSOrigins,
		Logger:      log,
	})
	if cfg.Auth.JWTSecret == "" {
		log.Warn("auth.jwt_secret not set, trusting X-User-ID headers")
	}

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      router,
		ReadTimeout:  config.TTLDuration(cfg.Server.ReadTimeout, 15*time.Second),
		WriteTimeout: config.TTLDuration(cfg.Server.WriteTimeout, 15*time.Second),
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("starting assessment engine", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Info("shutting down server")
	case <-ctx.Done():
		log.Info("context canceled, shutting down server")
	case err := <-serveErr:
		return err
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	return server.Shutdown(shutdownCtx)
}

// sampleQuiz seeds the in-memory store so a bare `start` has something to attempt.
func sampleQuiz() domain.QuizDefinition {
	limit := 600
	return domain.QuizDefinition{
		ID:                   "quiz-1",
		Version:              1,
		Title:                "Warm-up",
		Type:                 domain.QuizTypePractice,
		TimeLimitSeconds:     &limit,
		PassingScore:         60,
		Active:               true,
		ShowScoreImmediately: true,
		ShowCorrectAnswers:   true,
		AllowReview:          true,
		Questions: []domain.QuestionDefinition{
			{
				ID: "q1", Kind: domain.KindSingleSelect, Prompt: "What is 2 + 2?", Points: 1, Required: true,
				Options: []domain.AnswerOption{
					{ID: "o1", Text: "3"},
					{ID: "o2", Text: "4", Correct: true},
					{ID: "o3", Text: "5"},
				},
			},
			{
				ID: "q2", Kind: domain.KindTrueFalse, Prompt: "Go has generics.", Points: 1, Required: true,
				Options: []domain.AnswerOption{
					{ID: "true", Text: "True", Correct: true},
					{ID: "false", Text: "False"},
				},
			},
			{
				ID: "q3", Kind: domain.KindShortText, Prompt: "Name the Go mascot.", Points: 1, Required: true,
				AcceptedAnswers: []string{"gopher", "the gopher"},
			},
			{
				ID: "q4", Kind: domain.KindEssay, Prompt: "Describe a goroutine leak you have seen.", Points: 2,
			},
		},
	}
}
