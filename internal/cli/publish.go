package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"assessment-engine/internal/app"
	"assessment-engine/internal/config"
	"assessment-engine/internal/domain"
	"assessment-engine/internal/infra/memory"
	"assessment-engine/internal/infra/postgres"
	redisinfra "assessment-engine/internal/infra/redis"
	"assessment-engine/internal/logging"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// NewPublishCmd loads a quiz definition file and publishes it to postgres.
func NewPublishCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "publish <quiz.yaml|quiz.json>",
		Short: "Validate and publish a quiz definition",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOrDefault(*configPath)
			if err != nil {
				return err
			}
			if cfg.Postgres.URL == "" {
				return errNoPostgres
			}
			log, err := logging.New(cfg.Log)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			quiz, err := readQuizFile(args[0])
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
			if err != nil {
				return err
			}
			defer pool.Close()
			db := postgres.OpenDB(cfg.Postgres.URL)
			defer db.Close()

			loader := postgres.NewQuizLoader(pool)
			// publishing through the shared cache drops the stale definition for running servers
			var quizzes app.QuizRepository = memory.NewQuizRepository(loader, 0)
			if client := newRedisClient(cfg); client != nil {
				defer client.Close()
				quizzes = redisinfra.NewQuizRepository(client, loader, config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute))
			}

			published, err := publish(ctx, quizzes, loader, postgres.NewAttemptStore(db), quiz, log)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "published %s version %d\n", published.ID, published.Version)
			return nil
		},
	}
}

// publish runs the definition through the service so validation and the freeze rule apply.
func publish(ctx context.Context, quizzes app.QuizRepository, writer app.QuizWriter, attempts app.AttemptRepository, quiz domain.QuizDefinition, log *zap.Logger) (domain.QuizDefinition, error) {
	svc := app.NewAssessmentService(quizzes, writer, attempts, memory.NewAnalyticsStore(), app.WithLogger(log))
	return svc.PublishQuiz(ctx, quiz)
}

func readQuizFile(path string) (domain.QuizDefinition, error) {
	var quiz domain.QuizDefinition
	data, err := os.ReadFile(path)
	if err != nil {
		return quiz, err
	}
	if strings.EqualFold(filepath.Ext(path), ".json") {
		err = json.Unmarshal(data, &quiz)
	} else {
		err = yaml.Unmarshal(data, &quiz)
	}
	if err != nil {
		return quiz, fmt.Errorf("%w: %s: %v", domain.ErrInvalidQuiz, path, err)
	}
	return quiz, nil
}
