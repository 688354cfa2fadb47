package cmd

import (
	"context"
	"fmt"

	"closeus-backend/internal/database"
	"closeus-backend/internal/repository"
	"closeus-backend/internal/services"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return database.Migrate(cfg.Database.URLString())
	},
}

var questionsCmd = &cobra.Command{
	Use:   "questions",
	Short: "Manage the daily question pool",
}

var questionsRefreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Purge stale generated questions and generate a new batch",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		ctx := context.Background()
		db, err := database.Connect(ctx, cfg.Database.DSN())
		if err != nil {
			return err
		}
		defer db.Close()

		pool := services.NewQuestionPoolService(repository.NewQuestionRepository(db),
			services.NewChatCompletionGenerator(cfg.Questions.AIEndpoint, cfg.Questions.AIModel, cfg.Questions.AIAPIKey),
			cfg.Questions.Retention, cfg.Questions.DailyBatch)
		result, err := pool.Refresh(ctx)
		if err != nil {
			return fmt.Errorf("failed to refresh question pool: %w", err)
		}

		log.Info().
			Int64("purged", result.Purged).
			Int("created", result.Created).
			Msg("Done")
		return nil
	},
}

func init() {
	questionsCmd.AddCommand(questionsRefreshCmd)
}
