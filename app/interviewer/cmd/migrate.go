package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Soln1shko/AI-HR/config"
	"github.com/Soln1shko/AI-HR/internal/models"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the answer log table (postgres) and journal indexes (mongo)",
	RunE:  runMigrate,
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.PostgresURI == "" && cfg.MongoURI == "" {
		return errors.New("migrate: neither POSTGRES_URI nor MONGO_URI is set")
	}

	rt, err := openStores(cfg, log)
	if err != nil {
		return err
	}
	defer rt.Close()

	if rt.pg != nil {
		if err := rt.pg.AutoMigrate(&models.AnswerLog{}); err != nil {
			return fmt.Errorf("migrate postgres: %w", err)
		}
		log.Info("postgres schema up to date")
	}
	if rt.mongo != nil {
		if err := config.EnsureMongoIndexes(cmd.Context(), rt.mongo.Database(cfg.MongoDB)); err != nil {
			return fmt.Errorf("migrate mongo: %w", err)
		}
		log.Info("mongo indexes ensured")
	}
	return nil
}
