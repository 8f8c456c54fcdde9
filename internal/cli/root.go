/*
Package cli provides the newsletterctl administration commands.
*/
package cli

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/ignite/newsletter-engine/internal/bootstrap"
	"github.com/ignite/newsletter-engine/internal/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "newsletterctl",
	Short: "Administer newsletter delivery",
	Long: `newsletterctl manages the newsletter engine from the command line.

Example:
  newsletterctl migrate                                  # Apply SQL migrations
  newsletterctl create --id spring --subject "Spring" --html spring.html
  newsletterctl send --id spring --recipients list.txt   # Dispatch and wait
  newsletterctl retry --id spring                        # Re-run failed addresses
  newsletterctl stats --id spring                        # Engagement summary`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "config/config.yaml", "config file")

	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(createCmd)
	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(retryCmd)
	rootCmd.AddCommand(statsCmd)
}

// runtimeEnv holds the connections a command needs.
type runtimeEnv struct {
	cfg      *config.Config
	db       *sql.DB
	rdb      *redis.Client
	delivery *bootstrap.Delivery
}

func (e *runtimeEnv) Close() {
	if e.rdb != nil {
		e.rdb.Close()
	}
	if e.db != nil {
		e.db.Close()
	}
}

func loadConfig(validate bool) (*config.Config, error) {
	cfg, err := config.LoadFromEnv(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if validate {
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid config: %w", err)
		}
	}
	bootstrap.ConfigureLogger(cfg.Log)
	return cfg, nil
}

// openEnv loads config and wires the full delivery stack.
func openEnv(ctx context.Context) (*runtimeEnv, error) {
	cfg, err := loadConfig(true)
	if err != nil {
		return nil, err
	}
	e := &runtimeEnv{cfg: cfg}
	if e.db, err = bootstrap.OpenDB(ctx, cfg.Database); err != nil {
		return nil, err
	}
	if e.rdb, err = bootstrap.OpenRedis(ctx, cfg.Redis.URL); err != nil {
		e.Close()
		return nil, err
	}
	if e.delivery, err = bootstrap.NewDelivery(ctx, cfg, e.db, e.rdb); err != nil {
		e.Close()
		return nil, err
	}
	return e, nil
}
