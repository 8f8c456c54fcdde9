package cli

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ignite/newsletter-engine/internal/bootstrap"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate [dir]",
	Short: "Apply SQL migrations",
	Long: `Apply every .sql file in dir (default "migrations") in name order.
Each file runs in its own transaction; a failing file is rolled back and
reported, and the remaining files still run.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := "migrations"
		if len(args) == 1 {
			dir = args[0]
		}
		cfg, err := loadConfig(false)
		if err != nil {
			return err
		}
		db, err := bootstrap.OpenDB(cmd.Context(), cfg.Database)
		if err != nil {
			return err
		}
		defer db.Close()

		ok, failed, err := RunMigrations(cmd.Context(), db, dir, cmd.OutOrStdout())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Done: %d OK, %d errors\n", ok, failed)
		if failed > 0 {
			return fmt.Errorf("%d migrations failed", failed)
		}
		return nil
	},
}

// RunMigrations applies the .sql files of dir in lexical order, one
// transaction per file, and reports each file to out.
func RunMigrations(ctx context.Context, db *sql.DB, dir string, out io.Writer) (ok, failed int, err error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, 0, fmt.Errorf("read migrations dir %s: %w", dir, err)
	}

	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	for _, f := range files {
		data, err := os.ReadFile(filepath.Join(dir, f))
		if err != nil {
			return ok, failed, fmt.Errorf("read %s: %w", f, err)
		}
		content := string(data)
		if strings.TrimSpace(content) == "" {
			continue
		}
		fmt.Fprintf(out, "  %s ... ", f)
		if err := applyMigration(ctx, db, content); err != nil {
			fmt.Fprintf(out, "ERROR: %v\n", err)
			failed++
			continue
		}
		fmt.Fprintln(out, "OK")
		ok++
	}
	return ok, failed, nil
}

func applyMigration(ctx context.Context, db *sql.DB, content string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, content); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}
