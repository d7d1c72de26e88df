package cli

import (
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"

	pgmigrate "github.com/supaquiz/server/internal/postgres/migrate"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := loadConfig()
			if err != nil {
				return err
			}

			if c.Postgres.Addr == "" {
				return fmt.Errorf("postgres address not configured")
			}

			db, err := sql.Open("pgx", fmt.Sprintf("postgres://%s:%s@%s/%s",
				c.Postgres.User, c.Postgres.Pass, c.Postgres.Addr, c.Postgres.Name))
			if err != nil {
				return fmt.Errorf("open postgres: %w", err)
			}
			defer db.Close()

			return pgmigrate.Run(db)
		},
	}
}
