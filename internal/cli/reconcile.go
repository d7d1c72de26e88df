package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/supaquiz/server/internal/event"
	"github.com/supaquiz/server/internal/postgres"
	"github.com/supaquiz/server/internal/reconcile"
)

// newReconcileCmd rebuilds user totals and achievement state from ended
// sessions. Run it after manual data fixes or suspected drift.
func newReconcileCmd() *cobra.Command {
	var userID string

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Recompute score totals and achievements from ended sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := loadConfig()
			if err != nil {
				return err
			}

			if c.Postgres.Addr == "" {
				return fmt.Errorf("postgres address not configured")
			}

			ctx := cmd.Context()

			db, err := pgxpool.New(ctx, fmt.Sprintf("postgres://%s:%s@%s/%s",
				c.Postgres.User, c.Postgres.Pass, c.Postgres.Addr, c.Postgres.Name))
			if err != nil {
				return fmt.Errorf("connect postgres: %w", err)
			}
			defer db.Close()

			eb := event.NewBus()
			defer eb.Stop()

			users := postgres.NewUserStore(db)
			sessions := postgres.NewSessionStore(db)
			svc := reconcile.NewService(reconcile.Config{
				EventBus: eb,
				Users:    users,
				Sessions: sessions,
			})

			if userID != "" {
				return recomputeOne(ctx, svc, userID)
			}

			all, err := users.List(ctx)
			if err != nil {
				return err
			}

			for _, u := range all {
				if err := recomputeOne(ctx, svc, u.UserID); err != nil {
					return err
				}
			}

			slog.InfoContext(ctx, "reconcile: sweep completed", "users", len(all))
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "recompute a single user instead of all")
	return cmd
}

func recomputeOne(ctx context.Context, svc *reconcile.Service, userID string) error {
	res, err := svc.Recompute(ctx, userID)
	if err != nil {
		return fmt.Errorf("recompute user %s: %w", userID, err)
	}

	slog.InfoContext(ctx, "reconcile: user recomputed",
		"user_id", userID,
		"total", res.Total,
		"newly_unlocked", res.NewlyUnlocked)
	return nil
}
