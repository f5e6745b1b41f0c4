package main

import (
	"context"
	"fmt"
	"log"
	"sort"

	"github.com/spf13/cobra"

	"workshop_booking/domain/booking"
	"workshop_booking/infrastructure/database"
	"workshop_booking/infrastructure/repository"
	"workshop_booking/pkg/config"
)

func migrateCmd() *cobra.Command {
	var skipAliases bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create the schema and rewrite deprecated status values",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("config: %w", err)
			}
			if cfg.StorageMode != "postgres" {
				return fmt.Errorf("migrate needs STORAGE_MODE=postgres")
			}

			ctx := context.Background()
			db, err := database.Open(ctx, cfg.DatabaseURL, false, cfg.ConnectAttempts)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := db.Migrate(ctx); err != nil {
				return err
			}
			if skipAliases {
				return nil
			}
			return renameLegacyStatuses(ctx, repository.NewSQLBookingView(db.DB))
		},
	}
	cmd.Flags().BoolVar(&skipAliases, "schema-only", false, "only create tables, leave stored statuses alone")
	return cmd
}

type statusRenamer interface {
	RenameStatus(ctx context.Context, from, to string) (int64, error)
}

func renameLegacyStatuses(ctx context.Context, view statusRenamer) error {
	aliases := booking.LegacyAliases()
	keys := make([]string, 0, len(aliases))
	for k := range aliases {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var total int64
	for _, from := range keys {
		n, err := view.RenameStatus(ctx, from, string(aliases[from]))
		if err != nil {
			return fmt.Errorf("rename %s: %w", from, err)
		}
		if n > 0 {
			log.Printf("🔁 %s -> %s: %d rows", from, aliases[from], n)
		}
		total += n
	}
	log.Printf("✅ Status aliases normalized (%d rows)", total)
	return nil
}
