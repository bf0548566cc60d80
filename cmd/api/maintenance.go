package main

import (
	"fmt"
	"sort"

	"forgeboard/internal/search"
	"forgeboard/internal/seed"
	"forgeboard/internal/store"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	cyan   = color.New(color.FgCyan)
)

func newMigrateCommand(c *cli) *cobra.Command {
	var statusOnly, down bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			db, err := openDatabase(ctx, c.cfg, false, c.logger)
			if err != nil {
				return err
			}
			defer db.Close()

			if down {
				version, err := store.RollbackMigration(ctx, db, c.cfg.MigrationsDir)
				if err != nil {
					return fmt.Errorf("rollback failed: %w", err)
				}
				if version == "" {
					fmt.Fprintln(cmd.OutOrStdout(), "nothing to roll back")
					return nil
				}
				yellow.Fprintf(cmd.OutOrStdout(), "reverted %s\n", version)
				return nil
			}

			if !statusOnly {
				applied, err := store.ApplyMigrations(ctx, db, c.cfg.MigrationsDir)
				if err != nil {
					return fmt.Errorf("migrations failed: %w", err)
				}
				if len(applied) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "database is up to date")
				}
				for _, version := range applied {
					green.Fprintf(cmd.OutOrStdout(), "applied  %s\n", version)
				}
				return nil
			}

			statuses, err := store.MigrationStatuses(ctx, db, c.cfg.MigrationsDir)
			if err != nil {
				return err
			}
			for _, status := range statuses {
				if status.Applied {
					applied := ""
					if status.AppliedAt != nil {
						applied = status.AppliedAt.Format("2006-01-02 15:04")
					}
					green.Fprintf(cmd.OutOrStdout(), "applied  %s  %s\n", status.Version, applied)
					continue
				}
				yellow.Fprintf(cmd.OutOrStdout(), "pending  %s\n", status.Version)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&statusOnly, "status", false, "Print applied and pending migrations without applying")
	cmd.Flags().BoolVar(&down, "down", false, "Revert the most recently applied migration")
	cmd.MarkFlagsMutuallyExclusive("status", "down")
	return cmd
}

func newReindexCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "reindex",
		Short: "Rebuild the Meilisearch indexes from Postgres",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			db, err := openDatabase(ctx, c.cfg, false, c.logger)
			if err != nil {
				return err
			}
			defer db.Close()

			searchService := newSearch(db, c.cfg, c.logger)
			defer searchService.Close()

			counts, err := searchService.ReindexAllFromPG(ctx)
			if err != nil {
				return err
			}
			types := make([]string, 0, len(counts))
			for rtyp := range counts {
				types = append(types, string(rtyp))
			}
			sort.Strings(types)
			for _, rtyp := range types {
				cyan.Fprintf(cmd.OutOrStdout(), "%-8s", rtyp)
				fmt.Fprintf(cmd.OutOrStdout(), " %d records\n", counts[search.ResultType(rtyp)])
			}
			return nil
		},
	}
}

func newSeedCommand(c *cli) *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Import entities and onboarding cards from a YAML file",
		RunE: func(cmd *cobra.Command, args []string) error {
			file, err := seed.Load(path)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			db, err := openDatabase(ctx, c.cfg, true, c.logger)
			if err != nil {
				return err
			}
			defer db.Close()

			summary, err := seed.NewImporter(store.NewPostgresStore(db), c.logger).Apply(ctx, file)
			if err != nil {
				return err
			}
			c.logger.Info("seed applied",
				zap.Int("entities_created", summary.EntitiesCreated),
				zap.Int("cards_created", summary.CardsCreated),
			)
			green.Fprintf(cmd.OutOrStdout(), "entities: %d created, %d skipped\n", summary.EntitiesCreated, summary.EntitiesSkipped)
			green.Fprintf(cmd.OutOrStdout(), "onboarding cards: %d created, %d skipped\n", summary.CardsCreated, summary.CardsSkipped)
			return nil
		},
	}
	cmd.Flags().StringVarP(&path, "file", "f", "", "Seed YAML file")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}
