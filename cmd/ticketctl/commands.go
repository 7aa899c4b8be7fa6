package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/daole6868/BOT-BAO-DON-HANG/internal/api/dto"
	"github.com/daole6868/BOT-BAO-DON-HANG/internal/app"
	"github.com/daole6868/BOT-BAO-DON-HANG/internal/config"
	"github.com/daole6868/BOT-BAO-DON-HANG/internal/domain"
	"github.com/daole6868/BOT-BAO-DON-HANG/internal/observability"
	"github.com/daole6868/BOT-BAO-DON-HANG/internal/repository"
	"github.com/daole6868/BOT-BAO-DON-HANG/internal/service"
	"github.com/daole6868/BOT-BAO-DON-HANG/internal/storage"
)

// withStore loads configuration and opens the ticket store for one command.
func withStore(ctx context.Context, migrate bool, fn func(ctx context.Context, cfg *config.Config, store *app.Store, logger *zap.Logger) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	store, err := app.OpenStore(ctx, cfg.Store, migrate, logger)
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(ctx, cfg, store, logger)
}

func newSweepCmd() *cobra.Command {
	var maxAgeDays int
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Delete tickets older than the retention window, media first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(cmd.Context(), false, func(ctx context.Context, cfg *config.Config, store *app.Store, logger *zap.Logger) error {
				if !cmd.Flags().Changed("max-age-days") {
					maxAgeDays = cfg.Lifecycle.RetentionDays
				}
				objects, err := storage.NewCloudinary(cfg.Cloudinary)
				if err != nil {
					return err
				}
				sweeper := service.NewSweeper(service.SweeperDependencies{
					TicketRepo: store.Tickets,
					Storage:    objects,
					Logger:     logger,
					Spacing:    cfg.Lifecycle.DeleteSpacing,
				})
				report, err := sweeper.Sweep(ctx, maxAgeDays)
				if err != nil {
					return err
				}
				return writeSweepReport(os.Stdout, report, jsonOutput)
			})
		},
	}
	cmd.Flags().IntVar(&maxAgeDays, "max-age-days", 15, "delete tickets created more than this many days ago")
	return cmd
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list <uid>",
		Short: "Show every ticket recorded for an identifier",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), false, func(ctx context.Context, _ *config.Config, store *app.Store, _ *zap.Logger) error {
				tickets, err := store.Tickets.Find(ctx, repository.TicketFilter{Identifier: args[0]})
				if err != nil {
					return err
				}
				return writeTickets(os.Stdout, tickets, jsonOutput)
			})
		},
	}
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the ticket schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(cmd.Context(), true, func(_ context.Context, cfg *config.Config, _ *app.Store, _ *zap.Logger) error {
				fmt.Printf("schema ready (%s)\n", cfg.Store.Driver)
				return nil
			})
		},
	}
}

func writeTickets(w io.Writer, tickets []domain.Ticket, asJSON bool) error {
	if asJSON {
		views := make([]dto.TicketView, 0, len(tickets))
		for _, t := range tickets {
			views = append(views, dto.NewTicketView(t))
		}
		return printJSON(w, views)
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.AppendHeader(table.Row{"ID", "UID", "Owner", "Channel", "Images", "Created"})
	for _, t := range tickets {
		tw.AppendRow(table.Row{t.ID, t.Identifier, t.OwnerID, t.ChannelRef, len(t.Media), t.CreatedAt.Format("2006-01-02 15:04")})
	}
	tw.Render()
	return nil
}

func writeSweepReport(w io.Writer, report service.SweepReport, asJSON bool) error {
	if asJSON {
		return printJSON(w, map[string]any{
			"cutoff":          report.Cutoff,
			"examined":        report.Examined,
			"deleted":         report.Deleted,
			"record_failures": report.RecordFailures,
			"media_deleted":   report.MediaDeleted,
			"media_failures":  report.MediaFailures,
		})
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.AppendHeader(table.Row{"Cutoff", "Examined", "Deleted", "Record failures", "Media deleted", "Media failures"})
	tw.AppendRow(table.Row{
		report.Cutoff.Format("2006-01-02 15:04"),
		strconv.Itoa(report.Examined),
		strconv.Itoa(report.Deleted),
		strconv.Itoa(report.RecordFailures),
		strconv.Itoa(report.MediaDeleted),
		strconv.Itoa(report.MediaFailures),
	})
	tw.Render()
	return nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
