package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"github.com/frahmantamala/bookkeeping/internal/audit"
	auditpg "github.com/frahmantamala/bookkeeping/internal/audit/postgres"
	"github.com/frahmantamala/bookkeeping/internal/core/events"
	"github.com/frahmantamala/bookkeeping/pkg/logger"
)

var eventCmd = &cobra.Command{
	Use:   "event",
	Short: "Event management commands",
	Long:  `Manage events: publish test events through the domain event bus`,
}

var publishEventCmd = &cobra.Command{
	Use:   "publish [event-type]",
	Short: "Publish a test domain event",
	Long:  `Publish a domain event to the event bus. With --audit the event is also written to the audit trail.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return publishTestEvent(cmd.Context(), args[0])
	},
}

var (
	eventData      string
	eventCompanyID int64
	eventEntity    string
	eventEntityID  int64
	eventAudit     bool
)

func publishTestEvent(ctx context.Context, eventType string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	lg := logger.LoggerWrapper()
	bus := events.NewEventBus(lg)

	bus.Subscribe(eventType, func(ctx context.Context, event events.Event) error {
		lg.InfoContext(ctx, "test handler received event",
			"event_id", event.EventID(),
			"event_type", event.EventType(),
			"payload", event.Payload())
		return nil
	})

	if eventAudit {
		if !slices.Contains(events.AuditedEventTypes, eventType) {
			return fmt.Errorf("event type %q is not audited", eventType)
		}
		cfg, err := loadConfig(".")
		if err != nil {
			return err
		}
		db, err := initDB(cfg.Database)
		if err != nil {
			return err
		}
		if sqlDB, err := db.DB(); err == nil {
			defer sqlDB.Close()
		}
		audit.NewLogger(auditpg.NewRepository(db), lg).Subscribe(bus)
	}

	event := events.NewDomainEvent(eventType, eventCompanyID, nil, eventEntity, eventEntityID, map[string]interface{}{
		"message": eventData,
		"source":  "cli-command",
	})

	lg.Info("publishing test event", slog.String("event_type", eventType), slog.String("event_id", event.ID))
	if err := bus.Publish(ctx, event); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	bus.Wait()

	lg.Info("test event published successfully")
	return nil
}

func init() {
	publishEventCmd.Flags().StringVar(&eventData, "data", "test message", "Event data message")
	publishEventCmd.Flags().Int64Var(&eventCompanyID, "company", 1, "Company the event belongs to")
	publishEventCmd.Flags().StringVar(&eventEntity, "entity", "transaction", "Entity type")
	publishEventCmd.Flags().Int64Var(&eventEntityID, "entity-id", 0, "Entity id")
	publishEventCmd.Flags().BoolVar(&eventAudit, "audit", false, "Also persist the event to audit_logs")

	eventCmd.AddCommand(publishEventCmd)

	rootCmd.AddCommand(eventCmd)
}
