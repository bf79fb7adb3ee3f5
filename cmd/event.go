package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/frahmantamala/sacco-management/internal/core/events"
	memberPostgres "github.com/frahmantamala/sacco-management/internal/member/postgres"
	"github.com/frahmantamala/sacco-management/internal/notification"
	"github.com/frahmantamala/sacco-management/pkg/logger"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

var eventCmd = &cobra.Command{
	Use:   "event",
	Short: "Event management commands",
	Long:  `Publish payment events through the in-process bus to exercise subscribers such as the member notifier`,
}

var publishEventCmd = &cobra.Command{
	Use:   "publish [event-type]",
	Short: "Publish a payment event",
	Long:  `Publish a payment.confirmed or payment.failed event for a member, for testing and debugging`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if err := publishPaymentEvent(args[0]); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	},
}

var (
	eventMemberID  int64
	eventVehicleID int64
	eventAmount    string
	eventReceipt   string
)

func publishPaymentEvent(eventType string) error {
	config, err := loadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	log := logger.LoggerWrapper()

	db, err := initDB(config.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	amount, err := decimal.NewFromString(eventAmount)
	if err != nil {
		return fmt.Errorf("invalid amount %q: %w", eventAmount, err)
	}

	eventBus := events.NewEventBus(log)
	notifier := notification.NewEventHandler(config.Notification, notification.NewSMTPMailer(config.Notification), memberPostgres.NewMemberRepository(db.Gorm), log)
	notifier.RegisterEventHandlers(eventBus)

	eventBus.Subscribe(eventType, func(ctx context.Context, event events.Event) error {
		log.Info("event received",
			"event_id", event.EventID(),
			"event_type", event.EventType(),
			"payload", event.Payload())
		return nil
	})

	correlationID := "cli-" + uuid.NewString()
	var event events.Event
	switch eventType {
	case events.EventTypePaymentConfirmed:
		event = events.NewPaymentConfirmedEvent(0, correlationID, eventMemberID, eventVehicleID, amount, eventReceipt, decimal.Zero, decimal.Zero)
	case events.EventTypePaymentFailed:
		event = events.NewPaymentFailedEvent(correlationID, eventMemberID, eventVehicleID, "failed", 1, "published from the command line")
	default:
		return fmt.Errorf("unsupported event type %q", eventType)
	}

	log.Info("publishing event", "event_type", eventType, "event_id", event.EventID())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := eventBus.PublishSync(ctx, event); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	log.Info("event published successfully")
	return nil
}

func init() {
	publishEventCmd.Flags().Int64Var(&eventMemberID, "member-id", 1, "Member the event belongs to")
	publishEventCmd.Flags().Int64Var(&eventVehicleID, "vehicle-id", 1, "Vehicle the event belongs to")
	publishEventCmd.Flags().StringVar(&eventAmount, "amount", "1000", "Confirmed amount")
	publishEventCmd.Flags().StringVar(&eventReceipt, "receipt", "TEST000000", "Gateway receipt reference")

	eventCmd.AddCommand(publishEventCmd)

	rootCmd.AddCommand(eventCmd)
}
