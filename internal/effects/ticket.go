package effects

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/eventhub/eventhub-go/internal/domain"
)

// RefTicketGenerator produces the human-readable ticket reference that
// goes on the QR asset and into confirmation mail.
type RefTicketGenerator struct{}

func (RefTicketGenerator) Generate(_ context.Context, reg domain.Registration) (string, error) {
	if reg.ID == 0 || reg.EventID == 0 || reg.UserID == 0 {
		return "", fmt.Errorf("ticket generator: incomplete registration %+v", reg)
	}
	return fmt.Sprintf("EVENTHUB-REG-%d-EVENT-%d-USER-%d", reg.ID, reg.EventID, reg.UserID), nil
}

// LogNotifier records notifications in the structured log instead of
// delivering them. Stands in for a mail or push provider; the dispatcher
// only sees the Notifier interface.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(_ context.Context, eventType string, recipientID int64, payload map[string]any) error {
	n.logger.Info("notification",
		"type", eventType,
		"user_id", recipientID,
		"payload", payload,
	)
	return nil
}
