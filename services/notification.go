package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"time"

	"learning-platform/logger"
)

// ErrUnknownEvent marks messages the notifier has no handler for.
var ErrUnknownEvent = errors.New("unknown event type")

// Notifier turns subscription events into student emails.
type Notifier struct {
	mailer Mailer
}

func NewNotifier(mailer Mailer) *Notifier {
	return &Notifier{mailer: mailer}
}

// HandleMessage processes one subscription event payload. Payment events are
// acknowledged without action.
func (n *Notifier) HandleMessage(ctx context.Context, payload []byte) error {
	var ev SubscriptionEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return fmt.Errorf("decode event: %w", err)
	}

	switch ev.Event {
	case EventSubscriptionActivated, EventSubscriptionExtended:
		return n.sendConfirmation(ctx, ev)
	case EventSubscriptionCancelled:
		return n.sendCancellation(ctx, ev)
	case EventPaymentStatusChanged:
		return nil
	case "":
		return fmt.Errorf("%w: missing event field", ErrUnknownEvent)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownEvent, ev.Event)
	}
}

func (n *Notifier) sendConfirmation(ctx context.Context, ev SubscriptionEvent) error {
	if ev.Email == "" {
		logger.Warn("Subscription event %s for student %d has no email, skipping", ev.EventID, ev.StudentID)
		return nil
	}

	receipt, err := ReceiptPDF(ev)
	if err != nil {
		return err
	}

	subject := "Your subscription is active"
	action := "activated"
	if ev.Event == EventSubscriptionExtended {
		subject = "Your subscription has been extended"
		action = "extended"
	}

	body := fmt.Sprintf(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; color: #333;">
    <h2>Hello %s,</h2>
    <p>Your subscription has been %s for %d month(s).</p>
    <p>It is valid until <strong>%s</strong>.</p>
    <p>Your receipt is attached.</p>
</body>
</html>`, html.EscapeString(ev.Username), action, ev.DurationMonths, formatEmailTime(ev.SubscriptionEnd))

	return n.mailer.Send(ctx, Email{
		To:       ev.Email,
		Subject:  subject,
		HTMLBody: body,
		Attachments: []Attachment{{
			Name: fmt.Sprintf("receipt-%s.pdf", ev.EventID),
			Data: receipt,
		}},
	})
}

func (n *Notifier) sendCancellation(ctx context.Context, ev SubscriptionEvent) error {
	if ev.Email == "" {
		return nil
	}
	body := fmt.Sprintf(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; color: #333;">
    <h2>Hello %s,</h2>
    <p>Your subscription has been cancelled. Free courses remain available to you.</p>
</body>
</html>`, html.EscapeString(ev.Username))

	return n.mailer.Send(ctx, Email{
		To:       ev.Email,
		Subject:  "Your subscription has been cancelled",
		HTMLBody: body,
	})
}

func formatEmailTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.UTC().Format("January 2, 2006")
}
