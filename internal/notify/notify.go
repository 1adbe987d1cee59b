// Package notify delivers supplier notifications over external channels.
// Every notifier is best effort: the caller logs failures and keeps the stored
// notification.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"estatecore/pkg/domain"
)

// Message is the wire form shared by every channel.
type Message struct {
	NotificationID string            `json:"notification_id"`
	PartnerID      string            `json:"partner_id"`
	PartnerName    string            `json:"partner_name"`
	Kind           string            `json:"kind"`
	Title          string            `json:"title"`
	Body           string            `json:"body,omitempty"`
	Payload        map[string]string `json:"payload,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
}

// NewMessage builds the wire form of n addressed to partner.
func NewMessage(partner domain.Partner, n domain.Notification) Message {
	return Message{
		NotificationID: n.ID,
		PartnerID:      partner.ID,
		PartnerName:    partner.Name,
		Kind:           n.Kind,
		Title:          n.Title,
		Body:           n.Body,
		Payload:        n.Payload,
		CreatedAt:      n.CreatedAt,
	}
}

func encode(partner domain.Partner, n domain.Notification) ([]byte, error) {
	return json.Marshal(NewMessage(partner, n))
}

// Notifier is satisfied by every channel in this package.
type Notifier interface {
	Notify(ctx context.Context, partner domain.Partner, n domain.Notification) error
}

// LogNotifier writes notifications to the structured log. It is the default
// channel when nothing else is configured.
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger}
}

func (l *LogNotifier) Notify(_ context.Context, partner domain.Partner, n domain.Notification) error {
	l.logger.Info("supplier notification",
		zap.String("partner_id", partner.ID),
		zap.String("partner", partner.Name),
		zap.String("notification_id", n.ID),
		zap.String("title", n.Title))
	return nil
}

// Fanout delivers to every channel and joins their errors.
type Fanout []Notifier

func (f Fanout) Notify(ctx context.Context, partner domain.Partner, n domain.Notification) error {
	var errs []error
	for _, ch := range f {
		if err := ch.Notify(ctx, partner, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
