package core

import (
	"context"
	"fmt"

	"estatecore/pkg/domain"
)

// Notifications is the command/query handle for in-app notifications.
type Notifications struct{ s *Service }

func (h Notifications) List(ctx context.Context) []domain.Notification {
	return read(ctx, h.s, func(v domain.TransactionView) []domain.Notification { return v.ListNotifications() })
}

// ListFor returns the notifications addressed to recipientID.
func (h Notifications) ListFor(ctx context.Context, recipientID string) []domain.Notification {
	return read(ctx, h.s, func(v domain.TransactionView) []domain.Notification {
		var out []domain.Notification
		for _, n := range v.ListNotifications() {
			if n.RecipientID == recipientID {
				out = append(out, n)
			}
		}
		return out
	})
}

// Add stores a notification. The recipient must be a partner or a user.
func (h Notifications) Add(ctx context.Context, n domain.Notification) (domain.Notification, error) {
	n.Read = false
	if err := h.s.check(domain.EntityNotification, n); err != nil {
		return domain.Notification{}, err
	}
	var created domain.Notification
	err := h.s.mutate(ctx, "notification.add", func(tx domain.Transaction, _ domain.User) (domain.AuditLogEntry, error) {
		var err error
		if created, err = tx.CreateNotification(n); err != nil {
			return domain.AuditLogEntry{}, err
		}
		return auditEntry(domain.AuditCreate, domain.EntityNotification, created.ID,
			fmt.Sprintf("notification %q", created.Title), recipientRef(tx.Snapshot(), created.RecipientID)), nil
	})
	return created, err
}

// MarkAsRead flags a notification as read. Marking it twice is harmless.
func (h Notifications) MarkAsRead(ctx context.Context, id string) error {
	return h.s.mutate(ctx, "notification.mark_read", func(tx domain.Transaction, _ domain.User) (domain.AuditLogEntry, error) {
		updated, err := tx.UpdateNotification(id, func(n *domain.Notification) error {
			n.Read = true
			return nil
		})
		if err != nil {
			return domain.AuditLogEntry{}, err
		}
		return auditEntry(domain.AuditUpdate, domain.EntityNotification, id,
			fmt.Sprintf("notification %q read", updated.Title)), nil
	})
}

func recipientRef(view domain.TransactionView, id string) domain.EntityRef {
	if _, ok := view.FindPartner(id); ok {
		return domain.Ref(domain.EntityPartner, id)
	}
	return domain.Ref(domain.EntityUser, id)
}

// Messages is the command/query handle for internal messages between users.
type Messages struct{ s *Service }

func (h Messages) List(ctx context.Context) []domain.Message {
	return read(ctx, h.s, func(v domain.TransactionView) []domain.Message { return v.ListMessages() })
}

// Add stores a message. An empty sender is filled from the session user.
func (h Messages) Add(ctx context.Context, m domain.Message) (domain.Message, error) {
	if m.SenderID == "" {
		m.SenderID = h.s.sessionUserID()
	}
	m.Read = false
	if err := h.s.check(domain.EntityMessage, m); err != nil {
		return domain.Message{}, err
	}
	var created domain.Message
	err := h.s.mutate(ctx, "message.add", func(tx domain.Transaction, _ domain.User) (domain.AuditLogEntry, error) {
		var err error
		if created, err = tx.CreateMessage(m); err != nil {
			return domain.AuditLogEntry{}, err
		}
		return auditEntry(domain.AuditCreate, domain.EntityMessage, created.ID,
			fmt.Sprintf("message %q", created.Subject),
			domain.Ref(domain.EntityUser, created.SenderID), recipientRef(tx.Snapshot(), created.RecipientID)), nil
	})
	return created, err
}

func (h Messages) MarkAsRead(ctx context.Context, id string) error {
	return h.s.mutate(ctx, "message.mark_read", func(tx domain.Transaction, _ domain.User) (domain.AuditLogEntry, error) {
		updated, err := tx.UpdateMessage(id, func(m *domain.Message) error {
			m.Read = true
			return nil
		})
		if err != nil {
			return domain.AuditLogEntry{}, err
		}
		return auditEntry(domain.AuditUpdate, domain.EntityMessage, id, fmt.Sprintf("message %q read", updated.Subject)), nil
	})
}
