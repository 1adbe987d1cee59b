package core

import (
	"context"
	"sort"
	"time"

	"estatecore/pkg/domain"
)

// Audit exposes the append-only audit log. There is no update or delete.
type Audit struct{ s *Service }

// List returns every entry, oldest first.
func (h Audit) List(ctx context.Context) []domain.AuditLogEntry {
	return read(ctx, h.s, func(v domain.TransactionView) []domain.AuditLogEntry { return v.ListAuditLog() })
}

// Add appends a manual entry stamped with the acting user. Identifier,
// sequence and timestamp are always assigned by the store.
func (h Audit) Add(ctx context.Context, entry domain.AuditLogEntry) (domain.AuditLogEntry, error) {
	if entry.Action == "" {
		return domain.AuditLogEntry{}, domain.NewValidationError("audit_log", "action", "is required")
	}
	entry.ID, entry.Seq, entry.Timestamp = "", 0, time.Time{}
	return h.s.apply(ctx, "audit.add", func(domain.Transaction, domain.User) (domain.AuditLogEntry, error) {
		return entry, nil
	})
}

// Activity returns the entries correlated with ref, newest first. Entries
// sharing a timestamp are ordered by sequence, highest first.
func (h Audit) Activity(ctx context.Context, ref domain.EntityRef) []domain.AuditLogEntry {
	entries := read(ctx, h.s, func(v domain.TransactionView) []domain.AuditLogEntry { return v.AuditFor(ref) })
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if !a.Timestamp.Equal(b.Timestamp) {
			return a.Timestamp.After(b.Timestamp)
		}
		return a.Seq > b.Seq
	})
	return entries
}
