package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"go.uber.org/zap"

	"estatecore/internal/statement"
	"estatecore/pkg/domain"
)

// PaymentGateway performs the external payment attempt for an invoice and
// returns the provider reference on success.
type PaymentGateway interface {
	Charge(ctx context.Context, invoice domain.Invoice) (string, error)
}

// Financial is the ledger handle: invoices and their payment records, ledger
// entries, settings and bank statement staging.
type Financial struct{ s *Service }

// Invoices returns all invoices in creation order.
func (h Financial) Invoices(ctx context.Context) []domain.Invoice {
	return read(ctx, h.s, func(v domain.TransactionView) []domain.Invoice { return v.ListInvoices() })
}

// Invoice looks an invoice up by ID.
func (h Financial) Invoice(ctx context.Context, id string) (domain.Invoice, bool) {
	var (
		inv domain.Invoice
		ok  bool
	)
	_ = h.s.View(ctx, func(v domain.TransactionView) error {
		inv, ok = v.FindInvoice(id)
		return nil
	})
	return inv, ok
}

// Payment returns the payment record of an invoice.
func (h Financial) Payment(ctx context.Context, invoiceID string) (domain.PaymentRecord, bool) {
	var (
		p  domain.PaymentRecord
		ok bool
	)
	_ = h.s.View(ctx, func(v domain.TransactionView) error {
		p, ok = v.FindPayment(invoiceID)
		return nil
	})
	return p, ok
}

// PaymentStatusFor derives the payment state of a payable record (task,
// booking, ...) from its invoices: paid only when every invoice is paid. The
// boolean is false when no invoice points at ref.
func (h Financial) PaymentStatusFor(ctx context.Context, ref domain.EntityRef) (domain.InvoiceStatus, bool) {
	invoices := read(ctx, h.s, func(v domain.TransactionView) []domain.Invoice { return v.ListInvoicesFor(ref) })
	if len(invoices) == 0 {
		return "", false
	}
	for _, inv := range invoices {
		if inv.Status != domain.InvoicePaid {
			return domain.InvoiceOpen, true
		}
	}
	return domain.InvoicePaid, true
}

func (h Financial) Settings(ctx context.Context) domain.FinancialSettings {
	return read(ctx, h.s, func(v domain.TransactionView) domain.FinancialSettings { return v.Settings() })
}

func (h Financial) BankStatements(ctx context.Context) []domain.BankStatement {
	return read(ctx, h.s, func(v domain.TransactionView) []domain.BankStatement { return v.ListBankStatements() })
}

func (h Financial) LedgerEntries(ctx context.Context) []domain.LedgerEntry {
	return read(ctx, h.s, func(v domain.TransactionView) []domain.LedgerEntry { return v.ListLedgerEntries() })
}

func invoiceRelations(inv domain.Invoice) []domain.EntityRef {
	if inv.Payable == nil {
		return nil
	}
	return []domain.EntityRef{*inv.Payable}
}

// AddInvoice creates an open invoice together with a pending payment record.
// A zero due date defaults to the configured number of days ahead.
func (h Financial) AddInvoice(ctx context.Context, inv domain.Invoice) (domain.Invoice, error) {
	inv.Status = domain.InvoiceOpen
	inv.PaidAt = nil
	if err := h.s.check(domain.EntityInvoice, inv); err != nil {
		return domain.Invoice{}, err
	}
	var created domain.Invoice
	err := h.s.mutate(ctx, "invoice.add", func(tx domain.Transaction, _ domain.User) (domain.AuditLogEntry, error) {
		if inv.DueDate.IsZero() {
			inv.DueDate = tx.Now().AddDate(0, 0, tx.Snapshot().Settings().DefaultDueDays)
		}
		var err error
		if created, err = tx.CreateInvoice(inv); err != nil {
			return domain.AuditLogEntry{}, err
		}
		if _, err := tx.PutPayment(domain.PaymentRecord{InvoiceID: created.ID, Status: domain.PaymentPending}); err != nil {
			return domain.AuditLogEntry{}, err
		}
		return auditEntry(domain.AuditCreate, domain.EntityInvoice, created.ID,
			fmt.Sprintf("created invoice %q for %s", created.Description, formatCents(created.AmountCents)),
			invoiceRelations(created)...), nil
	})
	return created, err
}

// UpdateInvoice replaces an invoice. Moving it to paid stamps PaidAt and marks
// its payment record paid; a paid invoice cannot be reopened.
func (h Financial) UpdateInvoice(ctx context.Context, inv domain.Invoice) error {
	if inv.Status == "" {
		inv.Status = domain.InvoiceOpen
	}
	if err := h.s.check(domain.EntityInvoice, inv); err != nil {
		return err
	}
	return h.s.mutate(ctx, "invoice.update", func(tx domain.Transaction, _ domain.User) (domain.AuditLogEntry, error) {
		var before domain.Invoice
		updated, err := tx.UpdateInvoice(inv.ID, func(cur *domain.Invoice) error {
			before = *cur
			next := inv
			switch {
			case next.Status == domain.InvoicePaid && cur.Status == domain.InvoicePaid:
				next.PaidAt = cur.PaidAt
			case next.Status == domain.InvoicePaid:
				now := tx.Now()
				next.PaidAt = &now
			default:
				next.PaidAt = nil
			}
			*cur = next
			return nil
		})
		if err != nil {
			return domain.AuditLogEntry{}, err
		}
		action := domain.AuditUpdate
		details := updateDetails("invoice", updated.Description, before, updated)
		if updated.Status == domain.InvoicePaid && before.Status != domain.InvoicePaid {
			if err := syncPayment(tx, updated.ID, domain.PaymentPaid, ""); err != nil {
				return domain.AuditLogEntry{}, err
			}
			details = fmt.Sprintf("invoice %q marked paid", updated.Description)
		}
		return auditEntry(action, domain.EntityInvoice, updated.ID, details, invoiceRelations(updated)...), nil
	})
}

func syncPayment(tx domain.Transaction, invoiceID string, status domain.PaymentStatus, reference string) error {
	record, _ := tx.Snapshot().FindPayment(invoiceID)
	record.InvoiceID = invoiceID
	record.Status = status
	if reference != "" {
		record.Reference = reference
	}
	_, err := tx.PutPayment(record)
	return err
}

// MarkPaymentAs sets the payment record status and derives the invoice status
// from it in the same transaction.
func (h Financial) MarkPaymentAs(ctx context.Context, invoiceID string, status domain.PaymentStatus, reference string) error {
	switch status {
	case domain.PaymentPending, domain.PaymentProcessing, domain.PaymentPaid, domain.PaymentFailed, domain.PaymentCancelled:
	default:
		return domain.NewValidationError(domain.EntityPayment, "status", fmt.Sprintf("unknown status %q", status))
	}
	return h.s.mutate(ctx, "invoice.mark_payment", func(tx domain.Transaction, _ domain.User) (domain.AuditLogEntry, error) {
		inv, ok := tx.Snapshot().FindInvoice(invoiceID)
		if !ok {
			return domain.AuditLogEntry{}, domain.NotFoundError{Entity: domain.EntityInvoice, ID: invoiceID}
		}
		if err := syncPayment(tx, invoiceID, status, reference); err != nil {
			return domain.AuditLogEntry{}, err
		}
		if derived := status.InvoiceStatus(); derived != inv.Status {
			if _, err := tx.UpdateInvoice(invoiceID, func(cur *domain.Invoice) error {
				cur.Status = derived
				if derived == domain.InvoicePaid {
					now := tx.Now()
					cur.PaidAt = &now
				}
				return nil
			}); err != nil {
				return domain.AuditLogEntry{}, err
			}
		}
		details := fmt.Sprintf("payment marked %s", status)
		if reference != "" {
			details += " (ref " + reference + ")"
		}
		return auditEntry(domain.AuditPayment, domain.EntityInvoice, invoiceID, details, invoiceRelations(inv)...), nil
	})
}

// PayInvoice performs the external payment through gateway and, on success,
// marks the invoice paid. A gateway failure leaves the store untouched.
func (h Financial) PayInvoice(ctx context.Context, invoiceID string, gateway PaymentGateway) error {
	inv, ok := h.Invoice(ctx, invoiceID)
	if !ok {
		return domain.NotFoundError{Entity: domain.EntityInvoice, ID: invoiceID}
	}
	if inv.Status == domain.InvoicePaid {
		return domain.NewValidationError(domain.EntityInvoice, "status", "invoice is already paid")
	}
	if gateway == nil {
		return domain.ExternalOperationError{Operation: "invoice.pay", Err: errors.New("no payment gateway configured")}
	}
	start := time.Now()
	reference, err := gateway.Charge(ctx, inv)
	h.s.metrics.Observe(ctx, "invoice.pay.gateway", err == nil, time.Since(start))
	if err != nil {
		h.s.logger.Warn("payment attempt failed", zap.String("invoice_id", invoiceID), zap.Error(err))
		return domain.ExternalOperationError{Operation: "invoice.pay", Err: err}
	}
	return h.MarkPaymentAs(ctx, invoiceID, domain.PaymentPaid, reference)
}

// UpdateSettings replaces the financial settings.
func (h Financial) UpdateSettings(ctx context.Context, settings domain.FinancialSettings) error {
	if settings.Currency == "" {
		settings.Currency = domain.DefaultFinancialSettings().Currency
	}
	if err := h.s.check(domain.EntitySettings, settings); err != nil {
		return err
	}
	return h.s.mutate(ctx, "settings.update", func(tx domain.Transaction, _ domain.User) (domain.AuditLogEntry, error) {
		before := tx.Snapshot().Settings()
		updated, err := tx.PutSettings(settings)
		if err != nil {
			return domain.AuditLogEntry{}, err
		}
		return auditEntry(domain.AuditUpdate, domain.EntitySettings, "default", updateDetails("settings", updated.Currency, before, updated)), nil
	})
}

// UploadBankStatement stages statement lines for manual reconciliation. No
// ledger entries are posted.
func (h Financial) UploadBankStatement(ctx context.Context, fileName string, lines []domain.StatementLine) (domain.BankStatement, error) {
	stmt := domain.BankStatement{FileName: fileName, Lines: lines}
	if err := h.s.check(domain.EntityBankStatement, stmt); err != nil {
		return domain.BankStatement{}, err
	}
	var created domain.BankStatement
	err := h.s.mutate(ctx, "bank_statement.upload", func(tx domain.Transaction, _ domain.User) (domain.AuditLogEntry, error) {
		var err error
		if created, err = tx.CreateBankStatement(stmt); err != nil {
			return domain.AuditLogEntry{}, err
		}
		return auditEntry(domain.AuditImport, domain.EntityBankStatement, created.ID,
			fmt.Sprintf("imported %s with %d lines", created.FileName, len(created.Lines))), nil
	})
	return created, err
}

// ImportBankStatement parses a CSV or XLSX statement and stages it.
func (h Financial) ImportBankStatement(ctx context.Context, fileName string, r io.Reader) (domain.BankStatement, error) {
	lines, err := statement.Parse(fileName, r)
	if err != nil {
		return domain.BankStatement{}, domain.NewValidationError(domain.EntityBankStatement, "file", err.Error())
	}
	return h.UploadBankStatement(ctx, fileName, lines)
}

// ReconcileStatementLine matches a staged statement line with a ledger entry
// and marks the entry reconciled.
func (h Financial) ReconcileStatementLine(ctx context.Context, statementID, lineID, ledgerEntryID string) error {
	return h.s.mutate(ctx, "bank_statement.reconcile", func(tx domain.Transaction, _ domain.User) (domain.AuditLogEntry, error) {
		view := tx.Snapshot()
		stmt, ok := view.FindBankStatement(statementID)
		if !ok {
			return domain.AuditLogEntry{}, domain.NotFoundError{Entity: domain.EntityBankStatement, ID: statementID}
		}
		idx := indexOfLine(stmt, lineID)
		if idx < 0 {
			return domain.AuditLogEntry{}, domain.NotFoundError{Entity: domain.EntityBankStatement, ID: statementID + "/" + lineID}
		}
		entry, ok := view.FindLedgerEntry(ledgerEntryID)
		if !ok {
			return domain.AuditLogEntry{}, domain.ReferentialIntegrityError{
				Entity: domain.EntityBankStatement, EntityID: statementID, Field: "lines.matched_ledger_entry_id",
				Target: domain.EntityLedgerEntry, TargetID: ledgerEntryID,
			}
		}
		if m := stmt.Lines[idx].MatchedLedgerEntryID; m != nil && *m != ledgerEntryID {
			return domain.AuditLogEntry{}, domain.NewValidationError(domain.EntityBankStatement, "lines", "line is already reconciled with "+*m)
		}
		if entry.StatementLineID != nil && *entry.StatementLineID != lineID {
			return domain.AuditLogEntry{}, domain.NewValidationError(domain.EntityLedgerEntry, "statement_line_id", "entry is already reconciled with "+*entry.StatementLineID)
		}
		if _, err := tx.UpdateBankStatement(statementID, func(b *domain.BankStatement) error {
			id := ledgerEntryID
			b.Lines[idx].MatchedLedgerEntryID = &id
			return nil
		}); err != nil {
			return domain.AuditLogEntry{}, err
		}
		if _, err := tx.UpdateLedgerEntry(ledgerEntryID, func(e *domain.LedgerEntry) error {
			id := lineID
			e.Reconciled = true
			e.StatementLineID = &id
			return nil
		}); err != nil {
			return domain.AuditLogEntry{}, err
		}
		return auditEntry(domain.AuditReconcile, domain.EntityBankStatement, statementID,
			fmt.Sprintf("matched line %s with ledger entry %q", lineID, entry.Description),
			domain.Ref(domain.EntityLedgerEntry, ledgerEntryID)), nil
	})
}

func indexOfLine(stmt domain.BankStatement, lineID string) int {
	for i, l := range stmt.Lines {
		if l.ID == lineID {
			return i
		}
	}
	return -1
}

// MatchSuggestion pairs an unmatched statement line with a candidate ledger entry.
type MatchSuggestion struct {
	LineID        string
	LedgerEntryID string
	DayDistance   int
}

// SuggestMatches lists unreconciled ledger entries with the same amount as an
// unmatched line of the statement and a date within the reconcile window,
// closest dates first.
func (h Financial) SuggestMatches(ctx context.Context, statementID string) ([]MatchSuggestion, error) {
	var out []MatchSuggestion
	err := h.s.View(ctx, func(v domain.TransactionView) error {
		stmt, ok := v.FindBankStatement(statementID)
		if !ok {
			return domain.NotFoundError{Entity: domain.EntityBankStatement, ID: statementID}
		}
		window := v.Settings().ReconcileWindowDays
		entries := v.ListLedgerEntries()
		for _, line := range stmt.Lines {
			if line.MatchedLedgerEntryID != nil {
				continue
			}
			var candidates []MatchSuggestion
			for _, e := range entries {
				if e.Reconciled || e.AmountCents != line.AmountCents {
					continue
				}
				d := dayDistance(line.Date, e.Date)
				if d > window {
					continue
				}
				candidates = append(candidates, MatchSuggestion{LineID: line.ID, LedgerEntryID: e.ID, DayDistance: d})
			}
			sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].DayDistance < candidates[j].DayDistance })
			out = append(out, candidates...)
		}
		return nil
	})
	return out, err
}

func dayDistance(a, b time.Time) int {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	d := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC).Sub(time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC))
	if d < 0 {
		d = -d
	}
	return int(d.Hours() / 24)
}

func ledgerRelations(e domain.LedgerEntry) []domain.EntityRef {
	if e.InvoiceID == nil {
		return nil
	}
	return []domain.EntityRef{domain.Ref(domain.EntityInvoice, *e.InvoiceID)}
}

// AddLedgerEntry posts a manual or invoice-linked ledger entry.
func (h Financial) AddLedgerEntry(ctx context.Context, e domain.LedgerEntry) (domain.LedgerEntry, error) {
	if err := h.s.check(domain.EntityLedgerEntry, e); err != nil {
		return domain.LedgerEntry{}, err
	}
	var created domain.LedgerEntry
	err := h.s.mutate(ctx, "ledger_entry.add", func(tx domain.Transaction, _ domain.User) (domain.AuditLogEntry, error) {
		var err error
		if created, err = tx.CreateLedgerEntry(e); err != nil {
			return domain.AuditLogEntry{}, err
		}
		return auditEntry(domain.AuditCreate, domain.EntityLedgerEntry, created.ID,
			fmt.Sprintf("posted %q %s", created.Description, formatCents(created.AmountCents)), ledgerRelations(created)...), nil
	})
	return created, err
}

// UpdateLedgerEntry replaces a ledger entry. Reconciled and StatementLineID
// are owned by ReconcileStatementLine and keep their stored values.
func (h Financial) UpdateLedgerEntry(ctx context.Context, e domain.LedgerEntry) error {
	if err := h.s.check(domain.EntityLedgerEntry, e); err != nil {
		return err
	}
	return h.s.mutate(ctx, "ledger_entry.update", func(tx domain.Transaction, _ domain.User) (domain.AuditLogEntry, error) {
		var before domain.LedgerEntry
		updated, err := tx.UpdateLedgerEntry(e.ID, func(cur *domain.LedgerEntry) error {
			before = *cur
			e.Reconciled, e.StatementLineID = cur.Reconciled, cur.StatementLineID
			*cur = e
			return nil
		})
		if err != nil {
			return domain.AuditLogEntry{}, err
		}
		return auditEntry(domain.AuditUpdate, domain.EntityLedgerEntry, updated.ID,
			updateDetails("ledger entry", updated.Description, before, updated), ledgerRelations(updated)...), nil
	})
}

// DeleteLedgerEntry removes a ledger entry. Linked invoices are not touched;
// a statement line matched to the entry goes back to unmatched.
func (h Financial) DeleteLedgerEntry(ctx context.Context, id string) error {
	return h.s.mutate(ctx, "ledger_entry.delete", func(tx domain.Transaction, _ domain.User) (domain.AuditLogEntry, error) {
		view := tx.Snapshot()
		entry, ok := view.FindLedgerEntry(id)
		if !ok {
			return domain.AuditLogEntry{}, domain.NotFoundError{Entity: domain.EntityLedgerEntry, ID: id}
		}
		relations := ledgerRelations(entry)
		details := fmt.Sprintf("deleted %q", entry.Description)
		for _, stmt := range view.ListBankStatements() {
			idx := indexOfMatch(stmt, id)
			if idx < 0 {
				continue
			}
			if _, err := tx.UpdateBankStatement(stmt.ID, func(b *domain.BankStatement) error {
				b.Lines[idx].MatchedLedgerEntryID = nil
				return nil
			}); err != nil {
				return domain.AuditLogEntry{}, err
			}
			relations = append(relations, domain.Ref(domain.EntityBankStatement, stmt.ID))
			details += fmt.Sprintf(", unmatched line %s", stmt.Lines[idx].ID)
		}
		if err := tx.DeleteLedgerEntry(id); err != nil {
			return domain.AuditLogEntry{}, err
		}
		return auditEntry(domain.AuditDelete, domain.EntityLedgerEntry, id, details, relations...), nil
	})
}

func indexOfMatch(stmt domain.BankStatement, ledgerEntryID string) int {
	for i, l := range stmt.Lines {
		if l.MatchedLedgerEntryID != nil && *l.MatchedLedgerEntryID == ledgerEntryID {
			return i
		}
	}
	return -1
}
