package core

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"estatecore/pkg/domain"
)

func addBooking(t *testing.T, svc *Service, f fixture) domain.Booking {
	t.Helper()
	ctx := context.Background()
	tenant, err := svc.Tenants().Add(ctx, domain.Tenant{Name: "Marco"})
	require.NoError(t, err)
	b, err := svc.Bookings().Add(ctx, domain.Booking{
		PropertyID: f.property.ID,
		TenantID:   tenant.ID,
		CheckIn:    epoch.AddDate(0, 0, 7),
		CheckOut:   epoch.AddDate(0, 0, 10),
		TotalCents: 90000,
	})
	require.NoError(t, err)
	require.Equal(t, domain.BookingReserved, b.Status)
	return b
}

func addInvoice(t *testing.T, svc *Service, payable domain.EntityRef, cents int64) domain.Invoice {
	t.Helper()
	inv, err := svc.Financial().AddInvoice(context.Background(), domain.Invoice{
		Description: "Stay " + payable.ID,
		AmountCents: cents,
		Status:      domain.InvoicePaid,
		Payable:     &payable,
	})
	require.NoError(t, err)
	return inv
}

func TestAddInvoiceStartsOpenWithPendingPayment(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	f := seedFixture(t, svc)
	b := addBooking(t, svc, f)
	inv := addInvoice(t, svc, domain.Ref(domain.EntityBooking, b.ID), 90000)

	require.Equal(t, domain.InvoiceOpen, inv.Status)
	require.Nil(t, inv.PaidAt)
	require.Equal(t, 10, int(inv.DueDate.Sub(inv.CreatedAt).Hours()/24))
	rec, ok := svc.Financial().Payment(ctx, inv.ID)
	require.True(t, ok)
	require.Equal(t, domain.PaymentPending, rec.Status)

	activity := svc.Audit().Activity(ctx, domain.Ref(domain.EntityBooking, b.ID))
	require.Equal(t, inv.ID, activity[0].EntityID)

	missing := domain.Ref(domain.EntityBooking, "ghost")
	_, err := svc.Financial().AddInvoice(ctx, domain.Invoice{Description: "x", AmountCents: 1, Payable: &missing})
	require.ErrorAs(t, err, new(domain.ReferentialIntegrityError))
	_, err = svc.Financial().AddInvoice(ctx, domain.Invoice{Description: "x"})
	require.ErrorAs(t, err, new(domain.ValidationError))
}

func TestUpdateInvoiceToPaidIsTerminal(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	f := seedFixture(t, svc)
	b := addBooking(t, svc, f)
	inv := addInvoice(t, svc, domain.Ref(domain.EntityBooking, b.ID), 90000)

	inv.Status = domain.InvoicePaid
	require.NoError(t, svc.Financial().UpdateInvoice(ctx, inv))
	got, _ := svc.Financial().Invoice(ctx, inv.ID)
	require.Equal(t, domain.InvoicePaid, got.Status)
	require.NotNil(t, got.PaidAt)
	rec, _ := svc.Financial().Payment(ctx, inv.ID)
	require.Equal(t, domain.PaymentPaid, rec.Status)
	require.Contains(t, lastAudit(t, svc).Details, "marked paid")

	before := auditLen(t, svc)
	inv.Status = domain.InvoiceOpen
	var rv domain.RuleViolationError
	require.ErrorAs(t, svc.Financial().UpdateInvoice(ctx, inv), &rv)
	require.Equal(t, before, auditLen(t, svc))

	got.Description = "Stay (corrected)"
	require.NoError(t, svc.Financial().UpdateInvoice(ctx, got))
	again, _ := svc.Financial().Invoice(ctx, inv.ID)
	require.Equal(t, got.PaidAt.Unix(), again.PaidAt.Unix())
}

func TestMarkPaymentAsDerivesInvoiceStatus(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	f := seedFixture(t, svc)
	b := addBooking(t, svc, f)
	inv := addInvoice(t, svc, domain.Ref(domain.EntityBooking, b.ID), 90000)

	require.NoError(t, svc.Financial().MarkPaymentAs(ctx, inv.ID, domain.PaymentProcessing, ""))
	got, _ := svc.Financial().Invoice(ctx, inv.ID)
	require.Equal(t, domain.InvoiceOpen, got.Status)

	require.NoError(t, svc.Financial().MarkPaymentAs(ctx, inv.ID, domain.PaymentPaid, "pix-123"))
	got, _ = svc.Financial().Invoice(ctx, inv.ID)
	require.Equal(t, domain.InvoicePaid, got.Status)
	require.NotNil(t, got.PaidAt)
	rec, _ := svc.Financial().Payment(ctx, inv.ID)
	require.Equal(t, "pix-123", rec.Reference)
	entry := lastAudit(t, svc)
	require.Equal(t, domain.AuditPayment, entry.Action)
	require.Contains(t, entry.Details, "pix-123")

	var rv domain.RuleViolationError
	require.ErrorAs(t, svc.Financial().MarkPaymentAs(ctx, inv.ID, domain.PaymentFailed, ""), &rv)
	rec, _ = svc.Financial().Payment(ctx, inv.ID)
	require.Equal(t, domain.PaymentPaid, rec.Status)

	require.ErrorAs(t, svc.Financial().MarkPaymentAs(ctx, inv.ID, "refunded", ""), new(domain.ValidationError))
	require.ErrorAs(t, svc.Financial().MarkPaymentAs(ctx, "ghost", domain.PaymentPaid, ""), new(domain.NotFoundError))
}

func TestPaymentStatusForIsDerived(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	f := seedFixture(t, svc)
	b := addBooking(t, svc, f)
	ref := domain.Ref(domain.EntityBooking, b.ID)

	_, ok := svc.Financial().PaymentStatusFor(ctx, ref)
	require.False(t, ok)

	first := addInvoice(t, svc, ref, 50000)
	second := addInvoice(t, svc, ref, 40000)
	status, ok := svc.Financial().PaymentStatusFor(ctx, ref)
	require.True(t, ok)
	require.Equal(t, domain.InvoiceOpen, status)

	require.NoError(t, svc.Financial().MarkPaymentAs(ctx, first.ID, domain.PaymentPaid, ""))
	status, _ = svc.Financial().PaymentStatusFor(ctx, ref)
	require.Equal(t, domain.InvoiceOpen, status)

	require.NoError(t, svc.Financial().MarkPaymentAs(ctx, second.ID, domain.PaymentPaid, ""))
	status, _ = svc.Financial().PaymentStatusFor(ctx, ref)
	require.Equal(t, domain.InvoicePaid, status)
}

func TestPayInvoiceThroughGateway(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	f := seedFixture(t, svc)
	b := addBooking(t, svc, f)
	inv := addInvoice(t, svc, domain.Ref(domain.EntityBooking, b.ID), 90000)

	declined := &fakeGateway{err: errors.New("card declined")}
	before := auditLen(t, svc)
	err := svc.Financial().PayInvoice(ctx, inv.ID, declined)
	var ext domain.ExternalOperationError
	require.ErrorAs(t, err, &ext)
	require.Equal(t, "invoice.pay", ext.Operation)
	require.Equal(t, before, auditLen(t, svc))
	rec, _ := svc.Financial().Payment(ctx, inv.ID)
	require.Equal(t, domain.PaymentPending, rec.Status)

	require.ErrorAs(t, svc.Financial().PayInvoice(ctx, inv.ID, nil), &ext)

	gw := &fakeGateway{ref: "ch_1"}
	require.NoError(t, svc.Financial().PayInvoice(ctx, inv.ID, gw))
	require.Equal(t, 1, gw.calls)
	got, _ := svc.Financial().Invoice(ctx, inv.ID)
	require.Equal(t, domain.InvoicePaid, got.Status)
	rec, _ = svc.Financial().Payment(ctx, inv.ID)
	require.Equal(t, "ch_1", rec.Reference)

	require.ErrorAs(t, svc.Financial().PayInvoice(ctx, inv.ID, gw), new(domain.ValidationError))
	require.Equal(t, 1, gw.calls)
	require.ErrorAs(t, svc.Financial().PayInvoice(ctx, "ghost", gw), new(domain.NotFoundError))
}

func TestSettingsUpdate(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	require.Equal(t, domain.DefaultFinancialSettings().Currency, svc.Financial().Settings(ctx).Currency)

	require.NoError(t, svc.Financial().UpdateSettings(ctx, domain.FinancialSettings{DefaultDueDays: 5, ReconcileWindowDays: 1}))
	s := svc.Financial().Settings(ctx)
	require.Equal(t, "BRL", s.Currency)
	require.Equal(t, 5, s.DefaultDueDays)

	require.ErrorAs(t, svc.Financial().UpdateSettings(ctx, domain.FinancialSettings{Currency: "EURO"}), new(domain.ValidationError))
}

func TestStatementStagingAndReconciliation(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	fin := svc.Financial()

	day := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)
	near, err := fin.AddLedgerEntry(ctx, domain.LedgerEntry{Date: day.AddDate(0, 0, 1), Description: "Rent June", AmountCents: 250000})
	require.NoError(t, err)
	far, err := fin.AddLedgerEntry(ctx, domain.LedgerEntry{Date: day.AddDate(0, 0, 10), Description: "Rent July", AmountCents: 250000})
	require.NoError(t, err)
	exact, err := fin.AddLedgerEntry(ctx, domain.LedgerEntry{Date: day, Description: "Deposit", AmountCents: 250000})
	require.NoError(t, err)

	stmt, err := fin.UploadBankStatement(ctx, "june.csv", []domain.StatementLine{
		{Date: day, Description: "TED rent", AmountCents: 250000},
		{Date: day, Description: "Bank fee", AmountCents: -1290},
	})
	require.NoError(t, err)
	require.Len(t, stmt.Lines, 2)
	require.NotEmpty(t, stmt.Lines[0].ID)
	require.Len(t, fin.LedgerEntries(ctx), 3)
	require.Equal(t, domain.AuditImport, lastAudit(t, svc).Action)

	suggestions, err := fin.SuggestMatches(ctx, stmt.ID)
	require.NoError(t, err)
	require.Equal(t, []MatchSuggestion{
		{LineID: stmt.Lines[0].ID, LedgerEntryID: exact.ID, DayDistance: 0},
		{LineID: stmt.Lines[0].ID, LedgerEntryID: near.ID, DayDistance: 1},
	}, suggestions)

	lineID := stmt.Lines[0].ID
	require.NoError(t, fin.ReconcileStatementLine(ctx, stmt.ID, lineID, near.ID))
	entries := fin.LedgerEntries(ctx)
	require.True(t, entries[0].Reconciled)
	require.Equal(t, lineID, *entries[0].StatementLineID)
	require.False(t, entries[1].Reconciled)
	staged := fin.BankStatements(ctx)[0]
	require.Equal(t, near.ID, *staged.Lines[0].MatchedLedgerEntryID)

	activity := svc.Audit().Activity(ctx, domain.Ref(domain.EntityLedgerEntry, near.ID))
	require.Equal(t, domain.AuditReconcile, activity[0].Action)

	suggestions, err = fin.SuggestMatches(ctx, stmt.ID)
	require.NoError(t, err)
	require.Empty(t, suggestions)

	require.ErrorAs(t, fin.ReconcileStatementLine(ctx, stmt.ID, lineID, far.ID), new(domain.ValidationError))
	require.ErrorAs(t, fin.ReconcileStatementLine(ctx, stmt.ID, stmt.Lines[1].ID, near.ID), new(domain.ValidationError))
	require.ErrorAs(t, fin.ReconcileStatementLine(ctx, stmt.ID, stmt.Lines[1].ID, "ghost"), new(domain.ReferentialIntegrityError))
	require.ErrorAs(t, fin.ReconcileStatementLine(ctx, stmt.ID, "ghost", far.ID), new(domain.NotFoundError))
	require.ErrorAs(t, fin.ReconcileStatementLine(ctx, "ghost", lineID, far.ID), new(domain.NotFoundError))
	_, err = fin.SuggestMatches(ctx, "ghost")
	require.ErrorAs(t, err, new(domain.NotFoundError))
}

func TestImportBankStatementParsesFile(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	csv := "Data;Histórico;Valor\n10/06/2024;PIX recebido;1.500,00\n11/06/2024;Tarifa;-12,90\n"
	stmt, err := svc.Financial().ImportBankStatement(ctx, "extrato.csv", strings.NewReader(csv))
	require.NoError(t, err)
	require.Equal(t, "extrato.csv", stmt.FileName)
	require.Len(t, stmt.Lines, 2)
	require.Equal(t, int64(150000), stmt.Lines[0].AmountCents)
	require.Equal(t, int64(-1290), stmt.Lines[1].AmountCents)

	_, err = svc.Financial().ImportBankStatement(ctx, "extrato.pdf", strings.NewReader("%PDF"))
	var vErr domain.ValidationError
	require.ErrorAs(t, err, &vErr)
	require.Equal(t, "file", vErr.Fields[0].Field)
	require.Len(t, svc.Financial().BankStatements(ctx), 1)
}

func TestLedgerEntryLifecycleKeepsInvoices(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	f := seedFixture(t, svc)
	b := addBooking(t, svc, f)
	inv := addInvoice(t, svc, domain.Ref(domain.EntityBooking, b.ID), 90000)

	entry, err := svc.Financial().AddLedgerEntry(ctx, domain.LedgerEntry{Date: epoch, Description: "Stay income", AmountCents: 90000, InvoiceID: &inv.ID})
	require.NoError(t, err)
	entry.Category = "rent"
	require.NoError(t, svc.Financial().UpdateLedgerEntry(ctx, entry))
	require.Contains(t, lastAudit(t, svc).Details, "category")

	invoiceActivity := svc.Audit().Activity(ctx, domain.Ref(domain.EntityInvoice, inv.ID))
	require.Equal(t, entry.ID, invoiceActivity[0].EntityID)

	require.NoError(t, svc.Financial().DeleteLedgerEntry(ctx, entry.ID))
	require.Empty(t, svc.Financial().LedgerEntries(ctx))
	_, ok := svc.Financial().Invoice(ctx, inv.ID)
	require.True(t, ok)
	require.ErrorAs(t, svc.Financial().DeleteLedgerEntry(ctx, entry.ID), new(domain.NotFoundError))

	ghost := "ghost"
	_, err = svc.Financial().AddLedgerEntry(ctx, domain.LedgerEntry{Date: epoch, Description: "x", InvoiceID: &ghost})
	require.ErrorAs(t, err, new(domain.ReferentialIntegrityError))
}

func TestReconciledLedgerEntryUpdateAndDelete(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	fin := svc.Financial()

	day := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)
	rent, err := fin.AddLedgerEntry(ctx, domain.LedgerEntry{Date: day, Description: "Rent June", AmountCents: 250000})
	require.NoError(t, err)
	cleaning, err := fin.AddLedgerEntry(ctx, domain.LedgerEntry{Date: day, Description: "Cleaning", AmountCents: -8000})
	require.NoError(t, err)
	stmt, err := fin.UploadBankStatement(ctx, "june.csv", []domain.StatementLine{
		{Date: day, Description: "TED rent", AmountCents: 250000},
		{Date: day, Description: "PIX cleaning", AmountCents: -8000},
	})
	require.NoError(t, err)
	rentLine, cleaningLine := stmt.Lines[0].ID, stmt.Lines[1].ID
	require.NoError(t, fin.ReconcileStatementLine(ctx, stmt.ID, rentLine, rent.ID))

	// A full replace cannot detach the entry from its statement line.
	edited := rent
	edited.Category = "rent"
	edited.Reconciled = false
	edited.StatementLineID = nil
	require.NoError(t, fin.UpdateLedgerEntry(ctx, edited))
	stored := fin.LedgerEntries(ctx)[0]
	require.Equal(t, "rent", stored.Category)
	require.True(t, stored.Reconciled)
	require.Equal(t, rentLine, *stored.StatementLineID)
	suggestions, err := fin.SuggestMatches(ctx, stmt.ID)
	require.NoError(t, err)
	for _, s := range suggestions {
		require.NotEqual(t, rent.ID, s.LedgerEntryID)
	}

	before := auditLen(t, svc)
	require.NoError(t, fin.DeleteLedgerEntry(ctx, rent.ID))
	require.Equal(t, before+1, auditLen(t, svc))
	entry := lastAudit(t, svc)
	require.Equal(t, domain.AuditDelete, entry.Action)
	require.Contains(t, entry.Details, "unmatched line "+rentLine)
	require.Equal(t, entry.ID, svc.Audit().Activity(ctx, domain.Ref(domain.EntityBankStatement, stmt.ID))[0].ID)

	staged := fin.BankStatements(ctx)[0]
	require.Nil(t, staged.Lines[0].MatchedLedgerEntryID)

	require.NoError(t, fin.ReconcileStatementLine(ctx, stmt.ID, cleaningLine, cleaning.ID))
	replacement, err := fin.AddLedgerEntry(ctx, domain.LedgerEntry{Date: day, Description: "Rent June (reposted)", AmountCents: 250000})
	require.NoError(t, err)
	require.NoError(t, fin.ReconcileStatementLine(ctx, stmt.ID, rentLine, replacement.ID))
	staged = fin.BankStatements(ctx)[0]
	require.Equal(t, replacement.ID, *staged.Lines[0].MatchedLedgerEntryID)
	require.Equal(t, cleaning.ID, *staged.Lines[1].MatchedLedgerEntryID)
}
