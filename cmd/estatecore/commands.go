package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"estatecore/pkg/domain"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "estatecore",
		Short:         "Property management domain store",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("config", ".", "directory holding config.yaml")
	root.PersistentFlags().Bool("metrics", false, "print operation counters after the command")

	statement := &cobra.Command{Use: "statement", Short: "Bank statement staging"}
	statement.AddCommand(statementImportCmd(), statementListCmd())
	invoice := &cobra.Command{Use: "invoice", Short: "Invoice operations"}
	invoice.AddCommand(invoicePayCmd())
	audit := &cobra.Command{Use: "audit", Short: "Audit log"}
	audit.AddCommand(auditListCmd())

	root.AddCommand(seedCmd(), statement, invoice, activityCmd(), audit)
	return root
}

// withApp opens the configured application for the duration of fn.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app, out io.Writer) error) (err error) {
	configDir, _ := cmd.Flags().GetString("config")
	printMetrics, _ := cmd.Flags().GetBool("metrics")
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := openApp(ctx, configDir)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	out := cmd.OutOrStdout()
	if err := fn(ctx, a, out); err != nil {
		return err
	}
	if printMetrics {
		return a.writeMetrics(out)
	}
	return nil
}

func seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Load a small demo portfolio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, seed)
		},
	}
}

func seed(ctx context.Context, a *app, out io.Writer) error {
	svc := a.svc
	admin, err := svc.Users().Add(ctx, domain.User{Name: "Ana Admin", Email: "ana@estate.example", Role: domain.RoleAdmin, Active: true})
	if err != nil {
		return err
	}
	if _, err := svc.Users().Add(ctx, domain.User{Name: "Rui Reviewer", Email: "rui@estate.example", Role: domain.RoleReviewer, Active: true}); err != nil {
		return err
	}
	if err := svc.Auth().SetCurrentUser(ctx, admin.ID); err != nil {
		return err
	}
	defer func() { _ = svc.Auth().Logout(ctx) }()

	owner, err := svc.Owners().Add(ctx, domain.Owner{Name: "Helena Prado", Email: "helena@owners.example"})
	if err != nil {
		return err
	}
	property, err := svc.Properties().Add(ctx, domain.Property{
		OwnerID:       owner.ID,
		Name:          "Beach Loft 204",
		Address:       domain.Address{Street: "Av. Atlântica", Number: "204", City: "Rio de Janeiro", State: "RJ"},
		Status:        domain.PropertyActive,
		Bedrooms:      2,
		Bathrooms:     1,
		GuestCapacity: 4,
	})
	if err != nil {
		return err
	}
	partner, err := svc.Partners().Add(ctx, domain.Partner{
		Name:     "Brilho Cleaning",
		Email:    "ops@brilho.example",
		Category: "cleaning",
		Coverage: domain.RestrictedTo(property.ID),
	})
	if err != nil {
		return err
	}
	tenant, err := svc.Tenants().Add(ctx, domain.Tenant{Name: "Marco Silva", Email: "marco@guests.example"})
	if err != nil {
		return err
	}
	checkIn := time.Now().UTC().Truncate(24 * time.Hour).AddDate(0, 0, 7)
	booking, err := svc.Bookings().Add(ctx, domain.Booking{
		PropertyID: property.ID,
		TenantID:   tenant.ID,
		CheckIn:    checkIn,
		CheckOut:   checkIn.AddDate(0, 0, 3),
		Guests:     2,
		TotalCents: 180000,
		Status:     domain.BookingConfirmed,
	})
	if err != nil {
		return err
	}
	task, err := svc.Tasks().Add(ctx, domain.Task{
		PropertyID:   property.ID,
		AssigneeID:   partner.ID,
		AssigneeKind: domain.AssigneePartner,
		Title:        "Turnover cleaning",
		Status:       domain.TaskPending,
		Date:         checkIn.AddDate(0, 0, 3),
	})
	if err != nil {
		return err
	}
	if err := svc.Tasks().UpdateStatus(ctx, task.ID, domain.TaskInProgress); err != nil {
		return err
	}
	if _, err := svc.Tasks().UploadImage(ctx, task.ID, "living-room.jpg", bytes.NewReader([]byte("demo image")), "image/jpeg"); err != nil {
		return err
	}
	if _, err := svc.Tasks().NotifySupplier(ctx, task.ID, "Guests check out at 11:00"); err != nil {
		return err
	}
	bookingRef := domain.Ref(domain.EntityBooking, booking.ID)
	invoice, err := svc.Financial().AddInvoice(ctx, domain.Invoice{
		Description: "Booking " + booking.ID,
		AmountCents: booking.TotalCents,
		Payable:     &bookingRef,
	})
	if err != nil {
		return err
	}
	if _, err := svc.Financial().AddLedgerEntry(ctx, domain.LedgerEntry{
		Date:        checkIn,
		Description: "Booking income",
		Category:    "rent",
		AmountCents: booking.TotalCents,
		InvoiceID:   &invoice.ID,
	}); err != nil {
		return err
	}

	for _, row := range [][2]string{
		{"user", admin.ID},
		{"owner", owner.ID},
		{"property", property.ID},
		{"partner", partner.ID},
		{"tenant", tenant.ID},
		{"booking", booking.ID},
		{"task", task.ID},
		{"invoice", invoice.ID},
	} {
		if _, err := fmt.Fprintf(out, "%-10s %s\n", row[0], row[1]); err != nil {
			return err
		}
	}
	return nil
}

func statementImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Stage a CSV or XLSX bank statement and list match suggestions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app, out io.Writer) error {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer func() { _ = f.Close() }()
				stmt, err := a.svc.Financial().ImportBankStatement(ctx, filepath.Base(args[0]), f)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "statement %s: %d lines\n", stmt.ID, len(stmt.Lines))
				suggestions, err := a.svc.Financial().SuggestMatches(ctx, stmt.ID)
				if err != nil {
					return err
				}
				for _, s := range suggestions {
					fmt.Fprintf(out, "  line %s -> ledger %s (%d days)\n", s.LineID, s.LedgerEntryID, s.DayDistance)
				}
				return nil
			})
		},
	}
}

func statementListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List staged bank statements",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, a *app, out io.Writer) error {
				for _, stmt := range a.svc.Financial().BankStatements(ctx) {
					matched := 0
					for _, l := range stmt.Lines {
						if l.MatchedLedgerEntryID != nil {
							matched++
						}
					}
					fmt.Fprintf(out, "%s  %-30s %d/%d matched\n", stmt.ID, stmt.FileName, matched, len(stmt.Lines))
				}
				return nil
			})
		},
	}
}

func invoicePayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pay <invoice-id>",
		Short: "Charge an invoice through the payment gateway",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app, out io.Writer) error {
				if err := a.svc.Financial().PayInvoice(ctx, args[0], a.gateway()); err != nil {
					return err
				}
				rec, _ := a.svc.Financial().Payment(ctx, args[0])
				fmt.Fprintf(out, "invoice %s %s (%s)\n", args[0], rec.Status, rec.Reference)
				return nil
			})
		},
	}
}

func activityCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "activity <entity> <id>",
		Short: "Show the audit entries correlated with a record, newest first",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app, out io.Writer) error {
				ref := domain.Ref(domain.EntityType(args[0]), args[1])
				return printEntries(out, a.svc.Audit().Activity(ctx, ref))
			})
		},
	}
}

func auditListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Print the audit log, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			return withApp(cmd, func(ctx context.Context, a *app, out io.Writer) error {
				entries := a.svc.Audit().List(ctx)
				if limit > 0 && len(entries) > limit {
					entries = entries[len(entries)-limit:]
				}
				return printEntries(out, entries)
			})
		},
	}
	cmd.Flags().Int("limit", 0, "only print the last n entries")
	return cmd
}

func printEntries(out io.Writer, entries []domain.AuditLogEntry) error {
	for _, e := range entries {
		_, err := fmt.Fprintf(out, "%4d  %s  %-12s %-9s %s/%s  %s\n",
			e.Seq, e.Timestamp.Format(time.RFC3339), e.UserName, e.Action, e.Entity, e.EntityID, e.Details)
		if err != nil {
			return err
		}
	}
	return nil
}
