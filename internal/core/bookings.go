package core

import (
	"context"
	"fmt"

	"estatecore/pkg/domain"
)

// Tenants is the command/query handle for guests and lessees.
type Tenants struct{ s *Service }

func (h Tenants) List(ctx context.Context) []domain.Tenant {
	return read(ctx, h.s, func(v domain.TransactionView) []domain.Tenant { return v.ListTenants() })
}

func (h Tenants) Add(ctx context.Context, t domain.Tenant) (domain.Tenant, error) {
	if err := h.s.check(domain.EntityTenant, t); err != nil {
		return domain.Tenant{}, err
	}
	var created domain.Tenant
	err := h.s.mutate(ctx, "tenant.add", func(tx domain.Transaction, _ domain.User) (domain.AuditLogEntry, error) {
		var err error
		if created, err = tx.CreateTenant(t); err != nil {
			return domain.AuditLogEntry{}, err
		}
		return auditEntry(domain.AuditCreate, domain.EntityTenant, created.ID, fmt.Sprintf("created tenant %q", created.Name)), nil
	})
	return created, err
}

func (h Tenants) Update(ctx context.Context, t domain.Tenant) error {
	if err := h.s.check(domain.EntityTenant, t); err != nil {
		return err
	}
	return h.s.mutate(ctx, "tenant.update", func(tx domain.Transaction, _ domain.User) (domain.AuditLogEntry, error) {
		var before domain.Tenant
		updated, err := tx.UpdateTenant(t.ID, func(cur *domain.Tenant) error {
			before = *cur
			*cur = t
			return nil
		})
		if err != nil {
			return domain.AuditLogEntry{}, err
		}
		return auditEntry(domain.AuditUpdate, domain.EntityTenant, updated.ID, updateDetails("tenant", updated.Name, before, updated)), nil
	})
}

// Bookings is the command/query handle for reservations.
type Bookings struct{ s *Service }

func (h Bookings) List(ctx context.Context) []domain.Booking {
	return read(ctx, h.s, func(v domain.TransactionView) []domain.Booking { return v.ListBookings() })
}

func bookingRelations(b domain.Booking) []domain.EntityRef {
	return []domain.EntityRef{domain.Ref(domain.EntityProperty, b.PropertyID), domain.Ref(domain.EntityTenant, b.TenantID)}
}

// Add creates a booking for an existing property and tenant.
func (h Bookings) Add(ctx context.Context, b domain.Booking) (domain.Booking, error) {
	if err := h.s.check(domain.EntityBooking, b); err != nil {
		return domain.Booking{}, err
	}
	var created domain.Booking
	err := h.s.mutate(ctx, "booking.add", func(tx domain.Transaction, _ domain.User) (domain.AuditLogEntry, error) {
		var err error
		if created, err = tx.CreateBooking(b); err != nil {
			return domain.AuditLogEntry{}, err
		}
		return auditEntry(domain.AuditCreate, domain.EntityBooking, created.ID,
			fmt.Sprintf("booked %s to %s", created.CheckIn.Format("2006-01-02"), created.CheckOut.Format("2006-01-02")),
			bookingRelations(created)...), nil
	})
	return created, err
}

func (h Bookings) Update(ctx context.Context, b domain.Booking) error {
	if err := h.s.check(domain.EntityBooking, b); err != nil {
		return err
	}
	return h.s.mutate(ctx, "booking.update", func(tx domain.Transaction, _ domain.User) (domain.AuditLogEntry, error) {
		var before domain.Booking
		updated, err := tx.UpdateBooking(b.ID, func(cur *domain.Booking) error {
			before = *cur
			*cur = b
			return nil
		})
		if err != nil {
			return domain.AuditLogEntry{}, err
		}
		return auditEntry(domain.AuditUpdate, domain.EntityBooking, updated.ID,
			updateDetails("booking", updated.ID, before, updated), bookingRelations(updated)...), nil
	})
}
