package core

import (
	"context"
	"fmt"
	"io"
	"slices"

	"estatecore/pkg/domain"
)

// Partners is the command/query handle for suppliers and the generic service rate catalog.
type Partners struct{ s *Service }

// List returns all partners in creation order.
func (h Partners) List(ctx context.Context) []domain.Partner {
	return read(ctx, h.s, func(v domain.TransactionView) []domain.Partner { return v.ListPartners() })
}

// Get looks a partner up by ID.
func (h Partners) Get(ctx context.Context, id string) (domain.Partner, bool) {
	var (
		p  domain.Partner
		ok bool
	)
	_ = h.s.View(ctx, func(v domain.TransactionView) error {
		p, ok = v.FindPartner(id)
		return nil
	})
	return p, ok
}

// Add creates a partner. An unset coverage mode means unrestricted.
func (h Partners) Add(ctx context.Context, p domain.Partner) (domain.Partner, error) {
	if err := h.s.check(domain.EntityPartner, p); err != nil {
		return domain.Partner{}, err
	}
	var created domain.Partner
	err := h.s.mutate(ctx, "partner.add", func(tx domain.Transaction, _ domain.User) (domain.AuditLogEntry, error) {
		var err error
		if created, err = tx.CreatePartner(p); err != nil {
			return domain.AuditLogEntry{}, err
		}
		return auditEntry(domain.AuditCreate, domain.EntityPartner, created.ID,
			fmt.Sprintf("created partner %q (%s)", created.Name, describeScope(created.Coverage))), nil
	})
	return created, err
}

// Update replaces a partner record.
func (h Partners) Update(ctx context.Context, p domain.Partner) error {
	if err := h.s.check(domain.EntityPartner, p); err != nil {
		return err
	}
	return h.s.mutate(ctx, "partner.update", func(tx domain.Transaction, _ domain.User) (domain.AuditLogEntry, error) {
		var before domain.Partner
		updated, err := tx.UpdatePartner(p.ID, func(cur *domain.Partner) error {
			before = *cur
			*cur = p
			return nil
		})
		if err != nil {
			return domain.AuditLogEntry{}, err
		}
		return auditEntry(domain.AuditUpdate, domain.EntityPartner, updated.ID, updateDetails("partner", updated.Name, before, updated)), nil
	})
}

// AddDocument attaches a document reference to a partner. Repeated references are ignored.
func (h Partners) AddDocument(ctx context.Context, partnerID, ref string) error {
	if ref == "" {
		return domain.NewValidationError(domain.EntityPartner, "documents", "reference is required")
	}
	return h.s.mutate(ctx, "partner.add_document", func(tx domain.Transaction, _ domain.User) (domain.AuditLogEntry, error) {
		updated, err := tx.UpdatePartner(partnerID, func(p *domain.Partner) error {
			if !slices.Contains(p.Documents, ref) {
				p.Documents = append(p.Documents, ref)
			}
			return nil
		})
		if err != nil {
			return domain.AuditLogEntry{}, err
		}
		return auditEntry(domain.AuditUpdate, domain.EntityPartner, updated.ID, fmt.Sprintf("attached document %s", ref)), nil
	})
}

// UploadDocument stores r in the blob store and attaches the resulting key.
func (h Partners) UploadDocument(ctx context.Context, partnerID, name string, r io.Reader, contentType string) (string, error) {
	if _, ok := h.Get(ctx, partnerID); !ok {
		return "", domain.NotFoundError{Entity: domain.EntityPartner, ID: partnerID}
	}
	key, err := h.s.upload(ctx, "partner.upload_document", attachmentKey("partners", partnerID, "documents", name), r, contentType)
	if err != nil {
		return "", err
	}
	if err := h.AddDocument(ctx, partnerID, key); err != nil {
		h.s.discard(ctx, key)
		return "", err
	}
	return key, nil
}

// GenericServiceRates returns the store-level rate catalog.
func (h Partners) GenericServiceRates(ctx context.Context) []domain.ServiceRate {
	return read(ctx, h.s, func(v domain.TransactionView) []domain.ServiceRate { return v.ListServiceRates() })
}

// AddGenericServiceRate adds a catalog rate.
func (h Partners) AddGenericServiceRate(ctx context.Context, r domain.ServiceRate) (domain.ServiceRate, error) {
	if err := h.s.check(domain.EntityServiceRate, r); err != nil {
		return domain.ServiceRate{}, err
	}
	var created domain.ServiceRate
	err := h.s.mutate(ctx, "service_rate.add", func(tx domain.Transaction, _ domain.User) (domain.AuditLogEntry, error) {
		var err error
		if created, err = tx.CreateServiceRate(r); err != nil {
			return domain.AuditLogEntry{}, err
		}
		return auditEntry(domain.AuditCreate, domain.EntityServiceRate, created.ID,
			fmt.Sprintf("added rate %q at %s", created.ServiceName, formatCents(created.PriceCents))), nil
	})
	return created, err
}

// UpdateGenericServiceRate replaces a catalog rate.
func (h Partners) UpdateGenericServiceRate(ctx context.Context, r domain.ServiceRate) error {
	if err := h.s.check(domain.EntityServiceRate, r); err != nil {
		return err
	}
	return h.s.mutate(ctx, "service_rate.update", func(tx domain.Transaction, _ domain.User) (domain.AuditLogEntry, error) {
		var before domain.ServiceRate
		updated, err := tx.UpdateServiceRate(r.ID, func(cur *domain.ServiceRate) error {
			before = *cur
			*cur = r
			return nil
		})
		if err != nil {
			return domain.AuditLogEntry{}, err
		}
		return auditEntry(domain.AuditUpdate, domain.EntityServiceRate, updated.ID, updateDetails("rate", updated.ServiceName, before, updated)), nil
	})
}

// DeleteGenericServiceRate removes a catalog rate.
func (h Partners) DeleteGenericServiceRate(ctx context.Context, id string) error {
	return h.s.mutate(ctx, "service_rate.delete", func(tx domain.Transaction, _ domain.User) (domain.AuditLogEntry, error) {
		rate, _ := tx.Snapshot().FindServiceRate(id)
		if err := tx.DeleteServiceRate(id); err != nil {
			return domain.AuditLogEntry{}, err
		}
		return auditEntry(domain.AuditDelete, domain.EntityServiceRate, id, fmt.Sprintf("deleted rate %q", rate.ServiceName)), nil
	})
}

func describeScope(scope domain.PropertyScope) string {
	if scope.Mode != domain.ScopeRestricted {
		return "serves all properties"
	}
	return fmt.Sprintf("restricted to %d properties", len(scope.PropertyIDs))
}

func formatCents(c int64) string {
	sign := ""
	if c < 0 {
		sign, c = "-", -c
	}
	return fmt.Sprintf("%s%d.%02d", sign, c/100, c%100)
}
