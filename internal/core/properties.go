package core

import (
	"context"
	"fmt"

	"estatecore/pkg/domain"
)

// Properties is the command/query handle for managed units.
type Properties struct{ s *Service }

// List returns all properties in creation order.
func (h Properties) List(ctx context.Context) []domain.Property {
	return read(ctx, h.s, func(v domain.TransactionView) []domain.Property { return v.ListProperties() })
}

// Get looks a property up by ID.
func (h Properties) Get(ctx context.Context, id string) (domain.Property, bool) {
	var (
		p  domain.Property
		ok bool
	)
	_ = h.s.View(ctx, func(v domain.TransactionView) error {
		p, ok = v.FindProperty(id)
		return nil
	})
	return p, ok
}

// ByOwner returns the properties of an owner.
func (h Properties) ByOwner(ctx context.Context, ownerID string) []domain.Property {
	return read(ctx, h.s, func(v domain.TransactionView) []domain.Property { return v.ListPropertiesByOwner(ownerID) })
}

func propertyRelations(p domain.Property) []domain.EntityRef {
	refs := []domain.EntityRef{domain.Ref(domain.EntityOwner, p.OwnerID)}
	if p.CondominiumID != nil {
		refs = append(refs, domain.Ref(domain.EntityCondominium, *p.CondominiumID))
	}
	return refs
}

// Add creates a property. OwnerID and CondominiumID must resolve.
func (h Properties) Add(ctx context.Context, p domain.Property) (domain.Property, error) {
	if err := h.s.check(domain.EntityProperty, p); err != nil {
		return domain.Property{}, err
	}
	var created domain.Property
	err := h.s.mutate(ctx, "property.add", func(tx domain.Transaction, _ domain.User) (domain.AuditLogEntry, error) {
		var err error
		if created, err = tx.CreateProperty(p); err != nil {
			return domain.AuditLogEntry{}, err
		}
		return auditEntry(domain.AuditCreate, domain.EntityProperty, created.ID,
			fmt.Sprintf("created property %q", created.Name), propertyRelations(created)...), nil
	})
	return created, err
}

// Update replaces a property with p. Identity and creation time are preserved.
func (h Properties) Update(ctx context.Context, p domain.Property) error {
	if err := h.s.check(domain.EntityProperty, p); err != nil {
		return err
	}
	return h.s.mutate(ctx, "property.update", func(tx domain.Transaction, _ domain.User) (domain.AuditLogEntry, error) {
		var before domain.Property
		updated, err := tx.UpdateProperty(p.ID, func(cur *domain.Property) error {
			before = *cur
			*cur = p
			return nil
		})
		if err != nil {
			return domain.AuditLogEntry{}, err
		}
		return auditEntry(domain.AuditUpdate, domain.EntityProperty, updated.ID,
			updateDetails("property", updated.Name, before, updated), propertyRelations(updated)...), nil
	})
}

// Owners is the command/query handle for property owners. Owners cannot be deleted.
type Owners struct{ s *Service }

// List returns all owners in creation order.
func (h Owners) List(ctx context.Context) []domain.Owner {
	return read(ctx, h.s, func(v domain.TransactionView) []domain.Owner { return v.ListOwners() })
}

// Add creates an owner.
func (h Owners) Add(ctx context.Context, o domain.Owner) (domain.Owner, error) {
	if err := h.s.check(domain.EntityOwner, o); err != nil {
		return domain.Owner{}, err
	}
	var created domain.Owner
	err := h.s.mutate(ctx, "owner.add", func(tx domain.Transaction, _ domain.User) (domain.AuditLogEntry, error) {
		var err error
		if created, err = tx.CreateOwner(o); err != nil {
			return domain.AuditLogEntry{}, err
		}
		return auditEntry(domain.AuditCreate, domain.EntityOwner, created.ID, fmt.Sprintf("created owner %q", created.Name)), nil
	})
	return created, err
}

// Update replaces an owner record.
func (h Owners) Update(ctx context.Context, o domain.Owner) error {
	if err := h.s.check(domain.EntityOwner, o); err != nil {
		return err
	}
	return h.s.mutate(ctx, "owner.update", func(tx domain.Transaction, _ domain.User) (domain.AuditLogEntry, error) {
		var before domain.Owner
		updated, err := tx.UpdateOwner(o.ID, func(cur *domain.Owner) error {
			before = *cur
			*cur = o
			return nil
		})
		if err != nil {
			return domain.AuditLogEntry{}, err
		}
		return auditEntry(domain.AuditUpdate, domain.EntityOwner, updated.ID, updateDetails("owner", updated.Name, before, updated)), nil
	})
}

// Condominiums is the command/query handle for condominiums.
type Condominiums struct{ s *Service }

func (h Condominiums) List(ctx context.Context) []domain.Condominium {
	return read(ctx, h.s, func(v domain.TransactionView) []domain.Condominium { return v.ListCondominiums() })
}

func (h Condominiums) Add(ctx context.Context, c domain.Condominium) (domain.Condominium, error) {
	if err := h.s.check(domain.EntityCondominium, c); err != nil {
		return domain.Condominium{}, err
	}
	var created domain.Condominium
	err := h.s.mutate(ctx, "condominium.add", func(tx domain.Transaction, _ domain.User) (domain.AuditLogEntry, error) {
		var err error
		if created, err = tx.CreateCondominium(c); err != nil {
			return domain.AuditLogEntry{}, err
		}
		return auditEntry(domain.AuditCreate, domain.EntityCondominium, created.ID, fmt.Sprintf("created condominium %q", created.Name)), nil
	})
	return created, err
}

func (h Condominiums) Update(ctx context.Context, c domain.Condominium) error {
	if err := h.s.check(domain.EntityCondominium, c); err != nil {
		return err
	}
	return h.s.mutate(ctx, "condominium.update", func(tx domain.Transaction, _ domain.User) (domain.AuditLogEntry, error) {
		var before domain.Condominium
		updated, err := tx.UpdateCondominium(c.ID, func(cur *domain.Condominium) error {
			before = *cur
			*cur = c
			return nil
		})
		if err != nil {
			return domain.AuditLogEntry{}, err
		}
		return auditEntry(domain.AuditUpdate, domain.EntityCondominium, updated.ID, updateDetails("condominium", updated.Name, before, updated)), nil
	})
}

// Delete removes a condominium no property references.
func (h Condominiums) Delete(ctx context.Context, id string) error {
	return h.s.mutate(ctx, "condominium.delete", func(tx domain.Transaction, _ domain.User) (domain.AuditLogEntry, error) {
		condo, _ := tx.Snapshot().FindCondominium(id)
		if err := tx.DeleteCondominium(id); err != nil {
			return domain.AuditLogEntry{}, err
		}
		return auditEntry(domain.AuditDelete, domain.EntityCondominium, id, fmt.Sprintf("deleted condominium %q", condo.Name)), nil
	})
}

// Advertisements is the command/query handle for property listings.
type Advertisements struct{ s *Service }

func (h Advertisements) List(ctx context.Context) []domain.Advertisement {
	return read(ctx, h.s, func(v domain.TransactionView) []domain.Advertisement { return v.ListAdvertisements() })
}

func (h Advertisements) Add(ctx context.Context, a domain.Advertisement) (domain.Advertisement, error) {
	if err := h.s.check(domain.EntityAdvertisement, a); err != nil {
		return domain.Advertisement{}, err
	}
	var created domain.Advertisement
	err := h.s.mutate(ctx, "advertisement.add", func(tx domain.Transaction, _ domain.User) (domain.AuditLogEntry, error) {
		var err error
		if created, err = tx.CreateAdvertisement(a); err != nil {
			return domain.AuditLogEntry{}, err
		}
		return auditEntry(domain.AuditCreate, domain.EntityAdvertisement, created.ID,
			fmt.Sprintf("listed property on %s", created.Platform), domain.Ref(domain.EntityProperty, created.PropertyID)), nil
	})
	return created, err
}

func (h Advertisements) Update(ctx context.Context, a domain.Advertisement) error {
	if err := h.s.check(domain.EntityAdvertisement, a); err != nil {
		return err
	}
	return h.s.mutate(ctx, "advertisement.update", func(tx domain.Transaction, _ domain.User) (domain.AuditLogEntry, error) {
		var before domain.Advertisement
		updated, err := tx.UpdateAdvertisement(a.ID, func(cur *domain.Advertisement) error {
			before = *cur
			*cur = a
			return nil
		})
		if err != nil {
			return domain.AuditLogEntry{}, err
		}
		return auditEntry(domain.AuditUpdate, domain.EntityAdvertisement, updated.ID,
			updateDetails("advertisement", updated.Title, before, updated), domain.Ref(domain.EntityProperty, updated.PropertyID)), nil
	})
}

func (h Advertisements) Delete(ctx context.Context, id string) error {
	return h.s.mutate(ctx, "advertisement.delete", func(tx domain.Transaction, _ domain.User) (domain.AuditLogEntry, error) {
		ad, _ := tx.Snapshot().FindAdvertisement(id)
		if err := tx.DeleteAdvertisement(id); err != nil {
			return domain.AuditLogEntry{}, err
		}
		return auditEntry(domain.AuditDelete, domain.EntityAdvertisement, id,
			fmt.Sprintf("removed listing on %s", ad.Platform), domain.Ref(domain.EntityProperty, ad.PropertyID)), nil
	})
}

// Visits is the command/query handle for scheduled viewings.
type Visits struct{ s *Service }

func (h Visits) List(ctx context.Context) []domain.Visit {
	return read(ctx, h.s, func(v domain.TransactionView) []domain.Visit { return v.ListVisits() })
}

func (h Visits) Add(ctx context.Context, visit domain.Visit) (domain.Visit, error) {
	if err := h.s.check(domain.EntityVisit, visit); err != nil {
		return domain.Visit{}, err
	}
	var created domain.Visit
	err := h.s.mutate(ctx, "visit.add", func(tx domain.Transaction, _ domain.User) (domain.AuditLogEntry, error) {
		var err error
		if created, err = tx.CreateVisit(visit); err != nil {
			return domain.AuditLogEntry{}, err
		}
		return auditEntry(domain.AuditCreate, domain.EntityVisit, created.ID,
			fmt.Sprintf("scheduled visit for %s at %s", created.VisitorName, created.ScheduledAt.Format("2006-01-02 15:04")),
			domain.Ref(domain.EntityProperty, created.PropertyID)), nil
	})
	return created, err
}

func (h Visits) Update(ctx context.Context, visit domain.Visit) error {
	if err := h.s.check(domain.EntityVisit, visit); err != nil {
		return err
	}
	return h.s.mutate(ctx, "visit.update", func(tx domain.Transaction, _ domain.User) (domain.AuditLogEntry, error) {
		var before domain.Visit
		updated, err := tx.UpdateVisit(visit.ID, func(cur *domain.Visit) error {
			before = *cur
			*cur = visit
			return nil
		})
		if err != nil {
			return domain.AuditLogEntry{}, err
		}
		return auditEntry(domain.AuditUpdate, domain.EntityVisit, updated.ID,
			updateDetails("visit", updated.VisitorName, before, updated), domain.Ref(domain.EntityProperty, updated.PropertyID)), nil
	})
}

func (h Visits) Delete(ctx context.Context, id string) error {
	return h.s.mutate(ctx, "visit.delete", func(tx domain.Transaction, _ domain.User) (domain.AuditLogEntry, error) {
		visit, _ := tx.Snapshot().FindVisit(id)
		if err := tx.DeleteVisit(id); err != nil {
			return domain.AuditLogEntry{}, err
		}
		return auditEntry(domain.AuditDelete, domain.EntityVisit, id,
			fmt.Sprintf("cancelled visit for %s", visit.VisitorName), domain.Ref(domain.EntityProperty, visit.PropertyID)), nil
	})
}
