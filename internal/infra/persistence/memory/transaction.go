package memory

import (
	"fmt"
	"time"

	"estatecore/pkg/domain"
)

// transaction represents a mutation set applied to a cloned store state.
type transaction struct {
	store    *Store
	state    memoryState
	changes  []domain.Change
	now      time.Time
	override bool
}

type record[T any] interface {
	*T
	Meta() *domain.Base
}

func (tx *transaction) recordChange(change domain.Change) {
	change.Override = tx.override
	tx.changes = append(tx.changes, change)
}

// Snapshot returns a read-only view over the transactional state.
func (tx *transaction) Snapshot() domain.TransactionView {
	return newTransactionView(&tx.state)
}

// Now returns the timestamp shared by every record written in the transaction.
func (tx *transaction) Now() time.Time { return tx.now }

func (tx *transaction) MarkOverride() { tx.override = true }

func insert[T any, PT record[T]](tx *transaction, t *table[T], entity domain.EntityType, v T, check func(*T) error, clone func(T) T) (T, error) {
	var zero T
	meta := PT(&v).Meta()
	if meta.ID == "" {
		meta.ID = tx.store.newID()
	}
	if t.has(meta.ID) {
		return zero, fmt.Errorf("%s %q already exists", entity, meta.ID)
	}
	if check != nil {
		if err := check(&v); err != nil {
			return zero, err
		}
	}
	meta.CreatedAt = tx.now
	meta.UpdatedAt = tx.now
	t.put(meta.ID, clone(v))
	tx.recordChange(domain.Change{Entity: entity, Action: domain.ActionCreate, After: clone(v)})
	return clone(v), nil
}

func modify[T any, PT record[T]](tx *transaction, t *table[T], entity domain.EntityType, id string, mutator func(*T) error, check func(*T) error, clone func(T) T) (T, error) {
	var zero T
	current, ok := t.get(id)
	if !ok {
		return zero, domain.NotFoundError{Entity: entity, ID: id}
	}
	before := clone(current)
	next := clone(current)
	if mutator != nil {
		if err := mutator(&next); err != nil {
			return zero, err
		}
	}
	meta := PT(&next).Meta()
	meta.ID = id
	meta.CreatedAt = PT(&before).Meta().CreatedAt
	meta.UpdatedAt = tx.now
	if check != nil {
		if err := check(&next); err != nil {
			return zero, err
		}
	}
	t.put(id, clone(next))
	tx.recordChange(domain.Change{Entity: entity, Action: domain.ActionUpdate, Before: before, After: clone(next)})
	return clone(next), nil
}

func remove[T any](tx *transaction, t *table[T], entity domain.EntityType, id string, clone func(T) T) error {
	current, ok := t.get(id)
	if !ok {
		return domain.NotFoundError{Entity: entity, ID: id}
	}
	t.remove(id)
	tx.recordChange(domain.Change{Entity: entity, Action: domain.ActionDelete, Before: clone(current)})
	return nil
}

func missing(entity domain.EntityType, id, field string, target domain.EntityType, targetID string) error {
	return domain.ReferentialIntegrityError{Entity: entity, EntityID: id, Field: field, Target: target, TargetID: targetID}
}

func dependent(entity domain.EntityType, id string, target domain.EntityType, targetID string) error {
	return domain.ReferentialIntegrityError{Entity: entity, EntityID: id, Target: target, TargetID: targetID, Dependent: true}
}

// exists resolves a polymorphic reference against the state.
func (tx *transaction) exists(ref domain.EntityRef) bool {
	s := &tx.state
	switch ref.Entity {
	case domain.EntityProperty:
		return s.properties.has(ref.ID)
	case domain.EntityOwner:
		return s.owners.has(ref.ID)
	case domain.EntityPartner:
		return s.partners.has(ref.ID)
	case domain.EntityTenant:
		return s.tenants.has(ref.ID)
	case domain.EntityTask:
		return s.tasks.has(ref.ID)
	case domain.EntityBooking:
		return s.bookings.has(ref.ID)
	case domain.EntityInvoice:
		return s.invoices.has(ref.ID)
	case domain.EntityLedgerEntry:
		return s.ledger.has(ref.ID)
	case domain.EntityBankStatement:
		return s.statements.has(ref.ID)
	case domain.EntityServiceRate:
		return s.rates.has(ref.ID)
	case domain.EntityCondominium:
		return s.condominiums.has(ref.ID)
	case domain.EntityAdvertisement:
		return s.ads.has(ref.ID)
	case domain.EntityUser:
		return s.users.has(ref.ID)
	case domain.EntityVisit:
		return s.visits.has(ref.ID)
	case domain.EntityNotification:
		return s.notifications.has(ref.ID)
	case domain.EntityMessage:
		return s.messages.has(ref.ID)
	default:
		return false
	}
}

// Owners

func (tx *transaction) CreateOwner(o domain.Owner) (domain.Owner, error) {
	return insert(tx, &tx.state.owners, domain.EntityOwner, o, nil, identity[domain.Owner])
}

func (tx *transaction) UpdateOwner(id string, mutator func(*domain.Owner) error) (domain.Owner, error) {
	return modify(tx, &tx.state.owners, domain.EntityOwner, id, mutator, nil, identity[domain.Owner])
}

// Properties

func (tx *transaction) checkProperty(p *domain.Property) error {
	if !tx.state.owners.has(p.OwnerID) {
		return missing(domain.EntityProperty, p.ID, "owner_id", domain.EntityOwner, p.OwnerID)
	}
	if p.CondominiumID != nil {
		if *p.CondominiumID == "" {
			p.CondominiumID = nil
		} else if !tx.state.condominiums.has(*p.CondominiumID) {
			return missing(domain.EntityProperty, p.ID, "condominium_id", domain.EntityCondominium, *p.CondominiumID)
		}
	}
	if p.Status == "" {
		p.Status = domain.PropertyActive
	}
	return nil
}

func (tx *transaction) CreateProperty(p domain.Property) (domain.Property, error) {
	return insert(tx, &tx.state.properties, domain.EntityProperty, p, tx.checkProperty, cloneProperty)
}

func (tx *transaction) UpdateProperty(id string, mutator func(*domain.Property) error) (domain.Property, error) {
	return modify(tx, &tx.state.properties, domain.EntityProperty, id, mutator, tx.checkProperty, cloneProperty)
}

// Partners

func (tx *transaction) checkPartner(p *domain.Partner) error {
	if p.Coverage.Mode == "" {
		p.Coverage = domain.Unrestricted()
	}
	if p.Coverage.Mode == domain.ScopeRestricted {
		p.Coverage = domain.RestrictedTo(p.Coverage.PropertyIDs...)
		for _, propertyID := range p.Coverage.PropertyIDs {
			if !tx.state.properties.has(propertyID) {
				return missing(domain.EntityPartner, p.ID, "coverage", domain.EntityProperty, propertyID)
			}
		}
	} else {
		p.Coverage.PropertyIDs = nil
	}
	if p.Documents == nil {
		p.Documents = []string{}
	}
	for i := range p.ServiceRates {
		if p.ServiceRates[i].ID == "" {
			p.ServiceRates[i].ID = tx.store.newID()
		}
		if p.ServiceRates[i].CreatedAt.IsZero() {
			p.ServiceRates[i].CreatedAt = tx.now
		}
		p.ServiceRates[i].UpdatedAt = tx.now
	}
	if p.ServiceRates == nil {
		p.ServiceRates = []domain.ServiceRate{}
	}
	return nil
}

func (tx *transaction) CreatePartner(p domain.Partner) (domain.Partner, error) {
	return insert(tx, &tx.state.partners, domain.EntityPartner, p, tx.checkPartner, clonePartner)
}

func (tx *transaction) UpdatePartner(id string, mutator func(*domain.Partner) error) (domain.Partner, error) {
	return modify(tx, &tx.state.partners, domain.EntityPartner, id, mutator, tx.checkPartner, clonePartner)
}

// Service rate catalog

func (tx *transaction) CreateServiceRate(r domain.ServiceRate) (domain.ServiceRate, error) {
	return insert(tx, &tx.state.rates, domain.EntityServiceRate, r, nil, identity[domain.ServiceRate])
}

func (tx *transaction) UpdateServiceRate(id string, mutator func(*domain.ServiceRate) error) (domain.ServiceRate, error) {
	return modify(tx, &tx.state.rates, domain.EntityServiceRate, id, mutator, nil, identity[domain.ServiceRate])
}

func (tx *transaction) DeleteServiceRate(id string) error {
	return remove(tx, &tx.state.rates, domain.EntityServiceRate, id, identity[domain.ServiceRate])
}

// Tenants

func (tx *transaction) CreateTenant(t domain.Tenant) (domain.Tenant, error) {
	return insert(tx, &tx.state.tenants, domain.EntityTenant, t, nil, identity[domain.Tenant])
}

func (tx *transaction) UpdateTenant(id string, mutator func(*domain.Tenant) error) (domain.Tenant, error) {
	return modify(tx, &tx.state.tenants, domain.EntityTenant, id, mutator, nil, identity[domain.Tenant])
}

// Tasks

// checkTask resolves the assignee against partners first and then users,
// recording which registry matched.
func (tx *transaction) checkTask(t *domain.Task) error {
	if !tx.state.properties.has(t.PropertyID) {
		return missing(domain.EntityTask, t.ID, "property_id", domain.EntityProperty, t.PropertyID)
	}
	switch {
	case t.AssigneeID == "":
		t.AssigneeKind = ""
	case tx.state.partners.has(t.AssigneeID):
		t.AssigneeKind = domain.AssigneePartner
	case tx.state.users.has(t.AssigneeID):
		t.AssigneeKind = domain.AssigneeUser
	default:
		return missing(domain.EntityTask, t.ID, "assignee_id", domain.EntityPartner, t.AssigneeID)
	}
	if t.Status == "" {
		t.Status = domain.TaskPending
	}
	if t.Images == nil {
		t.Images = []string{}
	}
	if t.Evidence == nil {
		t.Evidence = []string{}
	}
	return nil
}

func (tx *transaction) CreateTask(t domain.Task) (domain.Task, error) {
	return insert(tx, &tx.state.tasks, domain.EntityTask, t, tx.checkTask, cloneTask)
}

func (tx *transaction) UpdateTask(id string, mutator func(*domain.Task) error) (domain.Task, error) {
	return modify(tx, &tx.state.tasks, domain.EntityTask, id, mutator, tx.checkTask, cloneTask)
}

func (tx *transaction) DeleteTask(id string) error {
	return remove(tx, &tx.state.tasks, domain.EntityTask, id, cloneTask)
}

// Bookings

func (tx *transaction) checkBooking(b *domain.Booking) error {
	if !tx.state.properties.has(b.PropertyID) {
		return missing(domain.EntityBooking, b.ID, "property_id", domain.EntityProperty, b.PropertyID)
	}
	if !tx.state.tenants.has(b.TenantID) {
		return missing(domain.EntityBooking, b.ID, "tenant_id", domain.EntityTenant, b.TenantID)
	}
	if b.Status == "" {
		b.Status = domain.BookingReserved
	}
	return nil
}

func (tx *transaction) CreateBooking(b domain.Booking) (domain.Booking, error) {
	return insert(tx, &tx.state.bookings, domain.EntityBooking, b, tx.checkBooking, identity[domain.Booking])
}

func (tx *transaction) UpdateBooking(id string, mutator func(*domain.Booking) error) (domain.Booking, error) {
	return modify(tx, &tx.state.bookings, domain.EntityBooking, id, mutator, tx.checkBooking, identity[domain.Booking])
}

// Invoices and payments

func (tx *transaction) checkInvoice(i *domain.Invoice) error {
	if i.Payable != nil && !tx.exists(*i.Payable) {
		return missing(domain.EntityInvoice, i.ID, "payable", i.Payable.Entity, i.Payable.ID)
	}
	if i.Status == "" {
		i.Status = domain.InvoiceOpen
	}
	return nil
}

func (tx *transaction) CreateInvoice(i domain.Invoice) (domain.Invoice, error) {
	return insert(tx, &tx.state.invoices, domain.EntityInvoice, i, tx.checkInvoice, cloneInvoice)
}

func (tx *transaction) UpdateInvoice(id string, mutator func(*domain.Invoice) error) (domain.Invoice, error) {
	return modify(tx, &tx.state.invoices, domain.EntityInvoice, id, mutator, tx.checkInvoice, cloneInvoice)
}

// PutPayment creates or replaces the payment record of an invoice.
func (tx *transaction) PutPayment(p domain.PaymentRecord) (domain.PaymentRecord, error) {
	if !tx.state.invoices.has(p.InvoiceID) {
		return domain.PaymentRecord{}, missing(domain.EntityPayment, p.InvoiceID, "invoice_id", domain.EntityInvoice, p.InvoiceID)
	}
	p.UpdatedAt = tx.now
	change := domain.Change{Entity: domain.EntityPayment, Action: domain.ActionCreate, After: p}
	if before, ok := tx.state.payments.get(p.InvoiceID); ok {
		change.Action = domain.ActionUpdate
		change.Before = before
	}
	tx.state.payments.put(p.InvoiceID, p)
	tx.recordChange(change)
	return p, nil
}

// Ledger

func (tx *transaction) checkLedgerEntry(e *domain.LedgerEntry) error {
	if e.InvoiceID != nil {
		if *e.InvoiceID == "" {
			e.InvoiceID = nil
		} else if !tx.state.invoices.has(*e.InvoiceID) {
			return missing(domain.EntityLedgerEntry, e.ID, "invoice_id", domain.EntityInvoice, *e.InvoiceID)
		}
	}
	return nil
}

func (tx *transaction) CreateLedgerEntry(e domain.LedgerEntry) (domain.LedgerEntry, error) {
	return insert(tx, &tx.state.ledger, domain.EntityLedgerEntry, e, tx.checkLedgerEntry, cloneLedgerEntry)
}

func (tx *transaction) UpdateLedgerEntry(id string, mutator func(*domain.LedgerEntry) error) (domain.LedgerEntry, error) {
	return modify(tx, &tx.state.ledger, domain.EntityLedgerEntry, id, mutator, tx.checkLedgerEntry, cloneLedgerEntry)
}

func (tx *transaction) DeleteLedgerEntry(id string) error {
	return remove(tx, &tx.state.ledger, domain.EntityLedgerEntry, id, cloneLedgerEntry)
}

// Bank statements

func (tx *transaction) checkBankStatement(b *domain.BankStatement) error {
	if b.UploadedAt.IsZero() {
		b.UploadedAt = tx.now
	}
	for i := range b.Lines {
		if b.Lines[i].ID == "" {
			b.Lines[i].ID = tx.store.newID()
		}
		if matched := b.Lines[i].MatchedLedgerEntryID; matched != nil && !tx.state.ledger.has(*matched) {
			return missing(domain.EntityBankStatement, b.ID, "lines.matched_ledger_entry_id", domain.EntityLedgerEntry, *matched)
		}
	}
	if b.Lines == nil {
		b.Lines = []domain.StatementLine{}
	}
	return nil
}

func (tx *transaction) CreateBankStatement(b domain.BankStatement) (domain.BankStatement, error) {
	return insert(tx, &tx.state.statements, domain.EntityBankStatement, b, tx.checkBankStatement, cloneBankStatement)
}

func (tx *transaction) UpdateBankStatement(id string, mutator func(*domain.BankStatement) error) (domain.BankStatement, error) {
	return modify(tx, &tx.state.statements, domain.EntityBankStatement, id, mutator, tx.checkBankStatement, cloneBankStatement)
}

// Settings

func (tx *transaction) PutSettings(s domain.FinancialSettings) (domain.FinancialSettings, error) {
	before := tx.state.settings
	s.UpdatedAt = tx.now
	tx.state.settings = s
	tx.recordChange(domain.Change{Entity: domain.EntitySettings, Action: domain.ActionUpdate, Before: before, After: s})
	return s, nil
}

// Condominiums

func (tx *transaction) CreateCondominium(c domain.Condominium) (domain.Condominium, error) {
	return insert(tx, &tx.state.condominiums, domain.EntityCondominium, c, nil, identity[domain.Condominium])
}

func (tx *transaction) UpdateCondominium(id string, mutator func(*domain.Condominium) error) (domain.Condominium, error) {
	return modify(tx, &tx.state.condominiums, domain.EntityCondominium, id, mutator, nil, identity[domain.Condominium])
}

func (tx *transaction) DeleteCondominium(id string) error {
	for _, propertyID := range tx.state.properties.order {
		p := tx.state.properties.rows[propertyID]
		if p.CondominiumID != nil && *p.CondominiumID == id {
			return dependent(domain.EntityCondominium, id, domain.EntityProperty, propertyID)
		}
	}
	return remove(tx, &tx.state.condominiums, domain.EntityCondominium, id, identity[domain.Condominium])
}

// Advertisements

func (tx *transaction) checkAdvertisement(a *domain.Advertisement) error {
	if !tx.state.properties.has(a.PropertyID) {
		return missing(domain.EntityAdvertisement, a.ID, "property_id", domain.EntityProperty, a.PropertyID)
	}
	return nil
}

func (tx *transaction) CreateAdvertisement(a domain.Advertisement) (domain.Advertisement, error) {
	return insert(tx, &tx.state.ads, domain.EntityAdvertisement, a, tx.checkAdvertisement, identity[domain.Advertisement])
}

func (tx *transaction) UpdateAdvertisement(id string, mutator func(*domain.Advertisement) error) (domain.Advertisement, error) {
	return modify(tx, &tx.state.ads, domain.EntityAdvertisement, id, mutator, tx.checkAdvertisement, identity[domain.Advertisement])
}

func (tx *transaction) DeleteAdvertisement(id string) error {
	return remove(tx, &tx.state.ads, domain.EntityAdvertisement, id, identity[domain.Advertisement])
}

// Users

func (tx *transaction) CreateUser(u domain.User) (domain.User, error) {
	return insert(tx, &tx.state.users, domain.EntityUser, u, nil, identity[domain.User])
}

func (tx *transaction) UpdateUser(id string, mutator func(*domain.User) error) (domain.User, error) {
	return modify(tx, &tx.state.users, domain.EntityUser, id, mutator, nil, identity[domain.User])
}

func (tx *transaction) DeleteUser(id string) error {
	for _, taskID := range tx.state.tasks.order {
		t := tx.state.tasks.rows[taskID]
		if t.AssigneeKind == domain.AssigneeUser && t.AssigneeID == id {
			return dependent(domain.EntityUser, id, domain.EntityTask, taskID)
		}
	}
	return remove(tx, &tx.state.users, domain.EntityUser, id, identity[domain.User])
}

// Visits

func (tx *transaction) checkVisit(v *domain.Visit) error {
	if !tx.state.properties.has(v.PropertyID) {
		return missing(domain.EntityVisit, v.ID, "property_id", domain.EntityProperty, v.PropertyID)
	}
	return nil
}

func (tx *transaction) CreateVisit(v domain.Visit) (domain.Visit, error) {
	return insert(tx, &tx.state.visits, domain.EntityVisit, v, tx.checkVisit, identity[domain.Visit])
}

func (tx *transaction) UpdateVisit(id string, mutator func(*domain.Visit) error) (domain.Visit, error) {
	return modify(tx, &tx.state.visits, domain.EntityVisit, id, mutator, tx.checkVisit, identity[domain.Visit])
}

func (tx *transaction) DeleteVisit(id string) error {
	return remove(tx, &tx.state.visits, domain.EntityVisit, id, identity[domain.Visit])
}

// Notifications and messages

func (tx *transaction) checkNotification(n *domain.Notification) error {
	if !tx.state.partners.has(n.RecipientID) && !tx.state.users.has(n.RecipientID) {
		return missing(domain.EntityNotification, n.ID, "recipient_id", domain.EntityPartner, n.RecipientID)
	}
	return nil
}

func (tx *transaction) CreateNotification(n domain.Notification) (domain.Notification, error) {
	return insert(tx, &tx.state.notifications, domain.EntityNotification, n, tx.checkNotification, cloneNotification)
}

func (tx *transaction) UpdateNotification(id string, mutator func(*domain.Notification) error) (domain.Notification, error) {
	return modify(tx, &tx.state.notifications, domain.EntityNotification, id, mutator, tx.checkNotification, cloneNotification)
}

func (tx *transaction) checkMessage(m *domain.Message) error {
	if !tx.state.users.has(m.SenderID) {
		return missing(domain.EntityMessage, m.ID, "sender_id", domain.EntityUser, m.SenderID)
	}
	if !tx.state.users.has(m.RecipientID) && !tx.state.partners.has(m.RecipientID) {
		return missing(domain.EntityMessage, m.ID, "recipient_id", domain.EntityUser, m.RecipientID)
	}
	return nil
}

func (tx *transaction) CreateMessage(m domain.Message) (domain.Message, error) {
	return insert(tx, &tx.state.messages, domain.EntityMessage, m, tx.checkMessage, identity[domain.Message])
}

func (tx *transaction) UpdateMessage(id string, mutator func(*domain.Message) error) (domain.Message, error) {
	return modify(tx, &tx.state.messages, domain.EntityMessage, id, mutator, tx.checkMessage, identity[domain.Message])
}

// AppendAudit stamps and indexes an audit entry. Entries are never recorded as
// changes so rules do not evaluate them.
func (tx *transaction) AppendAudit(e domain.AuditLogEntry) (domain.AuditLogEntry, error) {
	if e.ID == "" {
		e.ID = tx.store.newID()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = tx.now
	}
	if e.Action == "" {
		return domain.AuditLogEntry{}, domain.NewValidationError("audit_log", "action", "is required")
	}
	return tx.state.appendAudit(e), nil
}
