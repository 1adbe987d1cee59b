package memory

import (
	"maps"
	"slices"

	"estatecore/pkg/domain"
)

// table keeps rows keyed by identifier while preserving insertion order so
// list operations are stable across runs.
type table[T any] struct {
	order []string
	rows  map[string]T
}

func newTable[T any]() table[T] {
	return table[T]{rows: make(map[string]T)}
}

func (t *table[T]) get(id string) (T, bool) {
	v, ok := t.rows[id]
	return v, ok
}

func (t *table[T]) has(id string) bool {
	_, ok := t.rows[id]
	return ok
}

func (t *table[T]) put(id string, v T) {
	if _, ok := t.rows[id]; !ok {
		t.order = append(t.order, id)
	}
	t.rows[id] = v
}

func (t *table[T]) remove(id string) {
	if _, ok := t.rows[id]; !ok {
		return
	}
	delete(t.rows, id)
	t.order = slices.DeleteFunc(t.order, func(s string) bool { return s == id })
}

func (t *table[T]) list(clone func(T) T) []T {
	out := make([]T, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, clone(t.rows[id]))
	}
	return out
}

func (t *table[T]) filter(clone func(T) T, keep func(T) bool) []T {
	out := make([]T, 0)
	for _, id := range t.order {
		if v := t.rows[id]; keep(v) {
			out = append(out, clone(v))
		}
	}
	return out
}

func (t *table[T]) clone(fn func(T) T) table[T] {
	cp := table[T]{order: slices.Clone(t.order), rows: make(map[string]T, len(t.rows))}
	for id, v := range t.rows {
		cp.rows[id] = fn(v)
	}
	return cp
}

type memoryState struct {
	owners        table[domain.Owner]
	properties    table[domain.Property]
	partners      table[domain.Partner]
	rates         table[domain.ServiceRate]
	tenants       table[domain.Tenant]
	tasks         table[domain.Task]
	bookings      table[domain.Booking]
	invoices      table[domain.Invoice]
	payments      table[domain.PaymentRecord]
	ledger        table[domain.LedgerEntry]
	statements    table[domain.BankStatement]
	condominiums  table[domain.Condominium]
	ads           table[domain.Advertisement]
	users         table[domain.User]
	visits        table[domain.Visit]
	notifications table[domain.Notification]
	messages      table[domain.Message]
	settings      domain.FinancialSettings

	audit      []domain.AuditLogEntry
	auditIndex map[domain.EntityRef][]int
	auditSeq   int64
}

func newMemoryState() memoryState {
	return memoryState{
		owners:        newTable[domain.Owner](),
		properties:    newTable[domain.Property](),
		partners:      newTable[domain.Partner](),
		rates:         newTable[domain.ServiceRate](),
		tenants:       newTable[domain.Tenant](),
		tasks:         newTable[domain.Task](),
		bookings:      newTable[domain.Booking](),
		invoices:      newTable[domain.Invoice](),
		payments:      newTable[domain.PaymentRecord](),
		ledger:        newTable[domain.LedgerEntry](),
		statements:    newTable[domain.BankStatement](),
		condominiums:  newTable[domain.Condominium](),
		ads:           newTable[domain.Advertisement](),
		users:         newTable[domain.User](),
		visits:        newTable[domain.Visit](),
		notifications: newTable[domain.Notification](),
		messages:      newTable[domain.Message](),
		settings:      domain.DefaultFinancialSettings(),
		auditIndex:    make(map[domain.EntityRef][]int),
	}
}

func (s memoryState) clone() memoryState {
	cp := memoryState{
		owners:        s.owners.clone(identity[domain.Owner]),
		properties:    s.properties.clone(cloneProperty),
		partners:      s.partners.clone(clonePartner),
		rates:         s.rates.clone(identity[domain.ServiceRate]),
		tenants:       s.tenants.clone(identity[domain.Tenant]),
		tasks:         s.tasks.clone(cloneTask),
		bookings:      s.bookings.clone(identity[domain.Booking]),
		invoices:      s.invoices.clone(cloneInvoice),
		payments:      s.payments.clone(identity[domain.PaymentRecord]),
		ledger:        s.ledger.clone(cloneLedgerEntry),
		statements:    s.statements.clone(cloneBankStatement),
		condominiums:  s.condominiums.clone(identity[domain.Condominium]),
		ads:           s.ads.clone(identity[domain.Advertisement]),
		users:         s.users.clone(identity[domain.User]),
		visits:        s.visits.clone(identity[domain.Visit]),
		notifications: s.notifications.clone(cloneNotification),
		messages:      s.messages.clone(identity[domain.Message]),
		settings:      s.settings,
		audit:         slices.Clone(s.audit),
		auditIndex:    make(map[domain.EntityRef][]int, len(s.auditIndex)),
		auditSeq:      s.auditSeq,
	}
	for ref, positions := range s.auditIndex {
		cp.auditIndex[ref] = slices.Clone(positions)
	}
	return cp
}

// appendAudit stores the entry and indexes it under every ref it carries.
func (s *memoryState) appendAudit(entry domain.AuditLogEntry) domain.AuditLogEntry {
	s.auditSeq++
	entry.Seq = s.auditSeq
	entry.Related = slices.Clone(entry.Related)
	pos := len(s.audit)
	s.audit = append(s.audit, entry)
	s.indexAudit(pos)
	return cloneAudit(entry)
}

func (s *memoryState) indexAudit(pos int) {
	for _, ref := range s.audit[pos].Refs() {
		s.auditIndex[ref] = append(s.auditIndex[ref], pos)
	}
}

func identity[T any](v T) T { return v }

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneStrings(values []string) []string {
	if values == nil {
		return []string{}
	}
	return slices.Clone(values)
}

func cloneProperty(p domain.Property) domain.Property {
	cp := p
	cp.CondominiumID = clonePtr(p.CondominiumID)
	return cp
}

func clonePartner(p domain.Partner) domain.Partner {
	cp := p
	cp.Documents = cloneStrings(p.Documents)
	cp.ServiceRates = slices.Clone(p.ServiceRates)
	if cp.ServiceRates == nil {
		cp.ServiceRates = []domain.ServiceRate{}
	}
	cp.Coverage.PropertyIDs = slices.Clone(p.Coverage.PropertyIDs)
	return cp
}

func cloneTask(t domain.Task) domain.Task {
	cp := t
	cp.Images = cloneStrings(t.Images)
	cp.Evidence = cloneStrings(t.Evidence)
	return cp
}

func cloneInvoice(i domain.Invoice) domain.Invoice {
	cp := i
	cp.PaidAt = clonePtr(i.PaidAt)
	cp.Payable = clonePtr(i.Payable)
	return cp
}

func cloneLedgerEntry(e domain.LedgerEntry) domain.LedgerEntry {
	cp := e
	cp.InvoiceID = clonePtr(e.InvoiceID)
	cp.StatementLineID = clonePtr(e.StatementLineID)
	return cp
}

func cloneBankStatement(b domain.BankStatement) domain.BankStatement {
	cp := b
	cp.Lines = make([]domain.StatementLine, len(b.Lines))
	for i, line := range b.Lines {
		line.MatchedLedgerEntryID = clonePtr(line.MatchedLedgerEntryID)
		cp.Lines[i] = line
	}
	return cp
}

func cloneNotification(n domain.Notification) domain.Notification {
	cp := n
	if n.Payload != nil {
		cp.Payload = maps.Clone(n.Payload)
	}
	return cp
}

func cloneAudit(e domain.AuditLogEntry) domain.AuditLogEntry {
	cp := e
	cp.Related = slices.Clone(e.Related)
	return cp
}
