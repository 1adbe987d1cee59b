package memory

import (
	"estatecore/pkg/domain"
)

// transactionView exposes a read-only snapshot of the transactional state.
type transactionView struct {
	state *memoryState
}

func newTransactionView(state *memoryState) domain.TransactionView {
	return transactionView{state: state}
}

func find[T any](t *table[T], id string, clone func(T) T) (T, bool) {
	v, ok := t.get(id)
	if !ok {
		var zero T
		return zero, false
	}
	return clone(v), true
}

func (v transactionView) FindOwner(id string) (domain.Owner, bool) {
	return find(&v.state.owners, id, identity[domain.Owner])
}

func (v transactionView) FindProperty(id string) (domain.Property, bool) {
	return find(&v.state.properties, id, cloneProperty)
}

func (v transactionView) FindPartner(id string) (domain.Partner, bool) {
	return find(&v.state.partners, id, clonePartner)
}

func (v transactionView) FindServiceRate(id string) (domain.ServiceRate, bool) {
	return find(&v.state.rates, id, identity[domain.ServiceRate])
}

func (v transactionView) FindTenant(id string) (domain.Tenant, bool) {
	return find(&v.state.tenants, id, identity[domain.Tenant])
}

func (v transactionView) FindTask(id string) (domain.Task, bool) {
	return find(&v.state.tasks, id, cloneTask)
}

func (v transactionView) FindBooking(id string) (domain.Booking, bool) {
	return find(&v.state.bookings, id, identity[domain.Booking])
}

func (v transactionView) FindInvoice(id string) (domain.Invoice, bool) {
	return find(&v.state.invoices, id, cloneInvoice)
}

func (v transactionView) FindPayment(invoiceID string) (domain.PaymentRecord, bool) {
	return find(&v.state.payments, invoiceID, identity[domain.PaymentRecord])
}

func (v transactionView) FindLedgerEntry(id string) (domain.LedgerEntry, bool) {
	return find(&v.state.ledger, id, cloneLedgerEntry)
}

func (v transactionView) FindBankStatement(id string) (domain.BankStatement, bool) {
	return find(&v.state.statements, id, cloneBankStatement)
}

func (v transactionView) FindCondominium(id string) (domain.Condominium, bool) {
	return find(&v.state.condominiums, id, identity[domain.Condominium])
}

func (v transactionView) FindAdvertisement(id string) (domain.Advertisement, bool) {
	return find(&v.state.ads, id, identity[domain.Advertisement])
}

func (v transactionView) FindUser(id string) (domain.User, bool) {
	return find(&v.state.users, id, identity[domain.User])
}

func (v transactionView) FindVisit(id string) (domain.Visit, bool) {
	return find(&v.state.visits, id, identity[domain.Visit])
}

func (v transactionView) FindNotification(id string) (domain.Notification, bool) {
	return find(&v.state.notifications, id, cloneNotification)
}

func (v transactionView) FindMessage(id string) (domain.Message, bool) {
	return find(&v.state.messages, id, identity[domain.Message])
}

func (v transactionView) ListOwners() []domain.Owner {
	return v.state.owners.list(identity[domain.Owner])
}

func (v transactionView) ListProperties() []domain.Property {
	return v.state.properties.list(cloneProperty)
}

// ListPropertiesByOwner returns the properties owned by ownerID in creation order.
func (v transactionView) ListPropertiesByOwner(ownerID string) []domain.Property {
	return v.state.properties.filter(cloneProperty, func(p domain.Property) bool { return p.OwnerID == ownerID })
}

func (v transactionView) ListPartners() []domain.Partner {
	return v.state.partners.list(clonePartner)
}

func (v transactionView) ListServiceRates() []domain.ServiceRate {
	return v.state.rates.list(identity[domain.ServiceRate])
}

func (v transactionView) ListTenants() []domain.Tenant {
	return v.state.tenants.list(identity[domain.Tenant])
}

func (v transactionView) ListTasks() []domain.Task {
	return v.state.tasks.list(cloneTask)
}

func (v transactionView) ListTasksByProperty(propertyID string) []domain.Task {
	return v.state.tasks.filter(cloneTask, func(t domain.Task) bool { return t.PropertyID == propertyID })
}

func (v transactionView) ListBookings() []domain.Booking {
	return v.state.bookings.list(identity[domain.Booking])
}

func (v transactionView) ListInvoices() []domain.Invoice {
	return v.state.invoices.list(cloneInvoice)
}

// ListInvoicesFor returns the invoices whose payable points at ref.
func (v transactionView) ListInvoicesFor(ref domain.EntityRef) []domain.Invoice {
	return v.state.invoices.filter(cloneInvoice, func(i domain.Invoice) bool {
		return i.Payable != nil && *i.Payable == ref
	})
}

func (v transactionView) ListPayments() []domain.PaymentRecord {
	return v.state.payments.list(identity[domain.PaymentRecord])
}

func (v transactionView) ListLedgerEntries() []domain.LedgerEntry {
	return v.state.ledger.list(cloneLedgerEntry)
}

func (v transactionView) ListBankStatements() []domain.BankStatement {
	return v.state.statements.list(cloneBankStatement)
}

func (v transactionView) Settings() domain.FinancialSettings {
	return v.state.settings
}

func (v transactionView) ListCondominiums() []domain.Condominium {
	return v.state.condominiums.list(identity[domain.Condominium])
}

func (v transactionView) ListAdvertisements() []domain.Advertisement {
	return v.state.ads.list(identity[domain.Advertisement])
}

func (v transactionView) ListUsers() []domain.User {
	return v.state.users.list(identity[domain.User])
}

func (v transactionView) ListVisits() []domain.Visit {
	return v.state.visits.list(identity[domain.Visit])
}

func (v transactionView) ListNotifications() []domain.Notification {
	return v.state.notifications.list(cloneNotification)
}

func (v transactionView) ListMessages() []domain.Message {
	return v.state.messages.list(identity[domain.Message])
}

// ListAuditLog returns every audit entry in append order.
func (v transactionView) ListAuditLog() []domain.AuditLogEntry {
	out := make([]domain.AuditLogEntry, 0, len(v.state.audit))
	for _, e := range v.state.audit {
		out = append(out, cloneAudit(e))
	}
	return out
}

func (v transactionView) AuditFor(ref domain.EntityRef) []domain.AuditLogEntry {
	positions := v.state.auditIndex[ref]
	out := make([]domain.AuditLogEntry, 0, len(positions))
	for _, pos := range positions {
		out = append(out, cloneAudit(v.state.audit[pos]))
	}
	return out
}
