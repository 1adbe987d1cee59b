package domain

import (
	"context"
	"time"
)

// Transaction exposes the registry operations a persistence implementation
// must support within an atomic scope. Create methods validate references and
// return ReferentialIntegrityError; update and delete methods return
// NotFoundError for unknown identifiers.
type Transaction interface {
	Snapshot() TransactionView
	Now() time.Time
	// MarkOverride flags subsequent changes as explicit administrative overrides.
	MarkOverride()

	CreateOwner(Owner) (Owner, error)
	UpdateOwner(id string, mutator func(*Owner) error) (Owner, error)

	CreateProperty(Property) (Property, error)
	UpdateProperty(id string, mutator func(*Property) error) (Property, error)

	CreatePartner(Partner) (Partner, error)
	UpdatePartner(id string, mutator func(*Partner) error) (Partner, error)

	CreateServiceRate(ServiceRate) (ServiceRate, error)
	UpdateServiceRate(id string, mutator func(*ServiceRate) error) (ServiceRate, error)
	DeleteServiceRate(id string) error

	CreateTenant(Tenant) (Tenant, error)
	UpdateTenant(id string, mutator func(*Tenant) error) (Tenant, error)

	CreateTask(Task) (Task, error)
	UpdateTask(id string, mutator func(*Task) error) (Task, error)
	DeleteTask(id string) error

	CreateBooking(Booking) (Booking, error)
	UpdateBooking(id string, mutator func(*Booking) error) (Booking, error)

	CreateInvoice(Invoice) (Invoice, error)
	UpdateInvoice(id string, mutator func(*Invoice) error) (Invoice, error)
	PutPayment(PaymentRecord) (PaymentRecord, error)

	CreateLedgerEntry(LedgerEntry) (LedgerEntry, error)
	UpdateLedgerEntry(id string, mutator func(*LedgerEntry) error) (LedgerEntry, error)
	DeleteLedgerEntry(id string) error

	CreateBankStatement(BankStatement) (BankStatement, error)
	UpdateBankStatement(id string, mutator func(*BankStatement) error) (BankStatement, error)

	PutSettings(FinancialSettings) (FinancialSettings, error)

	CreateCondominium(Condominium) (Condominium, error)
	UpdateCondominium(id string, mutator func(*Condominium) error) (Condominium, error)
	DeleteCondominium(id string) error

	CreateAdvertisement(Advertisement) (Advertisement, error)
	UpdateAdvertisement(id string, mutator func(*Advertisement) error) (Advertisement, error)
	DeleteAdvertisement(id string) error

	CreateUser(User) (User, error)
	UpdateUser(id string, mutator func(*User) error) (User, error)
	DeleteUser(id string) error

	CreateVisit(Visit) (Visit, error)
	UpdateVisit(id string, mutator func(*Visit) error) (Visit, error)
	DeleteVisit(id string) error

	CreateNotification(Notification) (Notification, error)
	UpdateNotification(id string, mutator func(*Notification) error) (Notification, error)

	CreateMessage(Message) (Message, error)
	UpdateMessage(id string, mutator func(*Message) error) (Message, error)

	// AppendAudit is the only write path for audit entries; there is no
	// update or delete counterpart.
	AppendAudit(AuditLogEntry) (AuditLogEntry, error)
}

// TransactionView provides read-only access to a snapshot of the registry.
type TransactionView interface {
	RuleView

	FindOwner(id string) (Owner, bool)
	FindServiceRate(id string) (ServiceRate, bool)
	FindTenant(id string) (Tenant, bool)
	FindBooking(id string) (Booking, bool)
	FindPayment(invoiceID string) (PaymentRecord, bool)
	FindLedgerEntry(id string) (LedgerEntry, bool)
	FindBankStatement(id string) (BankStatement, bool)
	FindCondominium(id string) (Condominium, bool)
	FindAdvertisement(id string) (Advertisement, bool)
	FindVisit(id string) (Visit, bool)
	FindNotification(id string) (Notification, bool)
	FindMessage(id string) (Message, bool)

	ListOwners() []Owner
	ListProperties() []Property
	ListPropertiesByOwner(ownerID string) []Property
	ListPartners() []Partner
	ListServiceRates() []ServiceRate
	ListTenants() []Tenant
	ListTasks() []Task
	ListBookings() []Booking
	ListInvoices() []Invoice
	ListInvoicesFor(ref EntityRef) []Invoice
	ListPayments() []PaymentRecord
	ListLedgerEntries() []LedgerEntry
	ListBankStatements() []BankStatement
	Settings() FinancialSettings
	ListCondominiums() []Condominium
	ListAdvertisements() []Advertisement
	ListUsers() []User
	ListVisits() []Visit
	ListNotifications() []Notification
	ListMessages() []Message
	ListAuditLog() []AuditLogEntry
	// AuditFor returns entries indexed under ref in append order.
	AuditFor(ref EntityRef) []AuditLogEntry
}

// PersistentStore is the abstraction over registry backends used by the
// mutation gateway.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
}
