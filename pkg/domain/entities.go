// Package domain defines the persistent entities, value types, typed errors and
// rule evaluation primitives used by estatecore.
package domain

import (
	"slices"
	"time"
)

// EntityType identifies the type of record stored in the registry.
type EntityType string

// Supported entity type identifiers used in Change records, audit entries and persistence buckets.
const (
	EntityProperty      EntityType = "property"
	EntityOwner         EntityType = "owner"
	EntityPartner       EntityType = "partner"
	EntityTenant        EntityType = "tenant"
	EntityTask          EntityType = "task"
	EntityBooking       EntityType = "booking"
	EntityInvoice       EntityType = "invoice"
	EntityPayment       EntityType = "payment"
	EntityLedgerEntry   EntityType = "ledger_entry"
	EntityBankStatement EntityType = "bank_statement"
	EntitySettings      EntityType = "financial_settings"
	EntityServiceRate   EntityType = "service_rate"
	EntityCondominium   EntityType = "condominium"
	EntityAdvertisement EntityType = "advertisement"
	EntityUser          EntityType = "user"
	EntityVisit         EntityType = "visit"
	EntityNotification  EntityType = "notification"
	EntityMessage       EntityType = "message"
)

// PropertyStatus enumerates the operational state of a property.
type PropertyStatus string

// Property statuses.
const (
	PropertyActive      PropertyStatus = "active"
	PropertyInactive    PropertyStatus = "inactive"
	PropertyMaintenance PropertyStatus = "maintenance"
)

// TaskStatus enumerates the task workflow states in their forward order.
type TaskStatus string

// Canonical task statuses.
const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
	TaskApproved   TaskStatus = "approved"
)

var taskOrder = []TaskStatus{TaskPending, TaskInProgress, TaskCompleted, TaskApproved}

// Rank returns the position of the status in the forward workflow, or -1 when unknown.
func (s TaskStatus) Rank() int {
	return slices.Index(taskOrder, s)
}

// Valid reports whether s is a known task status.
func (s TaskStatus) Valid() bool { return s.Rank() >= 0 }

// InvoiceStatus enumerates invoice states.
type InvoiceStatus string

// Invoice statuses. Paid is terminal.
const (
	InvoiceOpen InvoiceStatus = "open"
	InvoicePaid InvoiceStatus = "paid"
)

// PaymentStatus describes the payment record attached to an invoice.
type PaymentStatus string

// Payment record statuses.
const (
	PaymentPending    PaymentStatus = "pending"
	PaymentProcessing PaymentStatus = "processing"
	PaymentPaid       PaymentStatus = "paid"
	PaymentFailed     PaymentStatus = "failed"
	PaymentCancelled  PaymentStatus = "cancelled"
)

// InvoiceStatus derives the invoice state implied by the payment status.
func (s PaymentStatus) InvoiceStatus() InvoiceStatus {
	if s == PaymentPaid {
		return InvoicePaid
	}
	return InvoiceOpen
}

// BookingStatus enumerates reservation states.
type BookingStatus string

// Booking statuses.
const (
	BookingReserved  BookingStatus = "reserved"
	BookingConfirmed BookingStatus = "confirmed"
	BookingCancelled BookingStatus = "cancelled"
	BookingCompleted BookingStatus = "completed"
)

// Role is the capability level of a dashboard user.
type Role string

// User roles.
const (
	RoleAdmin    Role = "admin"
	RoleManager  Role = "manager"
	RoleReviewer Role = "reviewer"
	RoleOperator Role = "operator"
)

// AssigneeKind records which registry a task assignee resolved against.
type AssigneeKind string

// Assignee kinds.
const (
	AssigneePartner AssigneeKind = "partner"
	AssigneeUser    AssigneeKind = "user"
)

// RateType describes how a service rate is charged.
type RateType string

// Rate types.
const (
	RateFixed    RateType = "fixed"
	RateHourly   RateType = "hourly"
	RatePerVisit RateType = "per_visit"
)

// Severity captures rule outcomes.
type Severity string

// Rule evaluation severities determine commit behavior and logging.
const (
	// SeverityBlock blocks transaction commit.
	SeverityBlock Severity = "block"
	// SeverityWarn logs a warning but allows commit.
	SeverityWarn Severity = "warn"
	SeverityLog  Severity = "log"
)

// Base contains common fields for all registry records.
type Base struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Meta returns the embedded base record, letting generic stores stamp
// identifiers and timestamps.
func (b *Base) Meta() *Base { return b }

// EntityRef points at a single record of a given type.
type EntityRef struct {
	Entity EntityType `json:"entity"`
	ID     string     `json:"id"`
}

// Ref builds an EntityRef.
func Ref(entity EntityType, id string) EntityRef {
	return EntityRef{Entity: entity, ID: id}
}

// Address is the postal address of a property or condominium.
type Address struct {
	Street       string `json:"street"`
	Number       string `json:"number"`
	Complement   string `json:"complement,omitempty"`
	Neighborhood string `json:"neighborhood"`
	City         string `json:"city"`
	State        string `json:"state"`
	ZipCode      string `json:"zip_code"`
}

// Property is a managed unit.
type Property struct {
	Base
	OwnerID       string         `json:"owner_id" validate:"required"`
	Name          string         `json:"name" validate:"required"`
	Address       Address        `json:"address"`
	CondominiumID *string        `json:"condominium_id,omitempty"`
	Status        PropertyStatus `json:"status" validate:"omitempty,oneof=active inactive maintenance"`
	Bedrooms      int            `json:"bedrooms" validate:"gte=0"`
	Bathrooms     int            `json:"bathrooms" validate:"gte=0"`
	GuestCapacity int            `json:"guest_capacity" validate:"gte=0"`
	AccessCode    string         `json:"access_code,omitempty"`
	WifiSSID      string         `json:"wifi_ssid,omitempty"`
	WifiPassword  string         `json:"wifi_password,omitempty"`
}

// Owner is the legal owner of one or more properties.
type Owner struct {
	Base
	Name     string `json:"name" validate:"required"`
	Email    string `json:"email" validate:"omitempty,email"`
	Phone    string `json:"phone"`
	Document string `json:"document"`
}

// ScopeMode selects between unrestricted and restricted partner coverage.
type ScopeMode string

// Scope modes.
const (
	ScopeUnrestricted ScopeMode = "unrestricted"
	ScopeRestricted   ScopeMode = "restricted"
)

// PropertyScope is the tri-state whitelist of properties a partner may serve.
// A restricted scope with no properties allows nothing.
type PropertyScope struct {
	Mode        ScopeMode `json:"mode"`
	PropertyIDs []string  `json:"property_ids,omitempty"`
}

// Unrestricted returns a scope allowing every property.
func Unrestricted() PropertyScope {
	return PropertyScope{Mode: ScopeUnrestricted}
}

// RestrictedTo returns a scope limited to the given properties.
func RestrictedTo(ids ...string) PropertyScope {
	return PropertyScope{Mode: ScopeRestricted, PropertyIDs: dedupe(ids)}
}

// Allows reports whether propertyID falls inside the scope.
func (s PropertyScope) Allows(propertyID string) bool {
	if s.Mode != ScopeRestricted {
		return true
	}
	return slices.Contains(s.PropertyIDs, propertyID)
}

// ServiceRate is a priced service offered by a partner or kept in the generic catalog.
type ServiceRate struct {
	Base
	ServiceName string    `json:"service_name" validate:"required"`
	PriceCents  int64     `json:"price_cents" validate:"gte=0"`
	ValidFrom   time.Time `json:"valid_from"`
	Type        RateType  `json:"type" validate:"omitempty,oneof=fixed hourly per_visit"`
}

// Partner is a supplier executing tasks on properties.
type Partner struct {
	Base
	Name         string        `json:"name" validate:"required"`
	Email        string        `json:"email" validate:"omitempty,email"`
	Phone        string        `json:"phone"`
	Category     string        `json:"category"`
	Documents    []string      `json:"documents"`
	ServiceRates []ServiceRate `json:"service_rates" validate:"dive"`
	Coverage     PropertyScope `json:"coverage"`
}

// Tenant is a guest or lessee.
type Tenant struct {
	Base
	Name     string `json:"name" validate:"required"`
	Email    string `json:"email" validate:"omitempty,email"`
	Phone    string `json:"phone"`
	Document string `json:"document"`
}

// Task is a unit of work on a property.
type Task struct {
	Base
	PropertyID   string       `json:"property_id" validate:"required"`
	AssigneeID   string       `json:"assignee_id,omitempty"`
	AssigneeKind AssigneeKind `json:"assignee_kind,omitempty"`
	Title        string       `json:"title" validate:"required"`
	Description  string       `json:"description,omitempty"`
	Status       TaskStatus   `json:"status" validate:"omitempty,oneof=pending in_progress completed approved"`
	Date         time.Time    `json:"date"`
	Images       []string     `json:"images"`
	Evidence     []string     `json:"evidence"`
}

// Booking is a reservation of a property by a tenant.
type Booking struct {
	Base
	PropertyID string        `json:"property_id" validate:"required"`
	TenantID   string        `json:"tenant_id" validate:"required"`
	CheckIn    time.Time     `json:"check_in" validate:"required"`
	CheckOut   time.Time     `json:"check_out" validate:"required,gtfield=CheckIn"`
	Guests     int           `json:"guests" validate:"gte=0"`
	TotalCents int64         `json:"total_cents" validate:"gte=0"`
	Status     BookingStatus `json:"status" validate:"omitempty,oneof=reserved confirmed cancelled completed"`
}

// Invoice is a payable amount linked to another record.
type Invoice struct {
	Base
	Description string        `json:"description" validate:"required"`
	AmountCents int64         `json:"amount_cents" validate:"gt=0"`
	Status      InvoiceStatus `json:"status" validate:"omitempty,oneof=open paid"`
	DueDate     time.Time     `json:"due_date"`
	PaidAt      *time.Time    `json:"paid_at,omitempty"`
	Payable     *EntityRef    `json:"payable,omitempty"`
}

// PaymentRecord tracks the payment attempt state of an invoice.
type PaymentRecord struct {
	InvoiceID string        `json:"invoice_id"`
	Status    PaymentStatus `json:"status" validate:"oneof=pending processing paid failed cancelled"`
	Reference string        `json:"reference,omitempty"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// LedgerEntry is a posted financial movement. Unlike audit entries it may be
// edited and removed.
type LedgerEntry struct {
	Base
	Date            time.Time `json:"date" validate:"required"`
	Description     string    `json:"description" validate:"required"`
	Category        string    `json:"category,omitempty"`
	AmountCents     int64     `json:"amount_cents"`
	InvoiceID       *string   `json:"invoice_id,omitempty"`
	Reconciled      bool      `json:"reconciled"`
	StatementLineID *string   `json:"statement_line_id,omitempty"`
}

// StatementLine is one staged row of an imported bank statement.
type StatementLine struct {
	ID                   string    `json:"id"`
	Date                 time.Time `json:"date"`
	Description          string    `json:"description"`
	AmountCents          int64     `json:"amount_cents"`
	Reference            string    `json:"reference,omitempty"`
	MatchedLedgerEntryID *string   `json:"matched_ledger_entry_id,omitempty"`
}

// BankStatement groups staged statement lines awaiting manual reconciliation.
type BankStatement struct {
	Base
	FileName   string          `json:"file_name" validate:"required"`
	UploadedAt time.Time       `json:"uploaded_at"`
	Lines      []StatementLine `json:"lines"`
}

// FinancialSettings holds ledger-wide preferences.
type FinancialSettings struct {
	Currency            string    `json:"currency" validate:"omitempty,len=3"`
	DefaultDueDays      int       `json:"default_due_days" validate:"gte=0"`
	LateFeeBasisPoints  int       `json:"late_fee_basis_points" validate:"gte=0"`
	ReconcileWindowDays int       `json:"reconcile_window_days" validate:"gte=0"`
	BankAccount         string    `json:"bank_account,omitempty"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// DefaultFinancialSettings returns the settings used before any update.
func DefaultFinancialSettings() FinancialSettings {
	return FinancialSettings{Currency: "BRL", DefaultDueDays: 10, ReconcileWindowDays: 3}
}

// Condominium groups properties sharing a building administration.
type Condominium struct {
	Base
	Name        string  `json:"name" validate:"required"`
	Address     Address `json:"address"`
	ManagerName string  `json:"manager_name,omitempty"`
	Phone       string  `json:"phone,omitempty"`
	FeeCents    int64   `json:"fee_cents" validate:"gte=0"`
}

// Advertisement is a listing of a property on an external channel.
type Advertisement struct {
	Base
	PropertyID string `json:"property_id" validate:"required"`
	Platform   string `json:"platform" validate:"required"`
	Title      string `json:"title"`
	URL        string `json:"url" validate:"omitempty,url"`
	PriceCents int64  `json:"price_cents" validate:"gte=0"`
	Active     bool   `json:"active"`
}

// User is a dashboard account.
type User struct {
	Base
	Name   string `json:"name" validate:"required"`
	Email  string `json:"email" validate:"required,email"`
	Role   Role   `json:"role" validate:"required,oneof=admin manager reviewer operator"`
	Active bool   `json:"active"`
}

// Can reports whether the user holds one of the given roles.
func (u User) Can(roles ...Role) bool {
	return slices.Contains(roles, u.Role)
}

// Visit is a scheduled viewing of a property.
type Visit struct {
	Base
	PropertyID  string    `json:"property_id" validate:"required"`
	VisitorName string    `json:"visitor_name" validate:"required"`
	Phone       string    `json:"phone,omitempty"`
	ScheduledAt time.Time `json:"scheduled_at" validate:"required"`
	Status      string    `json:"status,omitempty"`
	Notes       string    `json:"notes,omitempty"`
}

// Notification is a message surfaced to a recipient.
type Notification struct {
	Base
	RecipientID string            `json:"recipient_id" validate:"required"`
	Kind        string            `json:"kind"`
	Title       string            `json:"title" validate:"required"`
	Body        string            `json:"body,omitempty"`
	Payload     map[string]string `json:"payload,omitempty"`
	Read        bool              `json:"read"`
}

// Message is an internal note between users.
type Message struct {
	Base
	SenderID    string `json:"sender_id" validate:"required"`
	RecipientID string `json:"recipient_id" validate:"required"`
	Subject     string `json:"subject"`
	Body        string `json:"body" validate:"required"`
	Read        bool   `json:"read"`
}

// AuditAction enumerates the kinds of audited events.
type AuditAction string

// Audit actions.
const (
	AuditCreate    AuditAction = "create"
	AuditUpdate    AuditAction = "update"
	AuditDelete    AuditAction = "delete"
	AuditLogin     AuditAction = "login"
	AuditLogout    AuditAction = "logout"
	AuditImport    AuditAction = "import"
	AuditNotify    AuditAction = "notify"
	AuditReconcile AuditAction = "reconcile"
	AuditPayment   AuditAction = "payment"
)

// AuditLogEntry is an immutable record of a mutation or session event.
type AuditLogEntry struct {
	ID        string      `json:"id"`
	Seq       int64       `json:"seq"`
	Timestamp time.Time   `json:"timestamp"`
	UserID    string      `json:"user_id,omitempty"`
	UserName  string      `json:"user_name"`
	Action    AuditAction `json:"action"`
	Entity    EntityType  `json:"entity"`
	EntityID  string      `json:"entity_id"`
	Details   string      `json:"details"`
	Related   []EntityRef `json:"related,omitempty"`
}

// Refs returns the primary ref followed by any related refs, without duplicates.
func (e AuditLogEntry) Refs() []EntityRef {
	out := make([]EntityRef, 0, len(e.Related)+1)
	if e.EntityID != "" {
		out = append(out, Ref(e.Entity, e.EntityID))
	}
	for _, r := range e.Related {
		if r.ID == "" || slices.Contains(out, r) {
			continue
		}
		out = append(out, r)
	}
	return out
}

// Change describes a mutation applied within a transaction.
type Change struct {
	Entity   EntityType
	Action   Action
	Before   any
	After    any
	Override bool
}

// Action indicates the type of modification performed.
type Action string

// Change actions enumerate supported CRUD operations captured in transactions.
const (
	// ActionCreate indicates an entity was created.
	ActionCreate Action = "create"
	// ActionUpdate indicates an entity was updated.
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Violation reports a failed rule evaluation.
type Violation struct {
	Rule     string
	Severity Severity
	Message  string
	Entity   EntityType
	EntityID string
}

// Result aggregates violations from the rules engine.
type Result struct {
	Violations []Violation
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking returns true if the result contains blocking violations.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}

func dedupe(ids []string) []string {
	if len(ids) == 0 {
		return []string{}
	}
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || slices.Contains(out, id) {
			continue
		}
		out = append(out, id)
	}
	return out
}
