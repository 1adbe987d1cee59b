package memory

import (
	"estatecore/pkg/domain"
)

// Snapshot captures a point-in-time clone of the store state. Collections are
// ordered by insertion so a round trip through persistence keeps list order.
type Snapshot struct {
	Owners         []domain.Owner           `json:"owners"`
	Properties     []domain.Property        `json:"properties"`
	Partners       []domain.Partner         `json:"partners"`
	ServiceRates   []domain.ServiceRate     `json:"service_rates"`
	Tenants        []domain.Tenant          `json:"tenants"`
	Tasks          []domain.Task            `json:"tasks"`
	Bookings       []domain.Booking         `json:"bookings"`
	Invoices       []domain.Invoice         `json:"invoices"`
	Payments       []domain.PaymentRecord   `json:"payments"`
	LedgerEntries  []domain.LedgerEntry     `json:"ledger_entries"`
	BankStatements []domain.BankStatement   `json:"bank_statements"`
	Settings       domain.FinancialSettings `json:"settings"`
	Condominiums   []domain.Condominium     `json:"condominiums"`
	Advertisements []domain.Advertisement   `json:"advertisements"`
	Users          []domain.User            `json:"users"`
	Visits         []domain.Visit           `json:"visits"`
	Notifications  []domain.Notification    `json:"notifications"`
	Messages       []domain.Message         `json:"messages"`
	AuditLog       []domain.AuditLogEntry   `json:"audit_log"`
}

func snapshotFromMemoryState(state memoryState) Snapshot {
	audit := make([]domain.AuditLogEntry, 0, len(state.audit))
	for _, e := range state.audit {
		audit = append(audit, cloneAudit(e))
	}
	return Snapshot{
		Owners:         state.owners.list(identity[domain.Owner]),
		Properties:     state.properties.list(cloneProperty),
		Partners:       state.partners.list(clonePartner),
		ServiceRates:   state.rates.list(identity[domain.ServiceRate]),
		Tenants:        state.tenants.list(identity[domain.Tenant]),
		Tasks:          state.tasks.list(cloneTask),
		Bookings:       state.bookings.list(identity[domain.Booking]),
		Invoices:       state.invoices.list(cloneInvoice),
		Payments:       state.payments.list(identity[domain.PaymentRecord]),
		LedgerEntries:  state.ledger.list(cloneLedgerEntry),
		BankStatements: state.statements.list(cloneBankStatement),
		Settings:       state.settings,
		Condominiums:   state.condominiums.list(identity[domain.Condominium]),
		Advertisements: state.ads.list(identity[domain.Advertisement]),
		Users:          state.users.list(identity[domain.User]),
		Visits:         state.visits.list(identity[domain.Visit]),
		Notifications:  state.notifications.list(cloneNotification),
		Messages:       state.messages.list(identity[domain.Message]),
		AuditLog:       audit,
	}
}

func memoryStateFromSnapshot(s Snapshot) memoryState {
	state := newMemoryState()
	for _, v := range s.Owners {
		state.owners.put(v.ID, v)
	}
	for _, v := range s.Properties {
		state.properties.put(v.ID, cloneProperty(v))
	}
	for _, v := range s.Partners {
		state.partners.put(v.ID, clonePartner(v))
	}
	for _, v := range s.ServiceRates {
		state.rates.put(v.ID, v)
	}
	for _, v := range s.Tenants {
		state.tenants.put(v.ID, v)
	}
	for _, v := range s.Tasks {
		state.tasks.put(v.ID, cloneTask(v))
	}
	for _, v := range s.Bookings {
		state.bookings.put(v.ID, v)
	}
	for _, v := range s.Invoices {
		state.invoices.put(v.ID, cloneInvoice(v))
	}
	for _, v := range s.Payments {
		state.payments.put(v.InvoiceID, v)
	}
	for _, v := range s.LedgerEntries {
		state.ledger.put(v.ID, cloneLedgerEntry(v))
	}
	for _, v := range s.BankStatements {
		state.statements.put(v.ID, cloneBankStatement(v))
	}
	state.settings = s.Settings
	for _, v := range s.Condominiums {
		state.condominiums.put(v.ID, v)
	}
	for _, v := range s.Advertisements {
		state.ads.put(v.ID, v)
	}
	for _, v := range s.Users {
		state.users.put(v.ID, v)
	}
	for _, v := range s.Visits {
		state.visits.put(v.ID, v)
	}
	for _, v := range s.Notifications {
		state.notifications.put(v.ID, cloneNotification(v))
	}
	for _, v := range s.Messages {
		state.messages.put(v.ID, v)
	}
	for _, e := range s.AuditLog {
		state.audit = append(state.audit, cloneAudit(e))
		state.indexAudit(len(state.audit) - 1)
		if e.Seq > state.auditSeq {
			state.auditSeq = e.Seq
		}
	}
	return state
}

// migrateSnapshot normalizes snapshots written by older builds: it drops
// records whose required references no longer resolve, clears dangling
// optional references and converts legacy coverage lists to explicit scopes.
func migrateSnapshot(snapshot Snapshot) Snapshot {
	owners := idSet(snapshot.Owners, func(o domain.Owner) string { return o.ID })
	condos := idSet(snapshot.Condominiums, func(c domain.Condominium) string { return c.ID })
	tenants := idSet(snapshot.Tenants, func(t domain.Tenant) string { return t.ID })

	properties := snapshot.Properties[:0:0]
	for _, p := range snapshot.Properties {
		if !owners[p.OwnerID] {
			continue
		}
		if p.CondominiumID != nil && !condos[*p.CondominiumID] {
			p.CondominiumID = nil
		}
		if p.Status == "" {
			p.Status = domain.PropertyActive
		}
		properties = append(properties, p)
	}
	snapshot.Properties = properties
	props := idSet(properties, func(p domain.Property) string { return p.ID })

	for i, p := range snapshot.Partners {
		if p.Coverage.Mode == "" {
			if len(p.Coverage.PropertyIDs) == 0 {
				p.Coverage = domain.Unrestricted()
			} else {
				p.Coverage = domain.RestrictedTo(p.Coverage.PropertyIDs...)
			}
		}
		if p.Documents == nil {
			p.Documents = []string{}
		}
		if p.ServiceRates == nil {
			p.ServiceRates = []domain.ServiceRate{}
		}
		snapshot.Partners[i] = p
	}
	partners := idSet(snapshot.Partners, func(p domain.Partner) string { return p.ID })
	users := idSet(snapshot.Users, func(u domain.User) string { return u.ID })

	tasks := snapshot.Tasks[:0:0]
	for _, t := range snapshot.Tasks {
		if !props[t.PropertyID] {
			continue
		}
		switch {
		case t.AssigneeID == "":
			t.AssigneeKind = ""
		case partners[t.AssigneeID]:
			t.AssigneeKind = domain.AssigneePartner
		case users[t.AssigneeID]:
			t.AssigneeKind = domain.AssigneeUser
		default:
			t.AssigneeID, t.AssigneeKind = "", ""
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
		tasks = append(tasks, t)
	}
	snapshot.Tasks = tasks

	bookings := snapshot.Bookings[:0:0]
	for _, b := range snapshot.Bookings {
		if props[b.PropertyID] && tenants[b.TenantID] {
			bookings = append(bookings, b)
		}
	}
	snapshot.Bookings = bookings

	invoices := idSet(snapshot.Invoices, func(i domain.Invoice) string { return i.ID })
	payments := snapshot.Payments[:0:0]
	for _, p := range snapshot.Payments {
		if invoices[p.InvoiceID] {
			payments = append(payments, p)
		}
	}
	snapshot.Payments = payments
	for i, e := range snapshot.LedgerEntries {
		if e.InvoiceID != nil && !invoices[*e.InvoiceID] {
			e.InvoiceID = nil
			snapshot.LedgerEntries[i] = e
		}
	}

	if snapshot.Settings.Currency == "" {
		updated := snapshot.Settings.UpdatedAt
		snapshot.Settings = domain.DefaultFinancialSettings()
		snapshot.Settings.UpdatedAt = updated
	}
	return snapshot
}

func idSet[T any](values []T, id func(T) string) map[string]bool {
	out := make(map[string]bool, len(values))
	for _, v := range values {
		out[id(v)] = true
	}
	return out
}

// Buckets lists the persistence buckets a Snapshot is split into, in write order.
var Buckets = []string{
	"owners", "properties", "partners", "service_rates", "tenants", "tasks",
	"bookings", "invoices", "payments", "ledger_entries", "bank_statements",
	"settings", "condominiums", "advertisements", "users", "visits",
	"notifications", "messages", "audit_log",
}

// BucketTargets maps every bucket name to a pointer into s, suitable for
// json.Marshal when persisting or json.Unmarshal when loading.
func (s *Snapshot) BucketTargets() map[string]any {
	return map[string]any{
		"owners":          &s.Owners,
		"properties":      &s.Properties,
		"partners":        &s.Partners,
		"service_rates":   &s.ServiceRates,
		"tenants":         &s.Tenants,
		"tasks":           &s.Tasks,
		"bookings":        &s.Bookings,
		"invoices":        &s.Invoices,
		"payments":        &s.Payments,
		"ledger_entries":  &s.LedgerEntries,
		"bank_statements": &s.BankStatements,
		"settings":        &s.Settings,
		"condominiums":    &s.Condominiums,
		"advertisements":  &s.Advertisements,
		"users":           &s.Users,
		"visits":          &s.Visits,
		"notifications":   &s.Notifications,
		"messages":        &s.Messages,
		"audit_log":       &s.AuditLog,
	}
}
