package core

import (
	"context"
	"fmt"

	"estatecore/pkg/domain"
)

// NewDefaultRulesEngine builds a rules engine with the built-in policy set.
func NewDefaultRulesEngine() *domain.RulesEngine {
	engine := domain.NewRulesEngine()
	engine.Register(TaskLifecycleRule())
	engine.Register(InvoiceLifecycleRule())
	engine.Register(PartnerCoverageRule())
	return engine
}

// TaskLifecycleRule enforces single-step forward task transitions. Changes
// flagged as administrative overrides are exempt.
func TaskLifecycleRule() domain.Rule {
	return taskLifecycleRule{}
}

type taskLifecycleRule struct{}

func (taskLifecycleRule) Name() string { return "task_lifecycle" }

func (r taskLifecycleRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	var res domain.Result
	for _, change := range changes {
		if change.Entity != domain.EntityTask || change.Override {
			continue
		}
		after, ok := change.After.(domain.Task)
		if !ok {
			continue
		}
		if !after.Status.Valid() {
			res.Violations = append(res.Violations, r.violation(domain.SeverityBlock, after.ID,
				fmt.Sprintf("task %s has unknown status %q", after.ID, after.Status)))
			continue
		}
		switch change.Action {
		case domain.ActionCreate:
			if after.Status != domain.TaskPending {
				res.Violations = append(res.Violations, r.violation(domain.SeverityWarn, after.ID,
					fmt.Sprintf("task %s created in status %s instead of pending", after.ID, after.Status)))
			}
		case domain.ActionUpdate:
			before, ok := change.Before.(domain.Task)
			if !ok || before.Status == after.Status {
				continue
			}
			if after.Status.Rank() != before.Status.Rank()+1 {
				res.Violations = append(res.Violations, r.violation(domain.SeverityBlock, after.ID,
					fmt.Sprintf("task %s cannot move from %s to %s", after.ID, before.Status, after.Status)))
			}
		}
	}
	return res, nil
}

func (r taskLifecycleRule) violation(sev domain.Severity, id, msg string) domain.Violation {
	return domain.Violation{Rule: r.Name(), Severity: sev, Message: msg, Entity: domain.EntityTask, EntityID: id}
}

// InvoiceLifecycleRule keeps paid invoices terminal and their payment records consistent.
func InvoiceLifecycleRule() domain.Rule {
	return invoiceLifecycleRule{}
}

type invoiceLifecycleRule struct{}

func (invoiceLifecycleRule) Name() string { return "invoice_lifecycle" }

func (r invoiceLifecycleRule) Evaluate(_ context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	var res domain.Result
	for _, change := range changes {
		switch change.Entity {
		case domain.EntityInvoice:
			after, ok := change.After.(domain.Invoice)
			if !ok {
				continue
			}
			if after.Status != domain.InvoiceOpen && after.Status != domain.InvoicePaid {
				res.Violations = append(res.Violations, r.violation(domain.EntityInvoice, after.ID,
					fmt.Sprintf("invoice %s has unknown status %q", after.ID, after.Status)))
				continue
			}
			before, ok := change.Before.(domain.Invoice)
			if ok && before.Status == domain.InvoicePaid && after.Status != domain.InvoicePaid {
				res.Violations = append(res.Violations, r.violation(domain.EntityInvoice, after.ID,
					fmt.Sprintf("invoice %s is paid and cannot be reopened", after.ID)))
			}
		case domain.EntityPayment:
			after, ok := change.After.(domain.PaymentRecord)
			if !ok || after.Status == domain.PaymentPaid {
				continue
			}
			if invoice, found := view.FindInvoice(after.InvoiceID); found && invoice.Status == domain.InvoicePaid {
				res.Violations = append(res.Violations, r.violation(domain.EntityPayment, after.InvoiceID,
					fmt.Sprintf("invoice %s is paid; payment cannot become %s", after.InvoiceID, after.Status)))
			}
		}
	}
	return res, nil
}

func (r invoiceLifecycleRule) violation(entity domain.EntityType, id, msg string) domain.Violation {
	return domain.Violation{Rule: r.Name(), Severity: domain.SeverityBlock, Message: msg, Entity: entity, EntityID: id}
}

// PartnerCoverageRule blocks task assignments to partners whose coverage
// excludes the task property.
func PartnerCoverageRule() domain.Rule {
	return partnerCoverageRule{}
}

type partnerCoverageRule struct{}

func (partnerCoverageRule) Name() string { return "partner_coverage" }

func (r partnerCoverageRule) Evaluate(_ context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	var res domain.Result
	for _, change := range changes {
		if change.Entity != domain.EntityTask || change.Action == domain.ActionDelete {
			continue
		}
		task, ok := change.After.(domain.Task)
		if !ok || task.AssigneeKind != domain.AssigneePartner {
			continue
		}
		if before, ok := change.Before.(domain.Task); ok && before.AssigneeID == task.AssigneeID && before.PropertyID == task.PropertyID {
			continue
		}
		partner, found := view.FindPartner(task.AssigneeID)
		if !found {
			continue
		}
		if !partner.Coverage.Allows(task.PropertyID) {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     r.Name(),
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("partner %s does not serve property %s", partner.ID, task.PropertyID),
				Entity:   domain.EntityTask,
				EntityID: task.ID,
			})
		}
	}
	return res, nil
}
