package core

import (
	"context"
	"fmt"
	"io"
	"slices"

	"go.uber.org/zap"

	"estatecore/pkg/domain"
)

// Tasks is the task lifecycle engine: pending → in_progress → completed → approved.
type Tasks struct{ s *Service }

var approvers = []domain.Role{domain.RoleAdmin, domain.RoleReviewer}

// List returns all tasks in creation order.
func (h Tasks) List(ctx context.Context) []domain.Task {
	return read(ctx, h.s, func(v domain.TransactionView) []domain.Task { return v.ListTasks() })
}

// Get looks a task up by ID.
func (h Tasks) Get(ctx context.Context, id string) (domain.Task, bool) {
	var (
		t  domain.Task
		ok bool
	)
	_ = h.s.View(ctx, func(v domain.TransactionView) error {
		t, ok = v.FindTask(id)
		return nil
	})
	return t, ok
}

// ByProperty returns the tasks of a property.
func (h Tasks) ByProperty(ctx context.Context, propertyID string) []domain.Task {
	return read(ctx, h.s, func(v domain.TransactionView) []domain.Task { return v.ListTasksByProperty(propertyID) })
}

func taskRelations(t domain.Task) []domain.EntityRef {
	refs := []domain.EntityRef{domain.Ref(domain.EntityProperty, t.PropertyID)}
	switch t.AssigneeKind {
	case domain.AssigneePartner:
		refs = append(refs, domain.Ref(domain.EntityPartner, t.AssigneeID))
	case domain.AssigneeUser:
		refs = append(refs, domain.Ref(domain.EntityUser, t.AssigneeID))
	}
	return refs
}

// Add creates a task. The assignee may be a partner or a user. Creating a task
// already approved requires a reviewer or admin session.
func (h Tasks) Add(ctx context.Context, t domain.Task) (domain.Task, error) {
	if err := h.s.check(domain.EntityTask, t); err != nil {
		return domain.Task{}, err
	}
	var created domain.Task
	err := h.s.mutate(ctx, "task.add", func(tx domain.Transaction, user domain.User) (domain.AuditLogEntry, error) {
		if t.Status == domain.TaskApproved {
			if err := requireRole(user, "task.approve", approvers...); err != nil {
				return domain.AuditLogEntry{}, err
			}
		}
		var err error
		if created, err = tx.CreateTask(t); err != nil {
			return domain.AuditLogEntry{}, err
		}
		return auditEntry(domain.AuditCreate, domain.EntityTask, created.ID,
			fmt.Sprintf("created task %q (%s)", created.Title, created.Status), taskRelations(created)...), nil
	})
	return created, err
}

// Update replaces a task. Status changes follow the same rules as UpdateStatus.
func (h Tasks) Update(ctx context.Context, t domain.Task) error {
	if err := h.s.check(domain.EntityTask, t); err != nil {
		return err
	}
	return h.s.mutate(ctx, "task.update", func(tx domain.Transaction, user domain.User) (domain.AuditLogEntry, error) {
		var before domain.Task
		updated, err := tx.UpdateTask(t.ID, func(cur *domain.Task) error {
			before = *cur
			if t.Status == "" {
				t.Status = cur.Status
			}
			if t.Status != cur.Status && t.Status == domain.TaskApproved {
				if err := requireRole(user, "task.approve", approvers...); err != nil {
					return err
				}
			}
			*cur = t
			return nil
		})
		if err != nil {
			return domain.AuditLogEntry{}, err
		}
		return auditEntry(domain.AuditUpdate, domain.EntityTask, updated.ID,
			updateDetails("task", updated.Title, before, updated), taskRelations(updated)...), nil
	})
}

// UpdateStatus moves a task one step forward. Approval requires a reviewer or admin session.
func (h Tasks) UpdateStatus(ctx context.Context, id string, status domain.TaskStatus) error {
	if !status.Valid() {
		return domain.NewValidationError(domain.EntityTask, "status", fmt.Sprintf("unknown status %q", status))
	}
	return h.s.mutate(ctx, "task.update_status", func(tx domain.Transaction, user domain.User) (domain.AuditLogEntry, error) {
		var from domain.TaskStatus
		updated, err := tx.UpdateTask(id, func(t *domain.Task) error {
			from = t.Status
			if status == domain.TaskApproved && from != status {
				if err := requireRole(user, "task.approve", approvers...); err != nil {
					return err
				}
			}
			t.Status = status
			return nil
		})
		if err != nil {
			return domain.AuditLogEntry{}, err
		}
		details := fmt.Sprintf("status %s -> %s", from, status)
		if from == status {
			details = fmt.Sprintf("status unchanged (%s)", status)
		}
		return auditEntry(domain.AuditUpdate, domain.EntityTask, id, details, taskRelations(updated)...), nil
	})
}

// OverrideStatus sets any valid status, bypassing the forward-only rule. Admin only.
func (h Tasks) OverrideStatus(ctx context.Context, id string, status domain.TaskStatus, reason string) error {
	if !status.Valid() {
		return domain.NewValidationError(domain.EntityTask, "status", fmt.Sprintf("unknown status %q", status))
	}
	if reason == "" {
		return domain.NewValidationError(domain.EntityTask, "reason", "is required for an override")
	}
	return h.s.mutate(ctx, "task.override_status", func(tx domain.Transaction, user domain.User) (domain.AuditLogEntry, error) {
		if err := requireRole(user, "task.override_status", domain.RoleAdmin); err != nil {
			return domain.AuditLogEntry{}, err
		}
		tx.MarkOverride()
		var from domain.TaskStatus
		updated, err := tx.UpdateTask(id, func(t *domain.Task) error {
			from = t.Status
			t.Status = status
			return nil
		})
		if err != nil {
			return domain.AuditLogEntry{}, err
		}
		return auditEntry(domain.AuditUpdate, domain.EntityTask, id,
			fmt.Sprintf("status overridden %s -> %s: %s", from, status, reason), taskRelations(updated)...), nil
	})
}

// AddImage attaches an image reference. Adding a reference already present is a no-op on the list.
func (h Tasks) AddImage(ctx context.Context, id, ref string) error {
	return h.attach(ctx, "task.add_image", id, ref, "image", func(t *domain.Task) *[]string { return &t.Images })
}

// AddEvidence attaches an evidence reference with the same semantics as AddImage.
func (h Tasks) AddEvidence(ctx context.Context, id, ref string) error {
	return h.attach(ctx, "task.add_evidence", id, ref, "evidence", func(t *domain.Task) *[]string { return &t.Evidence })
}

func (h Tasks) attach(ctx context.Context, op, id, ref, label string, list func(*domain.Task) *[]string) error {
	if ref == "" {
		return domain.NewValidationError(domain.EntityTask, label, "reference is required")
	}
	return h.s.mutate(ctx, op, func(tx domain.Transaction, _ domain.User) (domain.AuditLogEntry, error) {
		updated, err := tx.UpdateTask(id, func(t *domain.Task) error {
			refs := list(t)
			if !slices.Contains(*refs, ref) {
				*refs = append(*refs, ref)
			}
			return nil
		})
		if err != nil {
			return domain.AuditLogEntry{}, err
		}
		return auditEntry(domain.AuditUpdate, domain.EntityTask, id,
			fmt.Sprintf("attached %s %s", label, ref), taskRelations(updated)...), nil
	})
}

// UploadImage stores the image bytes and attaches the resulting key.
func (h Tasks) UploadImage(ctx context.Context, id, name string, r io.Reader, contentType string) (string, error) {
	return h.uploadAndAttach(ctx, id, "images", name, r, contentType, h.AddImage)
}

// UploadEvidence stores the evidence bytes and attaches the resulting key.
func (h Tasks) UploadEvidence(ctx context.Context, id, name string, r io.Reader, contentType string) (string, error) {
	return h.uploadAndAttach(ctx, id, "evidence", name, r, contentType, h.AddEvidence)
}

func (h Tasks) uploadAndAttach(ctx context.Context, id, bucket, name string, r io.Reader, contentType string, attach func(context.Context, string, string) error) (string, error) {
	if _, ok := h.Get(ctx, id); !ok {
		return "", domain.NotFoundError{Entity: domain.EntityTask, ID: id}
	}
	key, err := h.s.upload(ctx, "task.upload_"+bucket, attachmentKey("tasks", id, bucket, name), r, contentType)
	if err != nil {
		return "", err
	}
	if err := attach(ctx, id, key); err != nil {
		h.s.discard(ctx, key)
		return "", err
	}
	return key, nil
}

// NotifySupplier records a notification for the partner assigned to the task
// and dispatches it. Delivery is best effort: failures are logged and the
// stored notification is kept.
func (h Tasks) NotifySupplier(ctx context.Context, taskID, message string) (domain.Notification, error) {
	var (
		created domain.Notification
		partner domain.Partner
	)
	err := h.s.mutate(ctx, "task.notify_supplier", func(tx domain.Transaction, _ domain.User) (domain.AuditLogEntry, error) {
		view := tx.Snapshot()
		task, ok := view.FindTask(taskID)
		if !ok {
			return domain.AuditLogEntry{}, domain.NotFoundError{Entity: domain.EntityTask, ID: taskID}
		}
		if task.AssigneeKind != domain.AssigneePartner {
			return domain.AuditLogEntry{}, domain.NewValidationError(domain.EntityTask, "assignee_id", "task has no partner assigned")
		}
		partner, _ = view.FindPartner(task.AssigneeID)
		title := fmt.Sprintf("Task %q", task.Title)
		var err error
		created, err = tx.CreateNotification(domain.Notification{
			RecipientID: partner.ID,
			Kind:        "task",
			Title:       title,
			Body:        message,
			Payload: map[string]string{
				"task_id":     task.ID,
				"property_id": task.PropertyID,
				"status":      string(task.Status),
			},
		})
		if err != nil {
			return domain.AuditLogEntry{}, err
		}
		return auditEntry(domain.AuditNotify, domain.EntityTask, task.ID,
			fmt.Sprintf("notified partner %q", partner.Name),
			domain.Ref(domain.EntityProperty, task.PropertyID),
			domain.Ref(domain.EntityPartner, partner.ID),
			domain.Ref(domain.EntityNotification, created.ID)), nil
	})
	if err != nil {
		return domain.Notification{}, err
	}
	h.s.dispatch(ctx, partner, created)
	return created, nil
}

// Delete removes a task.
func (h Tasks) Delete(ctx context.Context, id string) error {
	return h.s.mutate(ctx, "task.delete", func(tx domain.Transaction, _ domain.User) (domain.AuditLogEntry, error) {
		task, _ := tx.Snapshot().FindTask(id)
		if err := tx.DeleteTask(id); err != nil {
			return domain.AuditLogEntry{}, err
		}
		return auditEntry(domain.AuditDelete, domain.EntityTask, id,
			fmt.Sprintf("deleted task %q", task.Title), taskRelations(task)...), nil
	})
}

func (s *Service) dispatch(ctx context.Context, partner domain.Partner, n domain.Notification) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, partner, n); err != nil {
		s.logger.Warn("supplier notification not delivered",
			zap.String("partner_id", partner.ID),
			zap.String("notification_id", n.ID),
			zap.Error(err))
	}
}
