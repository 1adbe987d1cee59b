package core

import (
	"context"
	"fmt"

	"estatecore/pkg/domain"
)

// Auth manages the acting user of the gateway session.
type Auth struct{ s *Service }

// SetCurrentUser switches the acting user and records a login entry.
func (h Auth) SetCurrentUser(ctx context.Context, userID string) error {
	user, ok := Users(h).Get(ctx, userID)
	if !ok {
		return domain.NotFoundError{Entity: domain.EntityUser, ID: userID}
	}
	prev := h.s.swapSession(userID)
	err := h.s.mutate(ctx, "auth.login", func(domain.Transaction, domain.User) (domain.AuditLogEntry, error) {
		return auditEntry(domain.AuditLogin, domain.EntityUser, user.ID, fmt.Sprintf("%s signed in as %s", user.Name, user.Role)), nil
	})
	if err != nil {
		h.s.swapSession(prev)
	}
	return err
}

// Logout records a logout entry and clears the session. Without a session it
// does nothing.
func (h Auth) Logout(ctx context.Context) error {
	userID := h.s.sessionUserID()
	if userID == "" {
		return nil
	}
	err := h.s.mutate(ctx, "auth.logout", func(_ domain.Transaction, user domain.User) (domain.AuditLogEntry, error) {
		name := user.Name
		if name == "" {
			name = userID
		}
		return auditEntry(domain.AuditLogout, domain.EntityUser, userID, name+" signed out"), nil
	})
	if err != nil {
		return err
	}
	h.s.swapSession("")
	return nil
}

// CurrentUser returns the session user. The boolean is false when no session
// is active or the user has since been removed.
func (h Auth) CurrentUser(ctx context.Context) (domain.User, bool) {
	id := h.s.sessionUserID()
	if id == "" {
		return domain.User{}, false
	}
	return Users(h).Get(ctx, id)
}

// AllUsers returns every user in creation order.
func (h Auth) AllUsers(ctx context.Context) []domain.User {
	return Users(h).List(ctx)
}

func (s *Service) swapSession(userID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.session
	s.session = userID
	return prev
}

// Users is the command/query handle for dashboard accounts.
type Users struct{ s *Service }

func (h Users) List(ctx context.Context) []domain.User {
	return read(ctx, h.s, func(v domain.TransactionView) []domain.User { return v.ListUsers() })
}

func (h Users) Get(ctx context.Context, id string) (domain.User, bool) {
	var (
		u  domain.User
		ok bool
	)
	_ = h.s.View(ctx, func(v domain.TransactionView) error {
		u, ok = v.FindUser(id)
		return nil
	})
	return u, ok
}

func (h Users) Add(ctx context.Context, u domain.User) (domain.User, error) {
	if err := h.s.check(domain.EntityUser, u); err != nil {
		return domain.User{}, err
	}
	var created domain.User
	err := h.s.mutate(ctx, "user.add", func(tx domain.Transaction, _ domain.User) (domain.AuditLogEntry, error) {
		var err error
		if created, err = tx.CreateUser(u); err != nil {
			return domain.AuditLogEntry{}, err
		}
		return auditEntry(domain.AuditCreate, domain.EntityUser, created.ID,
			fmt.Sprintf("created user %q (%s)", created.Name, created.Role)), nil
	})
	return created, err
}

func (h Users) Update(ctx context.Context, u domain.User) error {
	if err := h.s.check(domain.EntityUser, u); err != nil {
		return err
	}
	return h.s.mutate(ctx, "user.update", func(tx domain.Transaction, _ domain.User) (domain.AuditLogEntry, error) {
		var before domain.User
		updated, err := tx.UpdateUser(u.ID, func(cur *domain.User) error {
			before = *cur
			*cur = u
			return nil
		})
		if err != nil {
			return domain.AuditLogEntry{}, err
		}
		return auditEntry(domain.AuditUpdate, domain.EntityUser, updated.ID, updateDetails("user", updated.Name, before, updated)), nil
	})
}

// Delete removes a user that has no tasks assigned.
func (h Users) Delete(ctx context.Context, id string) error {
	return h.s.mutate(ctx, "user.delete", func(tx domain.Transaction, _ domain.User) (domain.AuditLogEntry, error) {
		user, _ := tx.Snapshot().FindUser(id)
		if err := tx.DeleteUser(id); err != nil {
			return domain.AuditLogEntry{}, err
		}
		return auditEntry(domain.AuditDelete, domain.EntityUser, id, fmt.Sprintf("deleted user %q", user.Name)), nil
	})
}
