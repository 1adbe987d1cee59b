package core

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"estatecore/pkg/domain"
)

func TestAuditAddStampsActorAndSequence(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	f := seedFixture(t, svc)

	_, err := svc.Audit().Add(ctx, domain.AuditLogEntry{Details: "missing action"})
	var vErr domain.ValidationError
	require.ErrorAs(t, err, &vErr)

	require.NoError(t, svc.Auth().SetCurrentUser(ctx, f.admin.ID))
	stored, err := svc.Audit().Add(ctx, domain.AuditLogEntry{
		Action:   domain.AuditImport,
		Entity:   domain.EntityProperty,
		EntityID: f.property.ID,
		Details:  "imported listing photos",
	})
	require.NoError(t, err)
	require.NotEmpty(t, stored.ID)
	require.Equal(t, f.admin.ID, stored.UserID)
	require.Equal(t, "Ana", stored.UserName)
	require.False(t, stored.Timestamp.IsZero())

	entries := svc.Audit().List(ctx)
	require.Equal(t, stored, entries[len(entries)-1])
	require.Equal(t, entries[len(entries)-2].Seq+1, stored.Seq)
	require.Equal(t, stored.ID, svc.Audit().Activity(ctx, domain.Ref(domain.EntityProperty, f.property.ID))[0].ID)
}

func TestAuditAddIgnoresSuppliedIdentityAndTime(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	f := seedFixture(t, svc)
	first := svc.Audit().List(ctx)[0]
	backdated := time.Date(1999, 1, 1, 0, 0, 0, 0, time.UTC)

	stored, err := svc.Audit().Add(ctx, domain.AuditLogEntry{
		ID:        first.ID,
		Seq:       1,
		Timestamp: backdated,
		Action:    domain.AuditImport,
		Entity:    domain.EntityProperty,
		EntityID:  f.property.ID,
		Details:   "imported keys inventory",
	})
	require.NoError(t, err)
	require.NotEqual(t, first.ID, stored.ID)
	require.Equal(t, lastAudit(t, svc).Seq, stored.Seq)
	require.Greater(t, stored.Seq, first.Seq)
	require.True(t, stored.Timestamp.After(epoch))

	seen := map[string]bool{}
	for _, e := range svc.Audit().List(ctx) {
		require.False(t, seen[e.ID], "duplicate audit id %s", e.ID)
		seen[e.ID] = true
	}
	require.Equal(t, stored.ID, svc.Audit().Activity(ctx, domain.Ref(domain.EntityProperty, f.property.ID))[0].ID)
}

func TestActivityOrdersBySequenceWithinOneInstant(t *testing.T) {
	ctx := context.Background()
	frozen := ClockFunc(func() time.Time { return epoch })
	svc := NewInMemoryService(WithClock(frozen))
	owner, err := svc.Owners().Add(ctx, domain.Owner{Name: "Owner"})
	require.NoError(t, err)
	p, err := svc.Properties().Add(ctx, domain.Property{OwnerID: owner.ID, Name: "Flat"})
	require.NoError(t, err)
	for _, platform := range []string{"airbnb", "booking", "vrbo"} {
		_, err := svc.Advertisements().Add(ctx, domain.Advertisement{PropertyID: p.ID, Platform: platform})
		require.NoError(t, err)
	}

	activity := svc.Audit().Activity(ctx, domain.Ref(domain.EntityProperty, p.ID))
	require.Len(t, activity, 4)
	for i := 1; i < len(activity); i++ {
		require.Greater(t, activity[i-1].Seq, activity[i].Seq)
	}
	require.Contains(t, activity[0].Details, "vrbo")
	require.Equal(t, domain.EntityProperty, activity[3].Entity)

	ownerActivity := svc.Audit().Activity(ctx, domain.Ref(domain.EntityOwner, owner.ID))
	require.Len(t, ownerActivity, 2)
	require.Empty(t, svc.Audit().Activity(ctx, domain.Ref(domain.EntityProperty, "ghost")))
}

func TestLoginAndLogout(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	f := seedFixture(t, svc)
	auth := svc.Auth()

	_, ok := auth.CurrentUser(ctx)
	require.False(t, ok)
	require.NoError(t, auth.Logout(ctx))
	before := auditLen(t, svc)

	var nf domain.NotFoundError
	require.ErrorAs(t, auth.SetCurrentUser(ctx, "ghost"), &nf)
	require.Equal(t, before, auditLen(t, svc))

	require.NoError(t, auth.SetCurrentUser(ctx, f.reviewer.ID))
	current, ok := auth.CurrentUser(ctx)
	require.True(t, ok)
	require.Equal(t, f.reviewer.ID, current.ID)
	login := lastAudit(t, svc)
	require.Equal(t, domain.AuditLogin, login.Action)
	require.Equal(t, f.reviewer.ID, login.UserID)

	require.NoError(t, auth.Logout(ctx))
	logout := lastAudit(t, svc)
	require.Equal(t, domain.AuditLogout, logout.Action)
	require.Equal(t, "Rui", logout.UserName)
	_, ok = auth.CurrentUser(ctx)
	require.False(t, ok)
	require.Equal(t, before+2, auditLen(t, svc))

	require.Len(t, auth.AllUsers(ctx), 3)
}

func TestUsersCRUD(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	u, err := svc.Users().Add(ctx, domain.User{Name: "Lia", Email: "lia@estate.example", Role: domain.RoleManager})
	require.NoError(t, err)

	_, err = svc.Users().Add(ctx, domain.User{Name: "Bad", Email: "not-an-email", Role: "owner"})
	var vErr domain.ValidationError
	require.ErrorAs(t, err, &vErr)
	require.Len(t, vErr.Fields, 2)

	u.Role = domain.RoleAdmin
	require.NoError(t, svc.Users().Update(ctx, u))
	got, ok := svc.Users().Get(ctx, u.ID)
	require.True(t, ok)
	require.Equal(t, domain.RoleAdmin, got.Role)
	require.Contains(t, lastAudit(t, svc).Details, "role")

	require.NoError(t, svc.Users().Delete(ctx, u.ID))
	require.Empty(t, svc.Users().List(ctx))
	require.ErrorAs(t, svc.Users().Delete(ctx, u.ID), new(domain.NotFoundError))
}

func TestNotificationsAndMessages(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	f := seedFixture(t, svc)

	n, err := svc.Notifications().Add(ctx, domain.Notification{RecipientID: f.admin.ID, Title: "Invoice overdue", Read: true})
	require.NoError(t, err)
	require.False(t, n.Read)
	require.Len(t, svc.Notifications().ListFor(ctx, f.admin.ID), 1)
	require.Empty(t, svc.Notifications().ListFor(ctx, f.reviewer.ID))
	require.NoError(t, svc.Notifications().MarkAsRead(ctx, n.ID))
	require.NoError(t, svc.Notifications().MarkAsRead(ctx, n.ID))
	require.True(t, svc.Notifications().List(ctx)[0].Read)
	require.Len(t, svc.Audit().Activity(ctx, domain.Ref(domain.EntityUser, f.admin.ID)), 2)

	_, err = svc.Notifications().Add(ctx, domain.Notification{RecipientID: "ghost", Title: "x"})
	require.ErrorAs(t, err, new(domain.ReferentialIntegrityError))

	_, err = svc.Messages().Add(ctx, domain.Message{RecipientID: f.reviewer.ID, Body: "hi"})
	require.ErrorAs(t, err, new(domain.ValidationError))

	require.NoError(t, svc.Auth().SetCurrentUser(ctx, f.admin.ID))
	m, err := svc.Messages().Add(ctx, domain.Message{RecipientID: f.reviewer.ID, Subject: "Keys", Body: "Keys are at the front desk"})
	require.NoError(t, err)
	require.Equal(t, f.admin.ID, m.SenderID)
	require.NoError(t, svc.Messages().MarkAsRead(ctx, m.ID))
	require.True(t, svc.Messages().List(ctx)[0].Read)
	require.ErrorAs(t, svc.Messages().MarkAsRead(ctx, "ghost"), new(domain.NotFoundError))

	reviewerActivity := svc.Audit().Activity(ctx, domain.Ref(domain.EntityUser, f.reviewer.ID))
	require.Equal(t, m.ID, reviewerActivity[0].EntityID)
}

func TestBookingsAndTenants(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	f := seedFixture(t, svc)
	b := addBooking(t, svc, f)

	b.Status = domain.BookingConfirmed
	require.NoError(t, svc.Bookings().Update(ctx, b))
	require.Equal(t, domain.BookingConfirmed, svc.Bookings().List(ctx)[0].Status)

	bad := b
	bad.CheckOut = b.CheckIn.Add(-time.Hour)
	var vErr domain.ValidationError
	require.ErrorAs(t, svc.Bookings().Update(ctx, bad), &vErr)
	require.Equal(t, "check_out", vErr.Fields[0].Field)

	_, err := svc.Bookings().Add(ctx, domain.Booking{PropertyID: f.property.ID, TenantID: "ghost", CheckIn: epoch, CheckOut: epoch.Add(time.Hour)})
	require.ErrorAs(t, err, new(domain.ReferentialIntegrityError))

	tenant := svc.Tenants().List(ctx)[0]
	tenant.Phone = "+55 21 99999-0000"
	require.NoError(t, svc.Tenants().Update(ctx, tenant))
	tenantActivity := svc.Audit().Activity(ctx, domain.Ref(domain.EntityTenant, tenant.ID))
	require.Len(t, tenantActivity, 4)
	require.Contains(t, tenantActivity[0].Details, "phone")
}

func TestPropertyAncillaryRecords(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	f := seedFixture(t, svc)

	condo, err := svc.Condominiums().Add(ctx, domain.Condominium{Name: "Edifício Mar", FeeCents: 85000})
	require.NoError(t, err)
	p := f.property
	p.CondominiumID = &condo.ID
	require.NoError(t, svc.Properties().Update(ctx, p))
	require.ErrorAs(t, svc.Condominiums().Delete(ctx, condo.ID), new(domain.ReferentialIntegrityError))
	require.Len(t, svc.Audit().Activity(ctx, domain.Ref(domain.EntityCondominium, condo.ID)), 2)
	require.Len(t, svc.Properties().ByOwner(ctx, f.owner.ID), 2)

	ad, err := svc.Advertisements().Add(ctx, domain.Advertisement{PropertyID: p.ID, Platform: "airbnb", URL: "https://airbnb.example/rooms/1", Active: true})
	require.NoError(t, err)
	ad.Active = false
	require.NoError(t, svc.Advertisements().Update(ctx, ad))
	require.NoError(t, svc.Advertisements().Delete(ctx, ad.ID))
	require.Empty(t, svc.Advertisements().List(ctx))

	_, err = svc.Visits().Add(ctx, domain.Visit{PropertyID: p.ID, VisitorName: "João"})
	require.ErrorAs(t, err, new(domain.ValidationError))
	v, err := svc.Visits().Add(ctx, domain.Visit{PropertyID: p.ID, VisitorName: "João", ScheduledAt: epoch.AddDate(0, 0, 2)})
	require.NoError(t, err)
	v.Notes = "bring ID"
	require.NoError(t, svc.Visits().Update(ctx, v))
	require.NoError(t, svc.Visits().Delete(ctx, v.ID))
	require.Empty(t, svc.Visits().List(ctx))

	activity := svc.Audit().Activity(ctx, domain.Ref(domain.EntityProperty, p.ID))
	require.Equal(t, domain.AuditDelete, activity[0].Action)
	require.Equal(t, domain.EntityVisit, activity[0].Entity)

	p.CondominiumID = nil
	require.NoError(t, svc.Properties().Update(ctx, p))
	require.NoError(t, svc.Condominiums().Delete(ctx, condo.ID))
	require.Empty(t, svc.Condominiums().List(ctx))
}
