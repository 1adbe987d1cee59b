package core

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	blobcore "estatecore/internal/blob/core"
	"estatecore/pkg/domain"
)

var epoch = time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

// tickingClock advances one second per reading so every transaction gets a
// distinct timestamp.
type tickingClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *tickingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

func newTestService(t *testing.T, opts ...Option) *Service {
	t.Helper()
	clock := &tickingClock{now: epoch}
	return NewInMemoryService(append([]Option{WithClock(clock)}, opts...)...)
}

type fixture struct {
	owner    domain.Owner
	property domain.Property
	other    domain.Property
	partner  domain.Partner
	admin    domain.User
	reviewer domain.User
	operator domain.User
}

func seedFixture(t *testing.T, svc *Service) fixture {
	t.Helper()
	ctx := context.Background()
	var f fixture
	var err error
	f.owner, err = svc.Owners().Add(ctx, domain.Owner{Name: "Helena Prado", Email: "helena@owners.example"})
	require.NoError(t, err)
	f.property, err = svc.Properties().Add(ctx, domain.Property{OwnerID: f.owner.ID, Name: "Beach Loft"})
	require.NoError(t, err)
	f.other, err = svc.Properties().Add(ctx, domain.Property{OwnerID: f.owner.ID, Name: "Mountain Cabin"})
	require.NoError(t, err)
	f.partner, err = svc.Partners().Add(ctx, domain.Partner{Name: "Brilho Cleaning", Email: "ops@brilho.example", Coverage: domain.RestrictedTo(f.property.ID)})
	require.NoError(t, err)
	f.admin, err = svc.Users().Add(ctx, domain.User{Name: "Ana", Email: "ana@estate.example", Role: domain.RoleAdmin, Active: true})
	require.NoError(t, err)
	f.reviewer, err = svc.Users().Add(ctx, domain.User{Name: "Rui", Email: "rui@estate.example", Role: domain.RoleReviewer, Active: true})
	require.NoError(t, err)
	f.operator, err = svc.Users().Add(ctx, domain.User{Name: "Olga", Email: "olga@estate.example", Role: domain.RoleOperator, Active: true})
	require.NoError(t, err)
	return f
}

func auditLen(t *testing.T, svc *Service) int {
	t.Helper()
	return len(svc.Audit().List(context.Background()))
}

func lastAudit(t *testing.T, svc *Service) domain.AuditLogEntry {
	t.Helper()
	entries := svc.Audit().List(context.Background())
	require.NotEmpty(t, entries)
	return entries[len(entries)-1]
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []domain.Notification
	err  error
}

func (n *recordingNotifier) Notify(_ context.Context, _ domain.Partner, notification domain.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, notification)
	return n.err
}

// brokenBlobs fails every write.
type brokenBlobs struct{ blobcore.Store }

var errDiskFull = errors.New("disk full")

func (brokenBlobs) Put(context.Context, string, io.Reader, blobcore.PutOptions) (blobcore.Info, error) {
	return blobcore.Info{}, errDiskFull
}

type fakeGateway struct {
	ref   string
	err   error
	calls int
}

func (g *fakeGateway) Charge(context.Context, domain.Invoice) (string, error) {
	g.calls++
	return g.ref, g.err
}
