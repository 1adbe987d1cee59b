package core

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"estatecore/pkg/domain"
)

func TestOwnerPropertyTaskScenario(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	o1, err := svc.Owners().Add(ctx, domain.Owner{Name: "o1"})
	require.NoError(t, err)
	p1, err := svc.Properties().Add(ctx, domain.Property{OwnerID: o1.ID, Name: "p1"})
	require.NoError(t, err)
	t1, err := svc.Tasks().Add(ctx, domain.Task{PropertyID: p1.ID, Title: "t1", Status: domain.TaskPending})
	require.NoError(t, err)
	require.NoError(t, svc.Tasks().UpdateStatus(ctx, t1.ID, domain.TaskInProgress))

	got, ok := svc.Tasks().Get(ctx, t1.ID)
	require.True(t, ok)
	require.Equal(t, domain.TaskInProgress, got.Status)
	require.Equal(t, 4, auditLen(t, svc))
	require.Len(t, svc.Tasks().ByProperty(ctx, p1.ID), 1)
	require.Empty(t, svc.Tasks().ByProperty(ctx, "ghost"))

	// Task entries are indexed under their property too, so the property
	// timeline holds the task creation as well as the status update.
	activity := svc.Audit().Activity(ctx, domain.Ref(domain.EntityProperty, p1.ID))
	require.Len(t, activity, 3)
	require.Equal(t, domain.EntityTask, activity[0].Entity)
	require.Equal(t, domain.AuditUpdate, activity[0].Action)
	require.Equal(t, domain.EntityProperty, activity[2].Entity)
	require.Equal(t, domain.AuditCreate, activity[2].Action)

	require.Equal(t, activity, svc.Audit().Activity(ctx, domain.Ref(domain.EntityProperty, p1.ID)))
}

func TestEverySuccessfulWriteAppendsOneEntry(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	f := seedFixture(t, svc)
	require.Equal(t, 7, auditLen(t, svc))

	p := f.property
	p.Bedrooms = 3
	require.NoError(t, svc.Properties().Update(ctx, p))
	require.Equal(t, 8, auditLen(t, svc))
	entry := lastAudit(t, svc)
	require.Equal(t, domain.AuditUpdate, entry.Action)
	require.Equal(t, p.ID, entry.EntityID)
	require.Contains(t, entry.Details, "bedrooms")
	require.Equal(t, SystemActor, entry.UserName)

	entries := svc.Audit().List(ctx)
	for i := 1; i < len(entries); i++ {
		require.Greater(t, entries[i].Seq, entries[i-1].Seq)
	}
}

func TestFailedWritesLeaveRegistryAndLogUntouched(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	f := seedFixture(t, svc)
	before := auditLen(t, svc)

	_, err := svc.Properties().Add(ctx, domain.Property{OwnerID: "ghost", Name: "Nowhere"})
	var refErr domain.ReferentialIntegrityError
	require.ErrorAs(t, err, &refErr)
	require.Equal(t, "owner_id", refErr.Field)

	_, err = svc.Properties().Add(ctx, domain.Property{OwnerID: f.owner.ID})
	var vErr domain.ValidationError
	require.ErrorAs(t, err, &vErr)
	require.Equal(t, "name", vErr.Fields[0].Field)

	err = svc.Properties().Update(ctx, domain.Property{Base: domain.Base{ID: "missing"}, OwnerID: f.owner.ID, Name: "x"})
	var nf domain.NotFoundError
	require.ErrorAs(t, err, &nf)

	_, err = svc.Partners().Add(ctx, domain.Partner{Name: "Bad", ServiceRates: []domain.ServiceRate{{PriceCents: 10}}})
	require.ErrorAs(t, err, &vErr)
	require.Equal(t, "service_rates[0].service_name", vErr.Fields[0].Field)

	require.Equal(t, before, auditLen(t, svc))
	require.Len(t, svc.Properties().List(ctx), 2)
}

func TestErrorsCarryOperationName(t *testing.T) {
	svc := newTestService(t)
	err := svc.Tasks().UpdateStatus(context.Background(), "nope", domain.TaskInProgress)
	require.ErrorContains(t, err, "task.update_status")
	require.True(t, errors.As(err, new(domain.NotFoundError)))
}

func TestActorStampedFromSession(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	f := seedFixture(t, svc)

	require.NoError(t, svc.Auth().SetCurrentUser(ctx, f.operator.ID))
	_, err := svc.Tenants().Add(ctx, domain.Tenant{Name: "Marco"})
	require.NoError(t, err)
	entry := lastAudit(t, svc)
	require.Equal(t, f.operator.ID, entry.UserID)
	require.Equal(t, "Olga", entry.UserName)

	require.NoError(t, svc.Users().Update(ctx, domain.User{Base: f.operator.Base, Name: "Olga Lima", Email: f.operator.Email, Role: f.operator.Role}))
	_, err = svc.Tenants().Add(ctx, domain.Tenant{Name: "Bia"})
	require.NoError(t, err)
	require.Equal(t, "Olga Lima", lastAudit(t, svc).UserName)

	require.NoError(t, svc.Auth().Logout(ctx))
	_, err = svc.Tenants().Add(ctx, domain.Tenant{Name: "Caio"})
	require.NoError(t, err)
	require.Equal(t, SystemActor, lastAudit(t, svc).UserName)
	require.Empty(t, lastAudit(t, svc).UserID)
}

func TestPrometheusMetricsCountOutcomes(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	metrics, err := NewPrometheusMetrics(reg)
	require.NoError(t, err)
	svc := newTestService(t, WithMetricsRecorder(metrics))

	_, err = svc.Owners().Add(ctx, domain.Owner{Name: "A"})
	require.NoError(t, err)
	_, err = svc.Owners().Add(ctx, domain.Owner{})
	require.Error(t, err)
	_, err = svc.Properties().Add(ctx, domain.Property{OwnerID: "ghost", Name: "x"})
	require.Error(t, err)

	require.Equal(t, 1.0, testutil.ToFloat64(metrics.Operations().WithLabelValues("owner.add", "success")))
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.Operations().WithLabelValues("property.add", "failure")))
	require.Equal(t, 0.0, testutil.ToFloat64(metrics.Operations().WithLabelValues("owner.add", "failure")))

	_, err = NewPrometheusMetrics(reg)
	require.Error(t, err)
}

func TestRuleWarningsAreLogged(t *testing.T) {
	ctx := context.Background()
	obs, logs := observer.New(zap.WarnLevel)
	svc := newTestService(t, WithLogger(zap.New(obs)))
	f := seedFixture(t, svc)

	task, err := svc.Tasks().Add(ctx, domain.Task{PropertyID: f.property.ID, Title: "Late entry", Status: domain.TaskCompleted})
	require.NoError(t, err)
	require.Equal(t, domain.TaskCompleted, task.Status)

	warnings := logs.FilterMessage("rule warning").All()
	require.Len(t, warnings, 1)
	require.Equal(t, "task_lifecycle", warnings[0].ContextMap()["rule"])
}
