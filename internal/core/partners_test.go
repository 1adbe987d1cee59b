package core

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"estatecore/pkg/domain"
)

func TestGenericServiceRateCatalog(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	partners := svc.Partners()

	rate, err := partners.AddGenericServiceRate(ctx, domain.ServiceRate{ServiceName: "Deep clean", PriceCents: 15050, Type: domain.RateFixed})
	require.NoError(t, err)
	require.NotEmpty(t, rate.ID)
	require.Contains(t, lastAudit(t, svc).Details, "150.50")

	_, err = partners.AddGenericServiceRate(ctx, domain.ServiceRate{ServiceName: "Bad", PriceCents: -1, Type: "weekly"})
	var vErr domain.ValidationError
	require.ErrorAs(t, err, &vErr)
	require.Len(t, vErr.Fields, 2)

	rate.Type = domain.RateHourly
	require.NoError(t, partners.UpdateGenericServiceRate(ctx, rate))
	require.Equal(t, domain.RateHourly, partners.GenericServiceRates(ctx)[0].Type)

	require.NoError(t, partners.DeleteGenericServiceRate(ctx, rate.ID))
	require.Empty(t, partners.GenericServiceRates(ctx))
	require.Equal(t, domain.AuditDelete, lastAudit(t, svc).Action)
	require.ErrorAs(t, partners.DeleteGenericServiceRate(ctx, rate.ID), new(domain.NotFoundError))
	require.Len(t, svc.Audit().Activity(ctx, domain.Ref(domain.EntityServiceRate, rate.ID)), 3)
}

func TestPartnerDefaultsAndUpdates(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	f := seedFixture(t, svc)

	open, err := svc.Partners().Add(ctx, domain.Partner{Name: "Hidra Plumbing"})
	require.NoError(t, err)
	require.Equal(t, domain.ScopeUnrestricted, open.Coverage.Mode)
	require.Contains(t, lastAudit(t, svc).Details, "serves all properties")

	p := f.partner
	p.Coverage = domain.RestrictedTo(f.property.ID, f.other.ID)
	p.ServiceRates = []domain.ServiceRate{{ServiceName: "Turnover", PriceCents: 8000, Type: domain.RatePerVisit}}
	require.NoError(t, svc.Partners().Update(ctx, p))
	entry := lastAudit(t, svc)
	require.Contains(t, entry.Details, "coverage")
	require.Contains(t, entry.Details, "service_rates")

	got, ok := svc.Partners().Get(ctx, p.ID)
	require.True(t, ok)
	require.True(t, got.Coverage.Allows(f.other.ID))
	require.Len(t, got.ServiceRates, 1)
	require.Len(t, svc.Partners().List(ctx), 2)

	o := f.owner
	o.Phone = "+55 11 4000-0000"
	require.NoError(t, svc.Owners().Update(ctx, o))
	require.Contains(t, lastAudit(t, svc).Details, "phone")
	require.Equal(t, o.Phone, svc.Owners().List(ctx)[0].Phone)

	o.Email = "broken"
	require.ErrorAs(t, svc.Owners().Update(ctx, o), new(domain.ValidationError))
}
