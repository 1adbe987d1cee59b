package memory

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"estatecore/pkg/domain"
)

func TestExportImportRoundTripRebuildsAuditIndex(t *testing.T) {
	store := newTestStore(t, nil)
	_, property := seedProperty(t, store)
	propertyRef := domain.Ref(domain.EntityProperty, property.ID)
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := tx.AppendAudit(domain.AuditLogEntry{Action: domain.AuditCreate, Entity: propertyRef.Entity, EntityID: propertyRef.ID})
		return err
	})
	require.NoError(t, err)

	payload, err := json.Marshal(store.ExportState())
	require.NoError(t, err)
	var snapshot Snapshot
	require.NoError(t, json.Unmarshal(payload, &snapshot))

	restored := newTestStore(t, nil)
	restored.ImportState(snapshot)

	require.NoError(t, restored.View(context.Background(), func(v domain.TransactionView) error {
		require.Len(t, v.ListProperties(), 1)
		require.Len(t, v.AuditFor(propertyRef), 1)
		return nil
	}))

	_, err = restored.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		entry, err := tx.AppendAudit(domain.AuditLogEntry{Action: domain.AuditUpdate, Entity: propertyRef.Entity, EntityID: propertyRef.ID})
		require.Equal(t, int64(2), entry.Seq)
		return err
	})
	require.NoError(t, err)
}

func TestMigrateSnapshotNormalizesLegacyRecords(t *testing.T) {
	condo := "gone"
	snapshot := Snapshot{
		Owners: []domain.Owner{{Base: domain.Base{ID: "o1"}, Name: "Ana"}},
		Properties: []domain.Property{
			{Base: domain.Base{ID: "p1"}, OwnerID: "o1", Name: "Kept", CondominiumID: &condo},
			{Base: domain.Base{ID: "p2"}, OwnerID: "missing", Name: "Dropped"},
		},
		Partners: []domain.Partner{
			{Base: domain.Base{ID: "legacy-all"}, Name: "All"},
			{Base: domain.Base{ID: "legacy-some"}, Name: "Some", Coverage: domain.PropertyScope{PropertyIDs: []string{"p1"}}},
		},
		Tasks: []domain.Task{
			{Base: domain.Base{ID: "t1"}, PropertyID: "p1", AssigneeID: "legacy-some", Title: "Clean"},
			{Base: domain.Base{ID: "t2"}, PropertyID: "p2", Title: "Orphan"},
		},
	}

	migrated := migrateSnapshot(snapshot)

	require.Len(t, migrated.Properties, 1)
	require.Nil(t, migrated.Properties[0].CondominiumID)
	require.Equal(t, domain.PropertyActive, migrated.Properties[0].Status)
	require.Equal(t, domain.ScopeUnrestricted, migrated.Partners[0].Coverage.Mode)
	require.Equal(t, domain.RestrictedTo("p1"), migrated.Partners[1].Coverage)
	require.Len(t, migrated.Tasks, 1)
	require.Equal(t, domain.AssigneePartner, migrated.Tasks[0].AssigneeKind)
	require.Equal(t, domain.TaskPending, migrated.Tasks[0].Status)
	require.Equal(t, "BRL", migrated.Settings.Currency)
}
