package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	domain "github.com/aet-hub/aet-hub/internal/domain/ledger"
	"github.com/aet-hub/aet-hub/internal/domain/license"
	"github.com/aet-hub/aet-hub/internal/domain/vehicle"
	vehiclemocks "github.com/aet-hub/aet-hub/internal/domain/vehicle/mocks"
	"github.com/aet-hub/aet-hub/internal/infrastructure/memory"
)

func int64Ptr(v int64) *int64 { return &v }

func approvedRequest() *license.Request {
	validUntil := today.AddDate(1, 0, 0)
	issuedAt := today
	req := &license.Request{
		ID:               42,
		RequestNumber:    "AET-2025-00042",
		OwnerUserID:      uuid.New(),
		TransporterID:    7,
		States:           []string{"SP", "MG"},
		TractorUnitID:    int64Ptr(1),
		FirstTrailerID:   int64Ptr(2),
		AdditionalPlates: []string{"ABC-1234", "TRL0003"},
		StateCnpjs:       []string{"SP:11222333000181"},
		StateAETNumbers:  []string{"SP:555/2025"},
	}
	req.StateStatuses = []string{license.EncodeStatus("SP", license.StatusApproved, &validUntil, &issuedAt)}
	return req
}

func TestSyncApprovedStateIsIdempotent(t *testing.T) {
	ctrl := gomock.NewController(t)
	vehicles := vehiclemocks.NewMockRepository(ctrl)
	vehicles.EXPECT().GetByID(gomock.Any(), int64(1)).Return(&vehicle.Vehicle{ID: 1, Plate: "abc-1234"}, nil).AnyTimes()
	vehicles.EXPECT().GetByID(gomock.Any(), int64(2)).Return(&vehicle.Vehicle{ID: 2, Plate: "DEF5G67"}, nil).AnyTimes()

	store := memory.NewStore()
	syncer := NewSyncer(store.Ledger(), vehicles, zerolog.Nop()).WithClock(func() time.Time { return today })
	req := approvedRequest()
	validUntil := today.AddDate(1, 0, 0)

	first, err := syncer.SyncApprovedState(context.Background(), req, "SP", "555/2025", validUntil, today)
	require.NoError(t, err)
	second, err := syncer.SyncApprovedState(context.Background(), req, "SP", "555/2025", validUntil, today)
	require.NoError(t, err)

	entries, err := store.Ledger().ListByRequest(context.Background(), req.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, *first, *entries[0])

	e := entries[0]
	assert.Equal(t, domain.StatusActive, e.Status)
	assert.Equal(t, "555/2025", *e.AETNumber)
	assert.Equal(t, "11222333000181", *e.SelectedTaxID)
	assert.Equal(t, "ABC1234", *e.Plates.Tractor)
	assert.Equal(t, "DEF5G67", *e.Plates.FirstTrailer)
	assert.Equal(t, "TRL0003", *e.Plates.SecondTrailer, "additional plate fills the next empty slot")
	assert.Nil(t, e.Plates.Dolly)
}

func TestSyncApprovedStateLookupFailureLeavesPlateNil(t *testing.T) {
	ctrl := gomock.NewController(t)
	vehicles := vehiclemocks.NewMockRepository(ctrl)
	vehicles.EXPECT().GetByID(gomock.Any(), int64(1)).Return(nil, assert.AnError)
	vehicles.EXPECT().GetByID(gomock.Any(), int64(2)).Return(nil, nil)

	store := memory.NewStore()
	syncer := NewSyncer(store.Ledger(), vehicles, zerolog.Nop()).WithClock(func() time.Time { return today })
	req := approvedRequest()
	req.AdditionalPlates = nil
	req.MainPlate = "main-001"

	e, err := syncer.SyncApprovedState(context.Background(), req, "SP", "", today.AddDate(0, 6, 0), today)
	require.NoError(t, err)
	assert.Equal(t, "MAIN001", *e.Plates.Tractor, "main plate fills the tractor slot")
	assert.Nil(t, e.Plates.FirstTrailer)
	assert.Nil(t, e.AETNumber)
}

func TestSyncApprovedStateMarksPastValidityExpired(t *testing.T) {
	store := memory.NewStore()
	syncer := NewSyncer(store.Ledger(), nil, zerolog.Nop()).WithClock(func() time.Time { return today })
	req := approvedRequest()
	req.TractorUnitID, req.FirstTrailerID = nil, nil

	e, err := syncer.SyncApprovedState(context.Background(), req, "SP", "1", today.AddDate(0, 0, -1), today.AddDate(-1, 0, 0))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusExpired, e.Status)
}

func TestSyncApprovedStateRejectsUnknownState(t *testing.T) {
	syncer := NewSyncer(memory.NewStore().Ledger(), nil, zerolog.Nop())
	_, err := syncer.SyncApprovedState(context.Background(), approvedRequest(), "RJ", "1", today, today)
	assert.Error(t, err)
}

func TestSyncFromTags(t *testing.T) {
	store := memory.NewStore()
	syncer := NewSyncer(store.Ledger(), nil, zerolog.Nop()).WithClock(func() time.Time { return today })
	req := approvedRequest()
	req.TractorUnitID, req.FirstTrailerID = nil, nil

	e, err := syncer.SyncFromTags(context.Background(), req, "SP")
	require.NoError(t, err)
	assert.Equal(t, today.AddDate(1, 0, 0), e.ValidUntil)
	assert.Equal(t, "555/2025", *e.AETNumber)

	_, err = syncer.SyncFromTags(context.Background(), req, "MG")
	assert.Error(t, err)

	req.StateStatuses = license.UpsertTag(req.StateStatuses, "MG", license.EncodeStatus("MG", license.StatusApproved, nil, nil))
	_, err = syncer.SyncFromTags(context.Background(), req, "MG")
	assert.ErrorIs(t, err, ErrIncompleteApproval)
}

func TestFillLegacyPlateSlots(t *testing.T) {
	t.Run("fills empty slots in order", func(t *testing.T) {
		plates := domain.Plates{Tractor: strPtr("T1"), SecondTrailer: strPtr("S2")}
		fillLegacyPlateSlots(&plates, []string{"a1", "b2", "c3", "d4", "e5"})
		assert.Equal(t, "A1", *plates.FirstTrailer)
		assert.Equal(t, "S2", *plates.SecondTrailer)
		assert.Equal(t, "B2", *plates.Dolly)
		assert.Equal(t, "C3", *plates.Flatbed)
		assert.Equal(t, "D4", *plates.GenericTrailer)
	})

	t.Run("skips plates already present", func(t *testing.T) {
		plates := domain.Plates{Tractor: strPtr("T1")}
		fillLegacyPlateSlots(&plates, []string{"t1", "", "X9"})
		assert.Equal(t, "X9", *plates.FirstTrailer)
		assert.Nil(t, plates.SecondTrailer)
	})
}
