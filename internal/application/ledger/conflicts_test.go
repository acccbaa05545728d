package ledger

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	domain "github.com/aet-hub/aet-hub/internal/domain/ledger"
	ledgermocks "github.com/aet-hub/aet-hub/internal/domain/ledger/mocks"
	"github.com/aet-hub/aet-hub/internal/infrastructure/memory"
)

var today = time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

func strPtr(s string) *string { return &s }

type countingRecorder struct {
	blocked map[string]int
}

func (c *countingRecorder) IncConflictBlocked(state string) {
	if c.blocked == nil {
		c.blocked = map[string]int{}
	}
	c.blocked[state]++
}

func newValidator(t *testing.T, entries ...*domain.Entry) (*ConflictValidator, *countingRecorder) {
	t.Helper()
	store := memory.NewStore()
	for _, e := range entries {
		require.NoError(t, store.Ledger().Upsert(context.Background(), e))
	}
	rec := &countingRecorder{}
	v := NewConflictValidator(store.Ledger(), DefaultBlockPolicy(), rec, zerolog.Nop()).
		WithClock(func() time.Time { return today })
	return v, rec
}

func activeEntry(requestID int64, state string, validUntil time.Time, plates domain.Plates) *domain.Entry {
	return &domain.Entry{
		RequestID:     requestID,
		RequestNumber: fmt.Sprintf("AET-2025-%05d", requestID),
		State:         state,
		AETNumber:     strPtr(fmt.Sprintf("N%d", requestID)),
		IssuedAt:      today.AddDate(0, -1, 0),
		ValidUntil:    validUntil,
		Status:        domain.StatusActive,
		Plates:        plates,
	}
}

func TestFindBlockingConflictsRenewalBoundary(t *testing.T) {
	t.Run("61 days blocks", func(t *testing.T) {
		v, rec := newValidator(t, activeEntry(1, "SP", today.AddDate(0, 0, 61), domain.Plates{Tractor: strPtr("ABC1234")}))
		c, err := v.FindBlockingConflicts(context.Background(), "SP", []string{"ABC1234"})
		require.NoError(t, err)
		require.NotNil(t, c)
		assert.Equal(t, 61, c.DaysRemaining)
		assert.True(t, c.Blocking)
		assert.Equal(t, "N1", c.AETNumber)
		assert.Equal(t, []string{"ABC1234"}, c.OverlappingPlates)
		assert.Equal(t, 1, rec.blocked["SP"])
	})

	t.Run("60 days is a renewal", func(t *testing.T) {
		v, rec := newValidator(t, activeEntry(1, "SP", today.AddDate(0, 0, 60), domain.Plates{Tractor: strPtr("ABC1234")}))
		c, err := v.FindBlockingConflicts(context.Background(), "SP", []string{"ABC1234"})
		require.NoError(t, err)
		assert.Nil(t, c)
		assert.Empty(t, rec.blocked)
	})

	t.Run("partial day rounds up", func(t *testing.T) {
		v, _ := newValidator(t, activeEntry(1, "SP", today.AddDate(0, 0, 60).Add(time.Hour), domain.Plates{Tractor: strPtr("ABC1234")}))
		c, err := v.FindBlockingConflicts(context.Background(), "SP", []string{"ABC1234"})
		require.NoError(t, err)
		require.NotNil(t, c)
		assert.Equal(t, 61, c.DaysRemaining)
	})
}

func TestFindBlockingConflictsPlateOverlap(t *testing.T) {
	t.Run("tractor plate blocks", func(t *testing.T) {
		v, _ := newValidator(t, activeEntry(1, "SP", today.AddDate(0, 0, 200), domain.Plates{Tractor: strPtr("ABC1234")}))
		c, err := v.FindBlockingConflicts(context.Background(), "SP", []string{"ABC1234", "XYZ9999"})
		require.NoError(t, err)
		require.NotNil(t, c)
		assert.Equal(t, []string{"ABC1234"}, c.OverlappingPlates)
	})

	t.Run("dolly only match does not block", func(t *testing.T) {
		v, _ := newValidator(t, activeEntry(1, "SP", today.AddDate(0, 0, 200), domain.Plates{Tractor: strPtr("QQQ0000"), Dolly: strPtr("ABC1234")}))
		c, err := v.FindBlockingConflicts(context.Background(), "SP", []string{"ABC1234", "XYZ9999"})
		require.NoError(t, err)
		assert.Nil(t, c)
	})

	t.Run("plates are normalized", func(t *testing.T) {
		v, _ := newValidator(t, activeEntry(1, "SP", today.AddDate(0, 0, 200), domain.Plates{SecondTrailer: strPtr("ABC1234")}))
		c, err := v.FindBlockingConflicts(context.Background(), "SP", []string{"abc-1234"})
		require.NoError(t, err)
		require.NotNil(t, c)
	})

	t.Run("other state does not block", func(t *testing.T) {
		v, _ := newValidator(t, activeEntry(1, "MG", today.AddDate(0, 0, 200), domain.Plates{Tractor: strPtr("ABC1234")}))
		c, err := v.FindBlockingConflicts(context.Background(), "SP", []string{"ABC1234"})
		require.NoError(t, err)
		assert.Nil(t, c)
	})
}

func TestFindBlockingConflictsPicksLatestValidity(t *testing.T) {
	v, _ := newValidator(t,
		activeEntry(1, "SP", today.AddDate(0, 0, 30), domain.Plates{Tractor: strPtr("ABC1234")}),
		activeEntry(2, "SP", today.AddDate(0, 0, 300), domain.Plates{FirstTrailer: strPtr("ABC1234")}),
	)
	c, err := v.FindBlockingConflicts(context.Background(), "SP", []string{"ABC1234"})
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, int64(2), c.RequestID)
	assert.Equal(t, 300, c.DaysRemaining)
}

func TestFindBlockingConflictsIgnoresInactive(t *testing.T) {
	expired := activeEntry(1, "SP", today.AddDate(0, 0, 200), domain.Plates{Tractor: strPtr("ABC1234")})
	expired.Status = domain.StatusCanceled
	lapsed := activeEntry(2, "SP", today.AddDate(0, 0, -1), domain.Plates{Tractor: strPtr("ABC1234")})
	v, _ := newValidator(t, expired, lapsed)

	c, err := v.FindBlockingConflicts(context.Background(), "SP", []string{"ABC1234"})
	require.NoError(t, err)
	assert.Nil(t, c)
}

func TestCheckExisting(t *testing.T) {
	t.Run("renewal inside window", func(t *testing.T) {
		v, _ := newValidator(t, activeEntry(1, "RS", today.AddDate(0, 0, 10), domain.Plates{Tractor: strPtr("X1")}))
		conflicts, err := v.CheckExisting(context.Background(), []string{"RS"}, []string{"X1"})
		require.NoError(t, err)
		assert.Empty(t, conflicts)
	})

	t.Run("aggregates per state", func(t *testing.T) {
		v, _ := newValidator(t,
			activeEntry(1, "SP", today.AddDate(0, 0, 100), domain.Plates{Tractor: strPtr("ABC1234")}),
			activeEntry(2, "MG", today.AddDate(0, 0, 100), domain.Plates{FirstTrailer: strPtr("DEF5678")}),
			activeEntry(3, "PR", today.AddDate(0, 0, 20), domain.Plates{Tractor: strPtr("ABC1234")}),
		)
		conflicts, err := v.CheckExisting(context.Background(), []string{"SP", "MG", "PR", "SP"}, []string{"ABC1234", "DEF5678"})
		require.NoError(t, err)
		require.Len(t, conflicts, 2)
		assert.Equal(t, "SP", conflicts[0].State)
		assert.Equal(t, "MG", conflicts[1].State)
	})
}

func TestFindBlockingConflictsPropagatesRepositoryError(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := ledgermocks.NewMockRepository(ctrl)
	repo.EXPECT().FindActiveByPlates(gomock.Any(), "SP", []string{"ABC1234"}, today).Return(nil, assert.AnError)

	v := NewConflictValidator(repo, nil, nil, zerolog.Nop()).WithClock(func() time.Time { return today })
	_, err := v.FindBlockingConflicts(context.Background(), "SP", []string{"ABC1234"})
	assert.ErrorIs(t, err, assert.AnError)
}

func TestFindBlockingConflictsWithoutPlates(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := ledgermocks.NewMockRepository(ctrl)
	v := NewConflictValidator(repo, nil, nil, zerolog.Nop())
	c, err := v.FindBlockingConflicts(context.Background(), "SP", []string{"", " - "})
	require.NoError(t, err)
	assert.Nil(t, c)
}
