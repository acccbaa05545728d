package transition

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/aet-hub/aet-hub/internal/apperr"
	historyapp "github.com/aet-hub/aet-hub/internal/application/history"
	ledgerapp "github.com/aet-hub/aet-hub/internal/application/ledger"
	"github.com/aet-hub/aet-hub/internal/domain/ledger"
	ledgermocks "github.com/aet-hub/aet-hub/internal/domain/ledger/mocks"
	"github.com/aet-hub/aet-hub/internal/domain/license"
	"github.com/aet-hub/aet-hub/internal/domain/notification"
	notificationmocks "github.com/aet-hub/aet-hub/internal/domain/notification/mocks"
	"github.com/aet-hub/aet-hub/internal/domain/user"
	"github.com/aet-hub/aet-hub/internal/infrastructure/memory"
	"github.com/aet-hub/aet-hub/internal/infrastructure/storage"
)

var staff = user.Actor{UserID: uuid.New(), Username: "ops", Role: user.RoleOperational}

type recorder struct {
	mu           sync.Mutex
	transitions  map[string]int
	syncFailures map[string]int
}

func newRecorder() *recorder {
	return &recorder{transitions: map[string]int{}, syncFailures: map[string]int{}}
}

func (r *recorder) IncTransition(state, status string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transitions[state+":"+status]++
}

func (r *recorder) IncSyncFailure(state string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.syncFailures[state]++
}

type harness struct {
	store   *memory.Store
	svc     *Service
	metrics *recorder
}

type option func(*Params)

func withLedger(repo ledger.Repository, vehicles *memory.VehicleRepository) option {
	return func(p *Params) {
		p.Ledger = ledgerapp.NewSyncer(repo, vehicles, zerolog.Nop())
	}
}

func withPublisher(pub notification.Publisher) option {
	return func(p *Params) { p.Publisher = pub }
}

func withStorage(st storage.Store) option {
	return func(p *Params) { p.Storage = st }
}

func newHarness(t *testing.T, opts ...option) *harness {
	t.Helper()
	store := memory.NewStore()
	rec := newRecorder()
	params := Params{
		Licenses:             store.Licenses(),
		Tx:                   store.TxManager(),
		History:              historyapp.NewService(store.History(), zerolog.Nop(), nil),
		Ledger:               ledgerapp.NewSyncer(store.Ledger(), store.Vehicles(), zerolog.Nop()),
		Metrics:              rec,
		NumberOptionalStates: []string{"dnit"},
		Logger:               zerolog.Nop(),
	}
	for _, o := range opts {
		o(&params)
	}
	return &harness{store: store, svc: NewService(params), metrics: rec}
}

func (h *harness) submitted(t *testing.T, number string, states ...string) *license.Request {
	t.Helper()
	now := time.Now().UTC()
	req := &license.Request{
		RequestNumber: number,
		OwnerUserID:   uuid.New(),
		TransporterID: 1,
		LicenseType:   "bitrem_9_eixos",
		MainPlate:     "ABC1D23",
		States:        states,
		Status:        license.StatusPendingRegistration,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	req.InitStateStatuses()
	require.NoError(t, h.store.Licenses().Create(context.Background(), req))
	return req
}

func (h *harness) move(t *testing.T, id int64, state string, statuses ...license.Status) *license.Request {
	t.Helper()
	var req *license.Request
	var err error
	for _, st := range statuses {
		req, err = h.svc.Transition(context.Background(), staff, id, state, st.String(), Options{})
		require.NoError(t, err, "moving %s to %s", state, st)
	}
	return req
}

func (h *harness) toPendingApproval(t *testing.T, id int64, state, number string) {
	t.Helper()
	ctx := context.Background()
	h.move(t, id, state, license.StatusRegistrationInProgress)
	_, err := h.svc.Transition(ctx, staff, id, state, license.StatusUnderReview.String(), Options{AETNumber: &number})
	require.NoError(t, err)
	h.move(t, id, state, license.StatusPendingApproval)
}

func approval(validUntil time.Time) Options {
	issued := time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)
	return Options{ValidUntil: &validUntil, IssuedAt: &issued}
}

func TestTransitionApprovesAndSyncsLedger(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	req := h.submitted(t, "AET-2025-00001", "SP", "MG")

	h.toPendingApproval(t, req.ID, "SP", "SP-555")
	validUntil := time.Now().UTC().AddDate(1, 0, 0)
	updated, err := h.svc.Transition(ctx, staff, req.ID, "sp", "approved", approval(validUntil))
	require.NoError(t, err)

	rec := updated.StateStatus("SP")
	assert.Equal(t, license.StatusApproved, rec.Status)
	require.NotNil(t, rec.ValidUntil)
	assert.Equal(t, license.FormatDate(validUntil), license.FormatDate(*rec.ValidUntil))
	assert.Equal(t, license.StatusPendingRegistration, updated.StateStatus("MG").Status)
	assert.Equal(t, license.StatusPendingRegistration, updated.Status)

	entry, err := h.store.Ledger().Get(ctx, req.ID, "SP")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, "SP-555", *entry.AETNumber)
	assert.Equal(t, ledger.StatusActive, entry.Status)
	assert.Equal(t, "ABC1D23", *entry.Plates.Tractor)

	entries, err := h.store.History().ListByLicense(ctx, req.ID, nil)
	require.NoError(t, err)
	assert.Len(t, entries, 4)
	last := entries[len(entries)-1]
	assert.Equal(t, license.StatusPendingApproval, last.OldStatus)
	assert.Equal(t, license.StatusApproved, last.NewStatus)
	assert.Equal(t, "user:ops", last.Actor)
	assert.Equal(t, 1, h.metrics.transitions["SP:approved"])
}

func TestAggregateBecomesApprovedWhenEveryStateIs(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	req := h.submitted(t, "AET-2025-00002", "SP", "MG")
	validUntil := time.Now().UTC().AddDate(0, 6, 0)

	h.toPendingApproval(t, req.ID, "SP", "SP-1")
	_, err := h.svc.Transition(ctx, staff, req.ID, "SP", "approved", approval(validUntil))
	require.NoError(t, err)
	h.toPendingApproval(t, req.ID, "MG", "MG-1")
	updated, err := h.svc.Transition(ctx, staff, req.ID, "MG", "approved", approval(validUntil))
	require.NoError(t, err)

	assert.Equal(t, license.StatusApproved, updated.Status)
}

func TestDuplicatePermitNumberAcrossRequests(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	a := h.submitted(t, "AET-2025-00010", "SP")
	b := h.submitted(t, "AET-2025-00011", "MG")

	h.move(t, a.ID, "SP", license.StatusRegistrationInProgress)
	number := "555"
	_, err := h.svc.Transition(ctx, staff, a.ID, "SP", "under_review", Options{AETNumber: &number})
	require.NoError(t, err)

	h.move(t, b.ID, "MG", license.StatusRegistrationInProgress)
	_, err = h.svc.Transition(ctx, staff, b.ID, "MG", "under_review", Options{AETNumber: &number})
	require.Error(t, err)
	assert.True(t, apperr.HasCode(err, apperr.CodeDuplicatePermit))
	details, ok := apperr.As(err).Details().(map[string]string)
	require.True(t, ok)
	assert.Equal(t, "AET-2025-00010", details["requestNumber"])
	assert.Equal(t, "SP", details["state"])

	current, err := h.store.Licenses().GetByID(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, license.StatusRegistrationInProgress, current.StateStatus("MG").Status)
	assert.Empty(t, current.StateAETNumbers)
}

func TestDuplicatePermitNumberWithinRequest(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	req := h.submitted(t, "AET-2025-00020", "SP", "PR")
	number := "777"

	h.move(t, req.ID, "SP", license.StatusRegistrationInProgress)
	_, err := h.svc.Transition(ctx, staff, req.ID, "SP", "under_review", Options{AETNumber: &number})
	require.NoError(t, err)

	h.move(t, req.ID, "PR", license.StatusRegistrationInProgress)
	_, err = h.svc.Transition(ctx, staff, req.ID, "PR", "under_review", Options{AETNumber: &number})
	assert.True(t, apperr.HasCode(err, apperr.CodeDuplicatePermit))

	// Re-applying the same number to the state that holds it is not a duplicate.
	_, err = h.svc.Transition(ctx, staff, req.ID, "SP", "under_review", Options{AETNumber: &number})
	assert.NoError(t, err)
}

func TestPermitNumberRequirement(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	req := h.submitted(t, "AET-2025-00030", "SP", "DNIT")

	h.move(t, req.ID, "SP", license.StatusRegistrationInProgress)
	_, err := h.svc.Transition(ctx, staff, req.ID, "SP", "under_review", Options{})
	assert.True(t, apperr.HasCode(err, apperr.CodeValidation))

	h.move(t, req.ID, "DNIT", license.StatusRegistrationInProgress, license.StatusUnderReview)
}

func TestApprovalRequiresDates(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	req := h.submitted(t, "AET-2025-00040", "SP")
	h.toPendingApproval(t, req.ID, "SP", "SP-9")
	before, err := h.store.Licenses().GetByID(ctx, req.ID)
	require.NoError(t, err)

	validUntil := time.Now().UTC().AddDate(1, 0, 0)
	_, err = h.svc.Transition(ctx, staff, req.ID, "SP", "approved", Options{ValidUntil: &validUntil})
	assert.True(t, apperr.HasCode(err, apperr.CodeValidation))

	early := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	_, err = h.svc.Transition(ctx, staff, req.ID, "SP", "approved", approval(early))
	assert.True(t, apperr.HasCode(err, apperr.CodeValidation))

	after, err := h.store.Licenses().GetByID(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, before.StateStatuses, after.StateStatuses)
	assert.Equal(t, before.UpdatedAt, after.UpdatedAt)
}

func TestInvalidStateAndTransition(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	req := h.submitted(t, "AET-2025-00050", "SP")

	_, err := h.svc.Transition(ctx, staff, req.ID, "RJ", "registration_in_progress", Options{})
	assert.True(t, apperr.HasCode(err, apperr.CodeInvalidState))

	_, err = h.svc.Transition(ctx, staff, req.ID, "SP", "approved", approval(time.Now().AddDate(1, 0, 0)))
	assert.True(t, apperr.HasCode(err, apperr.CodeInvalidTransition))

	_, err = h.svc.Transition(ctx, staff, req.ID, "SP", "archived", Options{})
	assert.True(t, apperr.HasCode(err, apperr.CodeValidation))

	_, err = h.svc.Transition(ctx, staff, 9999, "SP", "canceled", Options{})
	assert.True(t, apperr.HasCode(err, apperr.CodeNotFound))

	carrier := user.Actor{UserID: uuid.New(), Username: "carrier", Role: user.RoleUser}
	_, err = h.svc.Transition(ctx, carrier, req.ID, "SP", "canceled", Options{})
	assert.True(t, apperr.HasCode(err, apperr.CodeForbidden))

	h.move(t, req.ID, "SP", license.StatusCanceled)
	_, err = h.svc.Transition(ctx, staff, req.ID, "SP", "registration_in_progress", Options{})
	assert.True(t, apperr.HasCode(err, apperr.CodeInvalidTransition))
}

func TestLedgerSyncFailureIsNotFatal(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	repo := ledgermocks.NewMockRepository(ctrl)
	repo.EXPECT().Upsert(gomock.Any(), gomock.Any()).Return(errors.New("connection reset"))

	store := memory.NewStore()
	h := newHarness(t, withLedger(repo, store.Vehicles()))
	req := h.submitted(t, "AET-2025-00060", "SP")
	h.toPendingApproval(t, req.ID, "SP", "SP-60")

	updated, err := h.svc.Transition(ctx, staff, req.ID, "SP", "approved", approval(time.Now().AddDate(1, 0, 0)))
	require.NoError(t, err)
	assert.Equal(t, license.StatusApproved, updated.StateStatus("SP").Status)
	assert.Equal(t, 1, h.metrics.syncFailures["SP"])

	stored, err := h.store.Licenses().GetByID(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, license.StatusApproved, stored.StateStatus("SP").Status)
}

func TestTransitionPublishesEvents(t *testing.T) {
	ctrl := gomock.NewController(t)
	pub := notificationmocks.NewMockPublisher(ctrl)
	h := newHarness(t, withPublisher(pub))
	req := h.submitted(t, "AET-2025-00070", "SP")

	gomock.InOrder(
		pub.EXPECT().Publish(notification.EventStatusUpdate, gomock.Any()).Do(func(_ notification.EventType, data any) {
			update, ok := data.(notification.StatusUpdate)
			require.True(t, ok)
			assert.Equal(t, req.ID, update.LicenseID)
			assert.Equal(t, "SP", update.State)
			assert.Equal(t, "registration_in_progress", update.Status)
		}),
		pub.EXPECT().Publish(notification.EventDashboardUpdate, gomock.Any()),
	)

	h.move(t, req.ID, "SP", license.StatusRegistrationInProgress)
}

func TestTransitionStoresFileAndTaxID(t *testing.T) {
	ctx := context.Background()
	local, err := storage.NewLocalStore(t.TempDir(), "http://files.local")
	require.NoError(t, err)
	h := newHarness(t, withStorage(local))
	req := h.submitted(t, "AET-2025-00080", "SP")
	h.move(t, req.ID, "SP", license.StatusRegistrationInProgress)

	taxID := "11.222.333/0001-81"
	updated, err := h.svc.Transition(ctx, staff, req.ID, "SP", "rejected", Options{
		File:          &File{Name: "permit.pdf", ContentType: "application/pdf", Data: []byte("%PDF-1.4")},
		SelectedTaxID: &taxID,
	})
	require.NoError(t, err)

	url := license.DecodeValues(updated.StateFiles)["SP"]
	assert.True(t, strings.HasPrefix(url, "http://files.local/uploads/licenses/"+strconv.FormatInt(req.ID, 10)+"/sp/"), url)
	selected, ok := updated.SelectedTaxID("SP")
	assert.True(t, ok)
	assert.Equal(t, "11222333000181", selected)
}

func TestTransitionRejectsBadFileWithoutMutation(t *testing.T) {
	ctx := context.Background()
	local, err := storage.NewLocalStore(t.TempDir(), "http://files.local")
	require.NoError(t, err)
	h := newHarness(t, withStorage(local))
	req := h.submitted(t, "AET-2025-00090", "SP")

	_, err = h.svc.Transition(ctx, staff, req.ID, "SP", "registration_in_progress", Options{
		File: &File{Name: "permit.exe", Data: []byte("MZ")},
	})
	assert.True(t, apperr.HasCode(err, apperr.CodeValidation))

	stored, err := h.store.Licenses().GetByID(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, license.StatusPendingRegistration, stored.StateStatus("SP").Status)
}

func TestConcurrentTransitionsOnOneRequestKeepEveryState(t *testing.T) {
	ctx := context.Background()
	local, err := storage.NewLocalStore(t.TempDir(), "http://files.local")
	require.NoError(t, err)
	h := newHarness(t, withStorage(local))
	states := []string{"SP", "MG", "PR", "RJ", "BA", "GO", "SC", "RS"}
	req := h.submitted(t, "AET-2025-00100", states...)

	var wg sync.WaitGroup
	errs := make(chan error, len(states)*2)
	for _, state := range states {
		wg.Add(1)
		go func(state string) {
			defer wg.Done()
			_, err := h.svc.Transition(ctx, staff, req.ID, state, "registration_in_progress", Options{
				File: &File{Name: "form.pdf", ContentType: "application/pdf", Data: []byte("%PDF-1.4")},
			})
			errs <- err
			number := "N-" + state
			_, err = h.svc.Transition(ctx, staff, req.ID, state, "under_review", Options{AETNumber: &number})
			errs <- err
		}(state)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	stored, err := h.store.Licenses().GetByID(ctx, req.ID)
	require.NoError(t, err)
	assert.Len(t, stored.StateStatuses, len(states))
	assert.Len(t, stored.StateFiles, len(states))
	assert.Len(t, stored.StateAETNumbers, len(states))
	files := license.DecodeValues(stored.StateFiles)
	for _, state := range states {
		assert.Equal(t, license.StatusUnderReview, stored.StateStatus(state).Status, state)
		number, ok := stored.AETNumber(state)
		assert.True(t, ok, state)
		assert.Equal(t, "N-"+state, number)
		assert.NotEmpty(t, files[state], state)
	}

	entries, err := h.store.History().ListByLicense(ctx, req.ID, nil)
	require.NoError(t, err)
	assert.Len(t, entries, len(states)*2)
}

func TestCancelIgnoresStoredDuplicateNumber(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	a := h.submitted(t, "AET-2025-00110", "SP")
	b := h.submitted(t, "AET-2025-00111", "MG")

	// Rows written before uniqueness was enforced can share a number.
	a.StateAETNumbers = []string{license.EncodeValue("SP", "LEG-1")}
	b.StateAETNumbers = []string{license.EncodeValue("MG", "LEG-1")}
	require.NoError(t, h.store.Licenses().Update(ctx, a))
	require.NoError(t, h.store.Licenses().Update(ctx, b))

	h.move(t, b.ID, "MG", license.StatusRegistrationInProgress, license.StatusCanceled)

	h.move(t, a.ID, "SP", license.StatusRegistrationInProgress)
	_, err := h.svc.Transition(ctx, staff, a.ID, "SP", "under_review", Options{})
	assert.True(t, apperr.HasCode(err, apperr.CodeDuplicatePermit))
}
