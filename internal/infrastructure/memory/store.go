// Package memory provides in-process implementations of every repository interface. It
// backs the "memory" database driver and the scenario tests.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/aet-hub/aet-hub/internal/domain/history"
	"github.com/aet-hub/aet-hub/internal/domain/ledger"
	"github.com/aet-hub/aet-hub/internal/domain/license"
	"github.com/aet-hub/aet-hub/internal/domain/session"
	"github.com/aet-hub/aet-hub/internal/domain/transporter"
	"github.com/aet-hub/aet-hub/internal/domain/user"
	"github.com/aet-hub/aet-hub/internal/domain/vehicle"
)

type ledgerKey struct {
	requestID int64
	state     string
}

type state struct {
	users        map[uuid.UUID]user.User
	sessions     map[uuid.UUID]session.Session
	transporters map[int64]transporter.Transporter
	vehicles     map[int64]vehicle.Vehicle
	licenses     map[int64]license.Request
	ledger       map[ledgerKey]ledger.Entry
	history      []history.Entry

	nextID        int64
	requestNumber int64
}

func newState() state {
	return state{
		users:        map[uuid.UUID]user.User{},
		sessions:     map[uuid.UUID]session.Session{},
		transporters: map[int64]transporter.Transporter{},
		vehicles:     map[int64]vehicle.Vehicle{},
		licenses:     map[int64]license.Request{},
		ledger:       map[ledgerKey]ledger.Entry{},
	}
}

// Store owns the shared state. Repositories returned by its accessors are views over it.
type Store struct {
	mu    sync.RWMutex
	txMu  sync.Mutex
	state state
}

func NewStore() *Store {
	return &Store{state: newState()}
}

func (s *Store) id() int64 {
	s.state.nextID++
	return s.state.nextID
}

func (s *Store) Users() *UserRepository               { return &UserRepository{s: s} }
func (s *Store) Sessions() *SessionRepository         { return &SessionRepository{s: s} }
func (s *Store) Transporters() *TransporterRepository { return &TransporterRepository{s: s} }
func (s *Store) Vehicles() *VehicleRepository         { return &VehicleRepository{s: s} }
func (s *Store) Licenses() *LicenseRepository         { return &LicenseRepository{s: s} }
func (s *Store) Ledger() *LedgerRepository            { return &LedgerRepository{s: s} }
func (s *Store) History() *HistoryRepository          { return &HistoryRepository{s: s} }
func (s *Store) TxManager() *TxManager                { return &TxManager{s: s} }

type txKey struct{}

// txJournal records how to revert each write made inside one transaction.
type txJournal struct {
	undo []func(st *state)
}

func journalFrom(ctx context.Context) *txJournal {
	j, _ := ctx.Value(txKey{}).(*txJournal)
	return j
}

// remember records the current value under key so a rollback can put it back. It must be
// called with s.mu held, before the write.
func remember[K comparable, V any](ctx context.Context, st *state, table func(*state) map[K]V, key K) {
	j := journalFrom(ctx)
	if j == nil {
		return
	}
	prev, existed := table(st)[key]
	j.undo = append(j.undo, func(st *state) {
		if existed {
			table(st)[key] = prev
		} else {
			delete(table(st), key)
		}
	})
}

// rememberHistory records entries about to leave the history log.
func rememberHistory(ctx context.Context, removed []history.Entry) {
	j := journalFrom(ctx)
	if j == nil || len(removed) == 0 {
		return
	}
	j.undo = append(j.undo, func(st *state) {
		st.history = append(st.history, removed...)
		sort.SliceStable(st.history, func(a, b int) bool { return st.history[a].ID < st.history[b].ID })
	})
}

// rememberAppend records a history entry appended inside a transaction.
func rememberAppend(ctx context.Context, id int64) {
	j := journalFrom(ctx)
	if j == nil {
		return
	}
	j.undo = append(j.undo, func(st *state) {
		for i, e := range st.history {
			if e.ID == id {
				st.history = append(st.history[:i:i], st.history[i+1:]...)
				return
			}
		}
	})
}

func userRows(st *state) map[uuid.UUID]user.User                  { return st.users }
func sessionRows(st *state) map[uuid.UUID]session.Session         { return st.sessions }
func transporterRows(st *state) map[int64]transporter.Transporter { return st.transporters }
func vehicleRows(st *state) map[int64]vehicle.Vehicle             { return st.vehicles }
func licenseRows(st *state) map[int64]license.Request             { return st.licenses }
func ledgerRows(st *state) map[ledgerKey]ledger.Entry             { return st.ledger }

// TxManager serializes transactions over the store. A failed transaction reverts only its
// own writes; rows written outside it are left alone. Identifiers and request numbers are
// not reused after a rollback.
type TxManager struct {
	s *Store
}

func (m *TxManager) WithinTx(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if journalFrom(ctx) != nil {
		return fn(ctx)
	}
	m.s.txMu.Lock()
	defer m.s.txMu.Unlock()

	j := &txJournal{}
	defer func() {
		if p := recover(); p != nil {
			m.rollback(j)
			panic(p)
		}
		if err != nil {
			m.rollback(j)
		}
	}()
	return fn(context.WithValue(ctx, txKey{}, j))
}

func (m *TxManager) rollback(j *txJournal) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for i := len(j.undo) - 1; i >= 0; i-- {
		j.undo[i](&m.s.state)
	}
}

func paginate[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

func cloneStrings(values []string) []string {
	if values == nil {
		return nil
	}
	return append([]string(nil), values...)
}

func cloneLicense(req *license.Request) *license.Request {
	out := *req
	out.AdditionalPlates = cloneStrings(req.AdditionalPlates)
	out.States = cloneStrings(req.States)
	out.StateStatuses = cloneStrings(req.StateStatuses)
	out.StateFiles = cloneStrings(req.StateFiles)
	out.StateAETNumbers = cloneStrings(req.StateAETNumbers)
	out.StateCnpjs = cloneStrings(req.StateCnpjs)
	return &out
}
