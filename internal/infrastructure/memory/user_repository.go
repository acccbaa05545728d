package memory

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/aet-hub/aet-hub/internal/domain/session"
	"github.com/aet-hub/aet-hub/internal/domain/user"
)

var errDuplicateUsername = errors.New("username already exists")

// UserRepository implements user.Repository.
type UserRepository struct {
	s *Store
}

func (r *UserRepository) Create(ctx context.Context, u *user.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.state.users {
		if existing.Username == u.Username {
			return errDuplicateUsername
		}
	}
	u.ID = r.s.id()
	remember(ctx, &r.s.state, userRows, u.UserID)
	r.s.state.users[u.UserID] = *u
	return nil
}

func (r *UserRepository) Update(ctx context.Context, u *user.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.state.users[u.UserID]; ok {
		remember(ctx, &r.s.state, userRows, u.UserID)
		r.s.state.users[u.UserID] = *u
	}
	return nil
}

func (r *UserRepository) GetByID(_ context.Context, userID uuid.UUID) (*user.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	u, ok := r.s.state.users[userID]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (r *UserRepository) GetByUsername(_ context.Context, username string) (*user.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, u := range r.s.state.users {
		if u.Username == username {
			u := u
			return &u, nil
		}
	}
	return nil, nil
}

func (r *UserRepository) List(_ context.Context, filter user.Filter, limit, offset int) ([]*user.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []*user.User
	for _, u := range r.s.state.users {
		if filter.Role != nil && u.Role != *filter.Role {
			continue
		}
		if filter.Status != nil && u.Status != *filter.Status {
			continue
		}
		if filter.Username != nil && u.Username != *filter.Username {
			continue
		}
		u := u
		out = append(out, &u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return paginate(out, limit, offset), nil
}

func (r *UserRepository) Count(_ context.Context) (int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return len(r.s.state.users), nil
}

// SessionRepository implements session.Repository.
type SessionRepository struct {
	s *Store
}

func (r *SessionRepository) Create(ctx context.Context, sess *session.Session) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sess.ID = r.s.id()
	remember(ctx, &r.s.state, sessionRows, sess.SessionID)
	r.s.state.sessions[sess.SessionID] = *sess
	return nil
}

func (r *SessionRepository) GetByTokenHash(_ context.Context, tokenHash string) (*session.Session, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, sess := range r.s.state.sessions {
		if sess.TokenHash == tokenHash {
			sess := sess
			return &sess, nil
		}
	}
	return nil, nil
}

func (r *SessionRepository) DeleteByID(ctx context.Context, sessionID uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	remember(ctx, &r.s.state, sessionRows, sessionID)
	delete(r.s.state.sessions, sessionID)
	return nil
}

func (r *SessionRepository) DeleteByTokenHash(ctx context.Context, tokenHash string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for id, sess := range r.s.state.sessions {
		if sess.TokenHash == tokenHash {
			remember(ctx, &r.s.state, sessionRows, id)
			delete(r.s.state.sessions, id)
		}
	}
	return nil
}

func (r *SessionRepository) UpdateLastSeen(ctx context.Context, sessionID uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if sess, ok := r.s.state.sessions[sessionID]; ok {
		remember(ctx, &r.s.state, sessionRows, sessionID)
		now := time.Now().UTC()
		sess.LastSeenAt = &now
		r.s.state.sessions[sessionID] = sess
	}
	return nil
}

func (r *SessionRepository) DeleteExpired(ctx context.Context) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	now := time.Now().UTC()
	n := 0
	for id, sess := range r.s.state.sessions {
		if sess.IsExpired(now) {
			remember(ctx, &r.s.state, sessionRows, id)
			delete(r.s.state.sessions, id)
			n++
		}
	}
	return n, nil
}
