package acumatica

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/finvista/acusync/internal/common"
	"github.com/finvista/acusync/internal/logging"
	"github.com/finvista/acusync/internal/models"
	"github.com/finvista/acusync/internal/repository/sessions"
	"github.com/finvista/acusync/internal/retryx"
)

// loginAPI is the slice of the client the session manager needs.
type loginAPI interface {
	Login(ctx context.Context, creds Credentials) (string, error)
	Logout(ctx context.Context, cookie string) error
}

// SessionManager owns the shared remote-session cache. It is explicit,
// injected state: acquisition and invalidation are atomic under one mutex, so
// two workers racing to refresh an expired session resolve to exactly one
// login call, with the loser reusing the winner's result.
type SessionManager struct {
	mu sync.Mutex

	api      loginAPI
	repo     sessions.Repository
	creds    Credentials
	lifetime time.Duration
	margin   time.Duration
	retry    retryx.Policy
	logger   logging.Logger

	current *models.Session
}

// NewSessionManager builds a session manager. lifetime is the server-side
// session duration; margin shifts expiry client-side so an in-flight request
// never races server expiry.
func NewSessionManager(api loginAPI, repo sessions.Repository, creds Credentials,
	lifetime, margin time.Duration, retry retryx.Policy, logger logging.Logger) *SessionManager {
	return &SessionManager{
		api:      api,
		repo:     repo,
		creds:    creds,
		lifetime: lifetime,
		margin:   margin,
		retry:    retry,
		logger:   logger,
	}
}

// Acquire returns a cached, non-expired session, or logs in for a fresh one.
// With forceNew it first invalidates every cached session (best-effort remote
// logout for each) — the recovery path for a session the remote silently
// revoked mid-sync.
func (m *SessionManager) Acquire(ctx context.Context, forceNew bool) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	if !forceNew {
		if m.current != nil && m.current.Valid && !m.current.Expired(now, m.margin) {
			return m.current, nil
		}
		// Survive restarts: pick up the last persisted session if still usable.
		if s, err := m.repo.LatestValid(ctx); err == nil && !s.Expired(now, m.margin) {
			m.current = s
			return s, nil
		} else if err != nil && !errors.Is(err, common.ErrorNotFound) {
			m.logger.Warn(ctx, "session cache lookup failed", "error", err)
		}
	} else {
		m.invalidateAllLocked(ctx)
	}

	var cookie string
	err := m.retry.Do(ctx, func() error {
		var err error
		cookie, err = m.api.Login(ctx, m.creds)
		return err
	})
	if err != nil {
		if errors.Is(err, common.ErrLoginLimitReached) {
			m.logger.Error(ctx, "remote login limit reached; free a seat in Acumatica or wait for idle sessions to expire")
		}
		return nil, err
	}

	s := &models.Session{
		ID:        uuid.NewString(),
		Cookie:    cookie,
		CreatedAt: now,
		ExpiresAt: now.Add(m.lifetime),
		Valid:     true,
	}
	if err := m.repo.Insert(ctx, s); err != nil {
		m.logger.Warn(ctx, "persisting session failed", "error", err)
	} else if err := m.repo.InvalidateOthers(ctx, s.ID); err != nil {
		m.logger.Warn(ctx, "invalidating superseded sessions failed", "error", err)
	}

	m.current = s
	m.logger.Info(ctx, "acquired remote session", "session_id", s.ID, "expires_at", s.ExpiresAt)
	return s, nil
}

// Invalidate marks the session unusable, attempting a best-effort remote
// logout first.
func (m *SessionManager) Invalidate(ctx context.Context, s *models.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.api.Logout(ctx, s.Cookie); err != nil {
		m.logger.Warn(ctx, "remote logout failed", "session_id", s.ID, "error", err)
	}
	s.Valid = false
	if m.current != nil && m.current.ID == s.ID {
		m.current = nil
	}
	return m.repo.Invalidate(ctx, s.ID)
}

func (m *SessionManager) invalidateAllLocked(ctx context.Context) {
	rows, err := m.repo.ListValid(ctx)
	if err != nil {
		m.logger.Warn(ctx, "listing cached sessions failed", "error", err)
	}
	for _, s := range rows {
		if err := m.api.Logout(ctx, s.Cookie); err != nil {
			m.logger.Warn(ctx, "remote logout failed", "session_id", s.ID, "error", err)
		}
		if err := m.repo.Invalidate(ctx, s.ID); err != nil {
			m.logger.Warn(ctx, "invalidating session failed", "session_id", s.ID, "error", err)
		}
	}
	m.current = nil
}
