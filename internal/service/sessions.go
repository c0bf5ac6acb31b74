package service

import (
	"context"
	"log/slog"
	"sync"

	"github.com/dukerupert/decks/internal/domain"
)

// LoginHook runs after a device's session becomes authenticated.
type LoginHook func(ctx context.Context, identity domain.Identity) error

// Sessions keeps one cart session per device in memory.
// Sessions are lost on restart; the device and account copies restore them.
type Sessions struct {
	mu       sync.Mutex
	sessions map[string]*CartSession
	cfg      CartSessionConfig
	onLogin  []LoginHook
	logger   *slog.Logger
}

// NewSessions creates an empty registry.
func NewSessions(cfg CartSessionConfig) *Sessions {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg.Logger = logger
	return &Sessions{
		sessions: make(map[string]*CartSession),
		cfg:      cfg,
		logger:   logger,
	}
}

// OnLogin registers a hook run when an anonymous device signs in.
func (r *Sessions) OnLogin(hook LoginHook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onLogin = append(r.onLogin, hook)
}

// Get returns the session for the identity's device. A new session is
// restored from the persisted copies. An authenticated identity whose session
// is not yet reconciled with the account is reconciled now, and retried on
// later requests if the account copy cannot be read. A session seen with a
// different account, or after logout, is replaced by a fresh one.
// Adjustments report lines clamped during reconciliation.
func (r *Sessions) Get(ctx context.Context, identity domain.Identity) (*CartSession, []Adjustment, error) {
	if identity.DeviceID == "" {
		return nil, nil, domain.Invalid("cart.session", "Device id is required")
	}

	r.mu.Lock()
	session, ok := r.sessions[identity.DeviceID]
	var login bool
	if ok {
		current := session.Identity()
		switch {
		case !current.Authenticated() && identity.Authenticated():
			login = true
		case current.Authenticated() && current.UserID != identity.UserID:
			session = NewCartSession(identity, r.cfg)
			r.sessions[identity.DeviceID] = session
		}
	} else {
		session = NewCartSession(identity, r.cfg)
		r.sessions[identity.DeviceID] = session
		login = identity.Authenticated()
	}
	hooks := r.onLogin
	r.mu.Unlock()

	adjustments := session.ensureRestored(ctx)

	if identity.Authenticated() && !session.Attached() {
		attached, err := session.AttachAccount(ctx, identity)
		if err != nil {
			r.logger.Warn("cart reconciliation failed, will retry on next request",
				"device_id", identity.DeviceID,
				"user_id", identity.UserID,
				"error", err,
			)
		}
		adjustments = append(adjustments, attached...)
	}

	if login {
		for _, hook := range hooks {
			if err := hook(ctx, identity); err != nil {
				r.logger.Warn("login hook failed", "device_id", identity.DeviceID, "user_id", identity.UserID, "error", err)
			}
		}
	}

	return session, adjustments, nil
}

// ResetCarts empties every copy of the cart belonging to identity: the
// in-memory session of its device, the device copy and the account copy.
func (r *Sessions) ResetCarts(ctx context.Context, identity domain.Identity) {
	r.mu.Lock()
	session, ok := r.sessions[identity.DeviceID]
	r.mu.Unlock()

	if ok && identity.DeviceID != "" {
		session.Clear(ctx)
		if session.Identity().UserID == identity.UserID {
			return
		}
	}

	if identity.DeviceID != "" {
		if err := r.cfg.Device.Clear(ctx, identity.DeviceID); err != nil {
			r.logger.Warn("failed to clear device cart", "device_id", identity.DeviceID, "error", err)
		}
	}
	if key := identity.AccountKey(); key != "" {
		if err := r.cfg.Account.Clear(ctx, key); err != nil {
			r.logger.Warn("failed to clear account cart", "user_id", identity.UserID, "error", err)
			recordSyncFailure("clear")
		}
	}
}

// Forget drops the in-memory session of a device.
func (r *Sessions) Forget(deviceID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, deviceID)
}

// Len returns the number of live sessions.
func (r *Sessions) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Wait blocks until every session's queued account writes have finished.
func (r *Sessions) Wait() {
	r.mu.Lock()
	sessions := make([]*CartSession, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.Unlock()

	for _, s := range sessions {
		s.Wait()
	}
}
