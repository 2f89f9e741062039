package escalation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-lms/odyssey-lms/internal/platform/cache"
	"github.com/odyssey-lms/odyssey-lms/internal/shared"
)

// AccountStore is the elevated account persistence port.
type AccountStore interface {
	FindElevatedAccount(ctx context.Context, userID string) (ElevatedAccount, error)
	RecordEscalation(ctx context.Context, userID string, at time.Time) error
	SetCredential(ctx context.Context, userID, hash, salt string) error
}

// RightsResolver resolves admin roles to access rights.
type RightsResolver interface {
	GetRights(ctx context.Context, roleNames []string) ([]string, error)
}

// Config configures a Manager.
type Config struct {
	TokenSecret    []byte
	Pepper         string
	DefaultTimeout time.Duration
	// Audit receives session lifecycle entries. Optional.
	Audit          shared.AuditRecorder
}

// Manager runs the escalation session lifecycle.
type Manager struct {
	accounts AccountStore
	rights   RightsResolver
	sessions sessionStore
	signer   tokenSigner
	pepper   string
	timeout  time.Duration
	audit    shared.AuditRecorder
	logger   *slog.Logger
	now      func() time.Time
	verify   func(credential, pepper, hash, salt string) (bool, error)
	decoy    func(credential, pepper string)
}

// NewManager constructs a Manager.
func NewManager(accounts AccountStore, rights RightsResolver, store cache.Store, cfg Config, logger *slog.Logger) (*Manager, error) {
	if len(cfg.TokenSecret) == 0 {
		return nil, errors.New("escalation: token secret required")
	}
	if store == nil {
		return nil, errors.New("escalation: session store required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		accounts: accounts,
		rights:   rights,
		sessions: sessionStore{store: store},
		pepper:   cfg.Pepper,
		timeout:  cfg.DefaultTimeout,
		audit:    cfg.Audit,
		logger:   logger.With(slog.String("component", "escalation")),
		now:      time.Now,
		verify:   VerifyCredential,
		decoy:    verifyDecoy,
	}
	m.signer = tokenSigner{secret: cfg.TokenSecret, now: m.clock}
	return m, nil
}

func (m *Manager) clock() time.Time {
	return m.now()
}

// Escalate opens an admin session for userID. Every rejection returns
// shared.ErrInvalidEscalationCredential regardless of its cause.
func (m *Manager) Escalate(ctx context.Context, userID, credential string) (Issued, error) {
	account, err := m.accounts.FindElevatedAccount(ctx, userID)
	if errors.Is(err, shared.ErrNotFound) {
		m.decoy(credential, m.pepper)
		return m.reject(userID, "no elevated account")
	}
	if err != nil {
		return Issued{}, fmt.Errorf("escalation: load account: %w", err)
	}
	if !account.IsActive {
		m.decoy(credential, m.pepper)
		return m.reject(userID, "elevated account inactive")
	}
	ok, err := m.verify(credential, m.pepper, account.CredentialHash, account.CredentialSalt)
	if err != nil {
		m.decoy(credential, m.pepper)
		m.logger.Warn("stored escalation credential unreadable", slog.String("user_id", userID), slog.Any("error", err))
		return m.reject(userID, "credential unreadable")
	}
	if !ok {
		return m.reject(userID, "credential mismatch")
	}
	if len(account.AdminRoles) == 0 {
		return m.reject(userID, "no admin roles")
	}
	rights, err := m.rights.GetRights(ctx, account.AdminRoles)
	if err != nil {
		return Issued{}, fmt.Errorf("escalation: resolve rights: %w", err)
	}
	if len(rights) == 0 {
		return m.reject(userID, "admin roles grant no rights")
	}

	now := m.now()
	sess := Session{
		UserID:    userID,
		Roles:     append([]string(nil), account.AdminRoles...),
		Rights:    rights,
		Timeout:   account.Timeout(m.timeout),
		IssuedAt:  now,
		ExpiresAt: now.Add(account.Timeout(m.timeout)),
	}
	issued, err := m.open(ctx, sess)
	if err != nil {
		return Issued{}, err
	}
	if err := m.accounts.RecordEscalation(ctx, userID, now); err != nil {
		m.logger.Warn("record escalation time", slog.String("user_id", userID), slog.Any("error", err))
	}
	m.logger.Info("admin session opened", slog.String("user_id", userID), slog.Any("roles", sess.Roles), slog.Time("expires_at", sess.ExpiresAt))
	m.record(ctx, shared.AuditEscalationOpened, userID, map[string]any{"roles": sess.Roles, "expires_at": sess.ExpiresAt})
	return issued, nil
}

func (m *Manager) reject(userID, cause string) (Issued, error) {
	m.logger.Info("escalation rejected", slog.String("user_id", userID), slog.String("cause", cause))
	return Issued{}, shared.ErrInvalidEscalationCredential
}

// open signs a fresh token id for sess and persists the session record.
func (m *Manager) open(ctx context.Context, sess Session) (Issued, error) {
	sess.TokenID = uuid.NewString()
	token, err := m.signer.issue(sess)
	if err != nil {
		return Issued{}, fmt.Errorf("escalation: sign token: %w", err)
	}
	if err := m.sessions.save(ctx, sess, sess.ExpiresAt.Sub(sess.IssuedAt)); err != nil {
		return Issued{}, fmt.Errorf("escalation: store session: %w", err)
	}
	return Issued{
		Token:     token,
		ExpiresAt: sess.ExpiresAt,
		Roles:     sess.Roles,
		Rights:    sess.Rights,
		Storage:   storageMemoryOnly,
	}, nil
}

// Deescalate closes the session of userID. Closing a missing session fails.
func (m *Manager) Deescalate(ctx context.Context, userID string) error {
	deleted, err := m.sessions.delete(ctx, userID)
	if err != nil {
		return fmt.Errorf("escalation: delete session: %w", err)
	}
	if !deleted {
		return shared.ErrNoActiveAdminSession
	}
	m.logger.Info("admin session closed", slog.String("user_id", userID))
	m.record(ctx, shared.AuditEscalationClosed, userID, nil)
	return nil
}

// record writes an audit entry. Failures are logged and never fail the operation.
func (m *Manager) record(ctx context.Context, action, userID string, meta map[string]any) {
	if m.audit == nil {
		return
	}
	err := m.audit.Record(ctx, shared.AuditLog{
		ActorID:  userID,
		Action:   action,
		Entity:   "user",
		EntityID: userID,
		Meta:     meta,
		At:       m.now(),
	})
	if err != nil {
		m.logger.Warn("write escalation audit", slog.String("action", action), slog.Any("error", err))
	}
}

// Session returns the active session of userID.
func (m *Manager) Session(ctx context.Context, userID string) (Session, error) {
	sess, ok, err := m.sessions.load(ctx, userID)
	if err != nil {
		return Session{}, fmt.Errorf("escalation: load session: %w", err)
	}
	// The store's TTL is not trusted on its own.
	if !ok || !sess.Active(m.now()) {
		return Session{}, shared.ErrNoActiveAdminSession
	}
	return sess, nil
}

// IsSessionActive reports whether userID holds an unexpired session.
func (m *Manager) IsSessionActive(ctx context.Context, userID string) (bool, error) {
	_, err := m.Session(ctx, userID)
	if errors.Is(err, shared.ErrNoActiveAdminSession) {
		return false, nil
	}
	return err == nil, err
}

// ValidateToken verifies raw and returns the live session it belongs to.
// Tokens of closed or replaced sessions are rejected before their expiry.
func (m *Manager) ValidateToken(ctx context.Context, raw string) (Session, error) {
	claims, err := m.signer.parse(raw)
	if err != nil {
		return Session{}, err
	}
	sess, err := m.Session(ctx, claims.Subject)
	if err != nil {
		return Session{}, err
	}
	if sess.TokenID != claims.ID {
		return Session{}, fmt.Errorf("%w: token superseded", ErrInvalidToken)
	}
	return sess, nil
}

// Refresh re-issues the token of the active session of userID and moves its
// expiry to now plus the session timeout. Unused time is not carried over.
func (m *Manager) Refresh(ctx context.Context, userID string) (Issued, error) {
	sess, err := m.Session(ctx, userID)
	if err != nil {
		return Issued{}, err
	}
	timeout := sess.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	now := m.now()
	sess.IssuedAt = now
	sess.ExpiresAt = now.Add(timeout)
	issued, err := m.open(ctx, sess)
	if err != nil {
		return Issued{}, err
	}
	m.logger.Info("admin session refreshed", slog.String("user_id", userID), slog.Time("expires_at", sess.ExpiresAt))
	m.record(ctx, shared.AuditEscalationRefreshed, userID, map[string]any{"expires_at": sess.ExpiresAt})
	return issued, nil
}

// SetCredential stores a new escalation credential for userID.
func (m *Manager) SetCredential(ctx context.Context, userID, credential string) error {
	if len(credential) < 12 {
		return errors.New("escalation: credential must be at least 12 characters")
	}
	hash, salt, err := HashCredential(credential, m.pepper)
	if err != nil {
		return err
	}
	return m.accounts.SetCredential(ctx, userID, hash, salt)
}
