package rbac

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/odyssey-lms/odyssey-lms/internal/shared"
)

// SnapshotSource loads a user's permission snapshot.
type SnapshotSource interface {
	Snapshot(ctx context.Context, userID string) (*PermissionSnapshot, error)
}

// Authorizer evaluates checks for request identities and records each decision.
type Authorizer struct {
	source  SnapshotSource
	logger  *slog.Logger
	metrics MetricsRecorder
}

// NewAuthorizer constructs an Authorizer. metrics may be nil.
func NewAuthorizer(source SnapshotSource, logger *slog.Logger, metrics MetricsRecorder) *Authorizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Authorizer{source: source, logger: logger.With(slog.String("component", "authz")), metrics: metrics}
}

// Subject composes the user's snapshot with the escalation overlay carried by ctx.
func (a *Authorizer) Subject(ctx context.Context, userID string) (Subject, error) {
	snap, err := a.source.Snapshot(ctx, userID)
	if err != nil {
		return Subject{}, err
	}
	subject := Subject{UserID: userID, Snapshot: snap}
	if elevation, ok := shared.ElevationFromContext(ctx); ok {
		subject.Elevated = elevation.Rights
	}
	return subject, nil
}

// Authorize checks a single right.
func (a *Authorizer) Authorize(ctx context.Context, userID, required string, opts Options) (Decision, error) {
	return a.evaluate(ctx, userID, []string{required}, opts, func(s Subject) Decision {
		return Authorize(s, required, opts)
	})
}

// AuthorizeAny allows when any of required is allowed.
func (a *Authorizer) AuthorizeAny(ctx context.Context, userID string, required []string, opts Options) (Decision, error) {
	return a.evaluate(ctx, userID, required, opts, func(s Subject) Decision {
		return AuthorizeAny(s, required, opts)
	})
}

// AuthorizeAll allows when every one of required is allowed.
func (a *Authorizer) AuthorizeAll(ctx context.Context, userID string, required []string, opts Options) (Decision, error) {
	return a.evaluate(ctx, userID, required, opts, func(s Subject) Decision {
		return AuthorizeAll(s, required, opts)
	})
}

// evaluate denies on lookup timeouts; any other load failure is returned.
func (a *Authorizer) evaluate(ctx context.Context, userID string, required []string, opts Options, decide func(Subject) Decision) (Decision, error) {
	subject, err := a.Subject(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrLookupTimeout) {
			a.logger.Warn("authz lookup timed out, denying",
				slog.String("user_id", userID), slog.String("required", strings.Join(required, ",")), slog.Any("error", err))
			d := Decision{Allowed: false, Reason: ReasonDenied, Required: strings.Join(required, " or ")}
			a.observe(d)
			return d, nil
		}
		return Decision{}, err
	}
	d := decide(subject)
	a.observe(d)

	attrs := []any{
		slog.String("user_id", userID),
		slog.String("required", d.Required),
		slog.String("reason", string(d.Reason)),
		slog.String("scope", opts.Scope),
		slog.Bool("elevated", len(subject.Elevated) > 0),
	}
	if d.Grant != nil {
		attrs = append(attrs, slog.String("granted_right", d.Grant.Right), slog.String("granted_scope", d.Grant.Scope))
	}
	if opts.Resource != nil {
		attrs = append(attrs, slog.String("resource_type", opts.Resource.Type), slog.String("resource_id", opts.Resource.ID))
	}
	if d.Allowed {
		a.logger.Debug("authz allowed", attrs...)
	} else {
		a.logger.Info("authz denied", attrs...)
	}
	return d, nil
}

func (a *Authorizer) observe(d Decision) {
	if a.metrics != nil {
		a.metrics.ObserveDecision(string(d.Reason))
	}
}
