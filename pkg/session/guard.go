package session

import (
	"context"
	"net/url"

	stderrors "errors"

	"snpublisher/pkg/errors"
	"snpublisher/pkg/logger"
	"snpublisher/pkg/proxy"
)

// State describes the health of a guarded platform session.
type State int

const (
	// StateUnvalidated is the initial state before the first validation.
	StateUnvalidated State = iota
	// StateHealthy means the last validation succeeded.
	StateHealthy
	// StateDegraded means the last validation failed but recovery is
	// worth attempting; the caller may retry.
	StateDegraded
	// StateFailed means recovery is exhausted or the platform flagged
	// the session. The caller must stop until external intervention.
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUnvalidated:
		return "unvalidated"
	case StateHealthy:
		return "healthy"
	case StateDegraded:
		return "degraded"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Result is the outcome of one validation pass.
type Result struct {
	State  State
	Reason string
}

// PlatformSession is the narrow capability set the guard needs from a
// platform client. The guard never references SDK-specific types; adapters
// classify their errors into the pkg/errors taxonomy before returning.
type PlatformSession interface {
	// BindProxy routes all subsequent platform traffic through the proxy.
	// Idempotent when the proxy is unchanged.
	BindProxy(proxyURL *url.URL) error

	// Probe issues the cheapest available read-only call to test liveness.
	Probe(ctx context.Context) error

	// Login performs a full fresh authentication and persists the new
	// session artifact.
	Login(ctx context.Context) error

	// ClearSession removes the persisted session artifact so the next
	// login starts clean.
	ClearSession() error
}

// Guard wraps one platform session, binds it to proxies from the pool, and
// drives recovery when validation fails. One guard per account per process.
type Guard struct {
	session PlatformSession
	pool    *proxy.Pool
	log     logger.Logger

	state State
}

// NewGuard creates a guard in the unvalidated state.
func NewGuard(session PlatformSession, pool *proxy.Pool, log logger.Logger) *Guard {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Guard{
		session: session,
		pool:    pool,
		log:     log,
		state:   StateUnvalidated,
	}
}

// State returns the state after the most recent validation.
func (g *Guard) State() State {
	return g.state
}

// Validate runs the full health ladder: rotate the proxy if due, verify the
// proxy's egress before spending any platform-visible request, then probe
// the platform session and recover from what is recoverable.
func (g *Guard) Validate(ctx context.Context) Result {
	// 1. Timed rotation first. A rotation failure gets one forced
	// acquisition before the pass degrades.
	if err := g.pool.RotateIfDue(ctx); err != nil {
		g.log.WithError(err).Warn("rotation failed, forcing one fresh acquisition")
		if _, err := g.pool.Acquire(ctx); err != nil {
			return g.transition(StateDegraded, "proxy pool temporarily exhausted: "+err.Error())
		}
	}

	// First-use path: nothing bound yet.
	if g.pool.Current() == nil {
		if _, err := g.pool.Acquire(ctx); err != nil {
			return g.transition(StateDegraded, "no proxy available: "+err.Error())
		}
	}

	// 2. Rebind the platform transport to whatever is now bound.
	if err := g.session.BindProxy(g.pool.Current().URL); err != nil {
		return g.transition(StateDegraded, "failed to bind proxy: "+err.Error())
	}

	// 3. Verify the proxy before touching the rate-limited platform API.
	// A bad egress forces rotation so the caller's next attempt starts
	// from a fresh proxy.
	if err := g.pool.ValidateActive(ctx); err != nil {
		g.log.WithError(err).Warn("active proxy failed validation, forcing rotation")
		if _, acquireErr := g.pool.Acquire(ctx); acquireErr != nil {
			g.log.WithError(acquireErr).Warn("forced rotation failed")
		}
		return g.transition(StateDegraded, "proxy validation failed: "+err.Error())
	}

	// 4. Platform probe, classified by the adapter.
	err := g.session.Probe(ctx)
	if err == nil {
		return g.transition(StateHealthy, "session probe succeeded")
	}

	return g.recover(ctx, err)
}

// recover maps a classified probe failure onto the recovery ladder.
func (g *Guard) recover(ctx context.Context, probeErr error) Result {
	var classified *errors.Error
	if !stderrors.As(probeErr, &classified) {
		classified = &errors.Error{Type: errors.ErrorTypeUnknown, Message: probeErr.Error()}
	}

	switch {
	case errors.IsFatal(classified.Type):
		// Automation-detection signals: retrying worsens the flag.
		return g.transition(StateFailed, "platform flagged session: "+classified.Error())

	case classified.Type == errors.ErrorTypeLoginRequired:
		return g.relogin(ctx, classified)

	case errors.IsRetryable(classified.Type):
		return g.transition(StateDegraded, "transient probe failure: "+classified.Error())

	default:
		return g.transition(StateDegraded, "unclassified probe failure: "+classified.Error())
	}
}

// relogin clears the stored session and performs exactly one fresh login.
func (g *Guard) relogin(ctx context.Context, cause *errors.Error) Result {
	g.log.WithError(cause).Warn("session expired, attempting full re-login")

	if err := g.session.ClearSession(); err != nil {
		g.log.WithError(err).Warn("failed to clear stored session")
	}

	if err := g.session.Login(ctx); err != nil {
		return g.transition(StateFailed, "re-login failed: "+err.Error())
	}

	return g.transition(StateHealthy, "re-login succeeded")
}

// transition records the new state and logs the triggering condition.
func (g *Guard) transition(next State, reason string) Result {
	fields := map[string]interface{}{
		"from":   g.state.String(),
		"to":     next.String(),
		"reason": reason,
	}
	if bound := g.pool.Current(); bound != nil {
		fields["ip"] = bound.IP
		fields["location"] = bound.City + ", " + bound.Country
	}

	switch next {
	case StateHealthy:
		g.log.InfoWithFields("session state transition", fields)
	case StateFailed:
		g.log.ErrorWithFields("session state transition", fields)
	default:
		g.log.WarnWithFields("session state transition", fields)
	}

	g.state = next
	return Result{State: next, Reason: reason}
}
