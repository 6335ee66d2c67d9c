package acl

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/chetandr-lohono/lohono-db-connect/internal/domain/identity"
	"github.com/chetandr-lohono/lohono-db-connect/internal/domain/tool"
	"github.com/chetandr-lohono/lohono-db-connect/internal/observability"
)

// ErrStaffNotFound indicates the email has no row in the staff directory.
// Distinct from backend failures so "not found" can be (briefly) cached.
var ErrStaffNotFound = errors.New("staff not found")

// StaffStore looks up staff records by canonical email.
// Implemented by the postgres adapter; mocked in tests.
type StaffStore interface {
	GetStaff(ctx context.Context, email string) (*identity.Staff, error)
}

// Decision is the outcome of a tool access check. Reason strings are stable:
// they surface verbatim in MCP error results and in tests.
type Decision struct {
	Allowed bool
	Reason  string
	// ACLs holds the caller's tags when a staff record was resolved.
	ACLs []string
}

// cacheEntry is a cached staff resolution. notFound entries are the negative
// cache: they expire on a much shorter TTL so new staff are picked up fast.
type cacheEntry struct {
	staff    *identity.Staff
	notFound bool
	expires  time.Time
}

// Engine evaluates tool access for caller emails with TTL-cached staff
// lookups. Safe for concurrent use; writes race benignly (entries are
// idempotent, last writer wins).
type Engine struct {
	cfg    *Config
	store  StaffStore
	logger *slog.Logger

	ttl     time.Duration
	negTTL  time.Duration
	metrics *observability.Metrics

	mu    sync.RWMutex
	cache map[string]cacheEntry

	now func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithCacheTTL sets how long positive staff resolutions stay cached.
func WithCacheTTL(ttl time.Duration) Option {
	return func(e *Engine) { e.ttl = ttl }
}

// WithNegativeCacheTTL sets how long not-found resolutions stay cached.
// Zero disables negative caching entirely.
func WithNegativeCacheTTL(ttl time.Duration) Option {
	return func(e *Engine) { e.negTTL = ttl }
}

// WithLogger sets the engine logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithMetrics wires decision and cache counters.
func WithMetrics(m *observability.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// withClock overrides the time source for TTL tests.
func withClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine builds an access control engine over the given rules and store.
func NewEngine(cfg *Config, store StaffStore, opts ...Option) *Engine {
	e := &Engine{
		cfg:    cfg,
		store:  store,
		logger: slog.Default(),
		ttl:    5 * time.Minute,
		negTTL: 30 * time.Second,
		cache:  make(map[string]cacheEntry),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ResolveEmail picks the caller identity from the resolution chain:
// per-call meta override, then the transport session's email, then the
// process-wide fallback. Returns "" when no link yields one.
func (e *Engine) ResolveEmail(metaEmail, sessionEmail, envFallback string) string {
	if email := identity.CanonicalEmail(metaEmail); email != "" {
		return email
	}
	if email := identity.CanonicalEmail(sessionEmail); email != "" {
		return email
	}
	return identity.CanonicalEmail(envFallback)
}

// ResolveACLs looks up the staff record for an email, serving from cache
// within the TTL. Returns ErrStaffNotFound for unknown emails; other errors
// are backend failures and are never cached.
func (e *Engine) ResolveACLs(ctx context.Context, email string) (*identity.Staff, error) {
	email = identity.CanonicalEmail(email)
	if email == "" {
		return nil, ErrStaffNotFound
	}

	if staff, found, notFound := e.cacheGet(email); found {
		if notFound {
			if e.metrics != nil {
				e.metrics.ACLNegativeCacheHits.Inc()
			}
			return nil, ErrStaffNotFound
		}
		if e.metrics != nil {
			e.metrics.ACLCacheHits.Inc()
		}
		return staff, nil
	}

	staff, err := e.store.GetStaff(ctx, email)
	if err != nil {
		if errors.Is(err, ErrStaffNotFound) {
			e.cachePutNotFound(email)
			return nil, ErrStaffNotFound
		}
		e.logger.ErrorContext(ctx, "staff lookup failed", "email", email, "error", err)
		return nil, fmt.Errorf("staff lookup failed: %w", err)
	}

	e.cachePut(email, staff)
	return staff, nil
}

// CheckToolAccess evaluates the access ladder for one tool and caller.
// Steps, in order: public list, identity presence, staff existence, active
// flag, superuser tags, the per-tool ACL map, then the default policy.
func (e *Engine) CheckToolAccess(ctx context.Context, toolName, email string) Decision {
	d := e.checkToolAccess(ctx, toolName, email)
	if e.metrics != nil {
		result := "deny"
		if d.Allowed {
			result = "allow"
		}
		e.metrics.ACLDecisions.WithLabelValues(result).Inc()
	}
	return d
}

func (e *Engine) checkToolAccess(ctx context.Context, toolName, email string) Decision {
	if e.cfg.IsPublic(toolName) {
		return Decision{Allowed: true, Reason: "public tool"}
	}

	email = identity.CanonicalEmail(email)
	if email == "" {
		return Decision{Reason: "Authentication required: no user email provided"}
	}

	staff, err := e.ResolveACLs(ctx, email)
	if errors.Is(err, ErrStaffNotFound) {
		return Decision{Reason: "User not found"}
	}
	if err != nil {
		// Backend failure: fail closed without claiming the user is unknown.
		return Decision{Reason: "Access check failed: staff lookup error"}
	}

	if !staff.Active {
		return Decision{Reason: "User is inactive", ACLs: staff.ACLs}
	}

	if staff.HasAnyACL(e.cfg.SuperuserACLs) {
		return Decision{Allowed: true, Reason: "superuser access", ACLs: staff.ACLs}
	}

	if required, listed := e.cfg.RequiredACLs(toolName); listed {
		if staff.HasAnyACL(required) {
			return Decision{Allowed: true, Reason: "acl granted", ACLs: staff.ACLs}
		}
		return Decision{
			Reason: fmt.Sprintf("Access denied: tool %q requires one of %v; user holds %v",
				toolName, required, staff.ACLs),
			ACLs: staff.ACLs,
		}
	}

	if e.cfg.DefaultPolicy == PolicyOpen {
		return Decision{Allowed: true, Reason: "default policy: open", ACLs: staff.ACLs}
	}
	return Decision{Reason: "Access denied: default policy is deny", ACLs: staff.ACLs}
}

// FilterTools returns the descriptors the caller is allowed to invoke.
// The visibility rule is exactly CheckToolAccess, so clients never list a
// tool they cannot call.
func (e *Engine) FilterTools(ctx context.Context, tools []tool.Descriptor, email string) []tool.Descriptor {
	visible := make([]tool.Descriptor, 0, len(tools))
	for _, t := range tools {
		if e.CheckToolAccess(ctx, t.Name, email).Allowed {
			visible = append(visible, t)
		}
	}
	return visible
}

// Invalidate drops a single email from the cache.
func (e *Engine) Invalidate(email string) {
	email = identity.CanonicalEmail(email)
	e.mu.Lock()
	delete(e.cache, email)
	e.mu.Unlock()
}

// InvalidateAll drops the whole cache. Called when the rules file reloads.
func (e *Engine) InvalidateAll() {
	e.mu.Lock()
	e.cache = make(map[string]cacheEntry)
	e.mu.Unlock()
}

// Config returns the loaded rules, for the health endpoint's fingerprint.
func (e *Engine) Config() *Config {
	return e.cfg
}

func (e *Engine) cacheGet(email string) (staff *identity.Staff, found, notFound bool) {
	e.mu.RLock()
	entry, ok := e.cache[email]
	e.mu.RUnlock()
	if !ok || e.now().After(entry.expires) {
		return nil, false, false
	}
	return entry.staff, true, entry.notFound
}

func (e *Engine) cachePut(email string, staff *identity.Staff) {
	e.mu.Lock()
	e.cache[email] = cacheEntry{staff: staff, expires: e.now().Add(e.ttl)}
	e.mu.Unlock()
}

func (e *Engine) cachePutNotFound(email string) {
	if e.negTTL <= 0 {
		return
	}
	e.mu.Lock()
	e.cache[email] = cacheEntry{notFound: true, expires: e.now().Add(e.negTTL)}
	e.mu.Unlock()
}
