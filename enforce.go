package permit

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/oarkflow/permit/logger"
)

// Invalidator fans a cache-invalidation event out to other engine instances.
// The local caches are always cleared first; publish failures are logged and
// swallowed.
type Invalidator interface {
	PublishInvalidation(ctx context.Context, userID string, projectIDs ...string) error
}

// Engine is the top-level authorization facade. It owns the permission
// service, the guard registry, both caches and the audit trail.
type Engine struct {
	resolver *Resolver
	svc      *PermissionService
	guards   map[string]*FeatureGuard

	guardCache *GuardCache
	audit      *AuditService
	log        logger.Logger

	invalidator Invalidator

	sweepEvery time.Duration

	stopOnce  sync.Once
	stopSweep chan struct{}
}

type engineOptions struct {
	log                logger.Logger
	svcConfig          PermissionServiceConfig
	guardCacheTTL      time.Duration
	guardJanitor       time.Duration
	auditCapacity      int
	auditSink          AuditSink
	invalidator        Invalidator
	expirationSource   ExpirationSource
	scopeResolver      ScopeResolver
	extraGuards        []*FeatureGuard
	changeOrderLimit   float64
	paymentLimit       float64
	overrideThresholds bool
}

// EngineOption configures NewEngine.
type EngineOption func(*engineOptions)

// WithLogger sets the structured logger used across the engine.
func WithLogger(l logger.Logger) EngineOption {
	return func(o *engineOptions) { o.log = l }
}

// WithPermissionCache tunes the per-(user,project) permission cache.
func WithPermissionCache(cfg PermissionServiceConfig) EngineOption {
	return func(o *engineOptions) { o.svcConfig = cfg }
}

// WithGuardCache tunes the final-verdict cache TTL and janitor cadence.
func WithGuardCache(ttl, janitorInterval time.Duration) EngineOption {
	return func(o *engineOptions) {
		o.guardCacheTTL = ttl
		o.guardJanitor = janitorInterval
	}
}

// WithAudit sets the denial window size and an optional durable sink.
func WithAudit(capacity int, sink AuditSink) EngineOption {
	return func(o *engineOptions) {
		o.auditCapacity = capacity
		o.auditSink = sink
	}
}

// WithInvalidator installs a cross-instance invalidation publisher.
func WithInvalidator(inv Invalidator) EngineOption {
	return func(o *engineOptions) { o.invalidator = inv }
}

// WithExpirationSource installs an external expiration collaborator.
func WithExpirationSource(src ExpirationSource) EngineOption {
	return func(o *engineOptions) { o.expirationSource = src }
}

// WithScopeResolver installs an external resource-scope loader.
func WithScopeResolver(sr ScopeResolver) EngineOption {
	return func(o *engineOptions) { o.scopeResolver = sr }
}

// WithGuard registers an additional feature guard, replacing any built-in
// guard for the same feature.
func WithGuard(g *FeatureGuard) EngineOption {
	return func(o *engineOptions) { o.extraGuards = append(o.extraGuards, g) }
}

// WithFinancialThresholds overrides the change-order and payment approval
// limits used by the budget guard.
func WithFinancialThresholds(changeOrder, payment float64) EngineOption {
	return func(o *engineOptions) {
		o.changeOrderLimit = changeOrder
		o.paymentLimit = payment
		o.overrideThresholds = true
	}
}

// NewEngine wires the full decision pipeline over the given stores.
func NewEngine(members MembershipStore, orgs OrganizationStore, opts ...EngineOption) (*Engine, error) {
	if members == nil {
		return nil, fmt.Errorf("membership store is required")
	}
	o := engineOptions{
		changeOrderLimit: DefaultChangeOrderThreshold,
		paymentLimit:     DefaultPaymentThreshold,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.log == nil {
		o.log = logger.NewNullLogger()
	}

	resolver := NewResolver(members, orgs, o.log)
	svc, err := NewPermissionService(resolver, o.log, o.svcConfig)
	if err != nil {
		return nil, err
	}
	if o.expirationSource != nil {
		svc.SetExpirationSource(o.expirationSource)
	}
	if o.scopeResolver != nil {
		svc.SetScopeResolver(o.scopeResolver)
	}

	budget := newBudgetGuard()
	if o.overrideThresholds {
		budget = newBudgetGuardWithThresholds(o.changeOrderLimit, o.paymentLimit)
	}
	guards := map[string]*FeatureGuard{}
	for _, g := range []*FeatureGuard{
		newDocumentsGuard(),
		newRFIsGuard(),
		newSubmittalsGuard(),
		newSafetyGuard(),
		newQualityGuard(),
		budget,
		newSettingsGuard(),
	} {
		guards[g.Feature] = g
	}
	for _, g := range o.extraGuards {
		if g != nil && g.Feature != "" {
			guards[g.Feature] = g
		}
	}

	janitor := o.guardJanitor
	if janitor <= 0 {
		janitor = DefaultGuardJanitorInterval
	}
	e := &Engine{
		resolver:    resolver,
		svc:         svc,
		guards:      guards,
		guardCache:  NewGuardCache(o.guardCacheTTL, janitor),
		audit:       NewAuditService(o.auditCapacity, o.auditSink, o.log),
		log:         o.log,
		invalidator: o.invalidator,
		sweepEvery:  janitor,
		stopSweep:   make(chan struct{}),
	}
	go e.sweep()
	return e, nil
}

// sweep prunes the permission cache's key index of aged-out entries. It runs
// on the same cadence as the guard cache janitor.
func (e *Engine) sweep() {
	t := time.NewTicker(e.sweepEvery)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			e.svc.CleanExpiredCache()
		case <-e.stopSweep:
			return
		}
	}
}

// Service exposes the underlying permission service for base checks that do
// not go through a feature guard.
func (e *Engine) Service() *PermissionService { return e.svc }

// Audit exposes the denial trail.
func (e *Engine) Audit() *AuditService { return e.audit }

// GuardCacheStats snapshots the verdict cache counters.
func (e *Engine) GuardCacheStats() GuardCacheStats { return e.guardCache.Stats() }

// splitAction breaks "feature:action" apart. The action part may itself not
// contain a colon; permissions carry the resource separately.
func splitAction(action string) (feature, act string, err error) {
	i := strings.IndexByte(action, ':')
	if i <= 0 || i == len(action)-1 {
		return "", "", fmt.Errorf("action %q is not of the form feature:action", action)
	}
	return action[:i], action[i+1:], nil
}

// Check runs the two-phase decision for a feature action. Cached verdicts,
// allow and deny alike, are returned as-is; only fresh denials are audited.
func (e *Engine) Check(ctx context.Context, req *CheckRequest) (*GuardResult, error) {
	if req == nil {
		return nil, fmt.Errorf("nil check request")
	}
	feature, act, err := splitAction(req.Action)
	if err != nil {
		return nil, err
	}
	guard, ok := e.guards[feature]
	if !ok {
		return nil, fmt.Errorf("no guard registered for feature %q", feature)
	}

	resourceID := ""
	if req.Resource != nil {
		resourceID = req.Resource.ResourceID
	}
	if cached, ok := e.guardCache.Get(req.UserID, req.ProjectID, req.Action, resourceID); ok {
		return cached, nil
	}

	start := time.Now()
	result, err := e.check(ctx, guard, act, req)
	if err != nil {
		return nil, err
	}
	e.guardCache.Set(req.UserID, req.ProjectID, req.Action, resourceID, result, time.Since(start))

	if !result.Allowed {
		e.auditDenial(req, result)
	}
	return result, nil
}

func (e *Engine) check(ctx context.Context, guard *FeatureGuard, act string, req *CheckRequest) (*GuardResult, error) {
	required := guard.requiredPermission(act, req.Resource)

	// Phase 1: membership, expiration, matrix, scope.
	rc := req.Resource
	if guard.SkipScope {
		rc = nil
	}
	base, err := e.svc.CheckPermission(ctx, req.UserID, req.ProjectID, required, rc)
	if err != nil {
		return nil, err
	}
	if !base.Allowed {
		return &GuardResult{
			Allowed:  false,
			Reason:   base.Reason,
			Message:  base.Message,
			Required: required,
			Role:     base.Role,
		}, nil
	}

	// Phase 2: the feature's action rules.
	if rule, ok := guard.rule(act); ok {
		gc := &guardCtx{req: req, role: base.Role, inherited: base.Inherited}
		if denial := rule(gc); denial != nil {
			denial.Required = required
			return denial, nil
		}
	}

	return &GuardResult{
		Allowed:  true,
		Required: required,
		Role:     base.Role,
	}, nil
}

func (e *Engine) auditDenial(req *CheckRequest, result *GuardResult) {
	entry := &AuditEntry{
		UserID:    req.UserID,
		ProjectID: req.ProjectID,
		Action:    req.Action,
		Reason:    result.Reason,
		Code:      result.Code,
		Message:   result.Message,
		Metadata:  result.Metadata,
	}
	if req.Resource != nil {
		entry.ResourceType = req.Resource.ResourceType
		entry.ResourceID = req.Resource.ResourceID
	}
	e.audit.LogDenial(entry)
}

// Enforce is Check with an error-shaped denial, for callers that want to
// propagate the verdict as a typed error.
func (e *Engine) Enforce(ctx context.Context, req *CheckRequest) error {
	result, err := e.Check(ctx, req)
	if err != nil {
		return err
	}
	if result.Allowed {
		return nil
	}
	return &DenialError{
		Reason:  result.Reason,
		Code:    result.Code,
		Message: result.Message,
		Details: result.Metadata,
	}
}

// Invalidate clears both caches for a user and, when an invalidator is
// installed, publishes the event so peer instances do the same. Must be called
// on every membership role, scope or expiry change.
func (e *Engine) Invalidate(ctx context.Context, userID string, projectIDs ...string) {
	e.ApplyInvalidation(userID, projectIDs...)
	if e.invalidator == nil {
		return
	}
	if err := e.invalidator.PublishInvalidation(ctx, userID, projectIDs...); err != nil {
		e.log.Error("invalidation publish failed",
			"user_id", userID, "error", err.Error())
	}
}

// ApplyInvalidation clears the local caches only. Invalidation subscribers
// call this when a peer publishes an event.
func (e *Engine) ApplyInvalidation(userID string, projectIDs ...string) {
	e.svc.ClearPermissionCache(userID, projectIDs...)
	e.guardCache.Clear(userID, projectIDs...)
	e.log.Debug("caches invalidated", "user_id", userID, "projects", len(projectIDs))
}

// Close stops the janitors, the audit worker and the permission cache. Safe to
// call more than once.
func (e *Engine) Close() {
	e.stopOnce.Do(func() {
		close(e.stopSweep)
		e.guardCache.Stop()
		e.audit.Close()
		e.svc.Close()
	})
}
