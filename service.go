package permit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/ristretto"

	"github.com/oarkflow/permit/logger"
)

// ResourceContext describes the resource a check applies to. It is supplied by
// the caller at check time; the engine never loads business entities itself.
type ResourceContext struct {
	ResourceType string         `json:"resource_type"`
	ResourceID   string         `json:"resource_id,omitempty"`
	OwnerID      string         `json:"resource_owner_id,omitempty"`
	AssignedTo   []string       `json:"assigned_to,omitempty"`
	Status       string         `json:"current_status,omitempty"`
	Scope        *ResourceScope `json:"scope,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// PermissionCacheEntry is the per-(user,project) snapshot the service caches.
// Replaced wholesale on refresh, never mutated in place.
type PermissionCacheEntry struct {
	Permissions    []Permission
	Role           ProjectRole
	Inherited      bool
	Source         RoleSource
	Scope          *UserScope
	ExpiresAt      *time.Time
	ProjectOK      bool
	CachedAt       time.Time
	CacheExpiresAt time.Time
}

// CheckResult is the detailed outcome of a base permission check.
type CheckResult struct {
	Allowed   bool         `json:"allowed"`
	Reason    DenialReason `json:"reason,omitempty"`
	Message   string       `json:"message,omitempty"`
	Required  Permission   `json:"required_permission,omitempty"`
	Role      ProjectRole  `json:"user_role,omitempty"`
	Inherited bool         `json:"is_inherited,omitempty"`
	Scope     *ScopeMatch  `json:"scope,omitempty"`
}

// ExpirationSource is an optional external expiration collaborator. When
// installed, its verdict replaces the cached-membership time check; lookup
// failures fail open (see the fail-open note in the package docs).
type ExpirationSource interface {
	CheckExpiration(ctx context.Context, userID, projectID string) (ExpirationStatus, *time.Time, error)
}

// ScopeResolver optionally loads a resource's scope tags when the caller
// supplied a resource ID but no scope. Lookup failures fail open.
type ScopeResolver interface {
	ResourceScope(ctx context.Context, resourceType, resourceID string) (*ResourceScope, error)
}

// DefaultPermissionCacheTTL bounds how stale a cached permission snapshot may
// get before forced recomputation.
const DefaultPermissionCacheTTL = 15 * time.Minute

// PermissionService orchestrates matrix, inheritance, expiration and scope
// into a single decision, and owns the permission cache.
type PermissionService struct {
	resolver *Resolver
	log      logger.Logger
	now      func() time.Time

	cache    *ristretto.Cache
	cacheTTL time.Duration

	// ristretto cannot enumerate keys, so targeted invalidation keeps a side
	// index of cache keys per user.
	keysMu     sync.Mutex
	keysByUser map[string]map[string]struct{}

	expiration ExpirationSource
	scopes     ScopeResolver
}

// PermissionServiceConfig tunes the cache; zero values select defaults.
type PermissionServiceConfig struct {
	CacheTTL            time.Duration
	RistrettoNumCounter int64
	RistrettoMaxCost    int64
	RistrettoBuffer     int64
}

func NewPermissionService(resolver *Resolver, log logger.Logger, cfg PermissionServiceConfig) (*PermissionService, error) {
	if log == nil {
		log = logger.NewNullLogger()
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultPermissionCacheTTL
	}
	if cfg.RistrettoNumCounter <= 0 {
		cfg.RistrettoNumCounter = 1e5
	}
	if cfg.RistrettoMaxCost <= 0 {
		cfg.RistrettoMaxCost = 1 << 24
	}
	if cfg.RistrettoBuffer <= 0 {
		cfg.RistrettoBuffer = 64
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: cfg.RistrettoNumCounter,
		MaxCost:     cfg.RistrettoMaxCost,
		BufferItems: cfg.RistrettoBuffer,
	})
	if err != nil {
		return nil, fmt.Errorf("permission cache: %w", err)
	}
	return &PermissionService{
		resolver:   resolver,
		log:        log,
		now:        time.Now,
		cache:      cache,
		cacheTTL:   cfg.CacheTTL,
		keysByUser: make(map[string]map[string]struct{}),
	}, nil
}

// SetExpirationSource installs an external expiration collaborator.
func (s *PermissionService) SetExpirationSource(src ExpirationSource) { s.expiration = src }

// SetScopeResolver installs an external resource-scope collaborator.
func (s *PermissionService) SetScopeResolver(sr ScopeResolver) { s.scopes = sr }

func cacheKey(userID, projectID string) string { return userID + "\x00" + projectID }

func (s *PermissionService) load(ctx context.Context, userID, projectID string) (*PermissionCacheEntry, error) {
	key := cacheKey(userID, projectID)
	if v, ok := s.cache.Get(key); ok {
		if entry, ok := v.(*PermissionCacheEntry); ok && s.now().Before(entry.CacheExpiresAt) {
			return entry, nil
		}
	}

	res, err := s.resolver.resolve(ctx, userID, projectID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	entry := &PermissionCacheEntry{
		Role:           res.Role,
		Inherited:      res.Inherited,
		Source:         res.Source,
		Scope:          res.Scope,
		ExpiresAt:      res.ExpiresAt,
		ProjectOK:      res.ProjectOK,
		CachedAt:       now,
		CacheExpiresAt: now.Add(s.cacheTTL),
	}
	if res.Source != SourceNone {
		entry.Permissions = RolePermissions(res.Role)
	}
	s.cache.SetWithTTL(key, entry, int64(1+len(entry.Permissions)), s.cacheTTL)
	s.cache.Wait()
	s.indexKey(userID, key)
	return entry, nil
}

func (s *PermissionService) indexKey(userID, key string) {
	s.keysMu.Lock()
	defer s.keysMu.Unlock()
	set, ok := s.keysByUser[userID]
	if !ok {
		set = make(map[string]struct{})
		s.keysByUser[userID] = set
	}
	set[key] = struct{}{}
}

// expirationStatus re-validates the time bound on every check. The timestamp
// itself may be up to one cache TTL stale; the comparison against the clock is
// always fresh.
func (s *PermissionService) expirationStatus(ctx context.Context, userID, projectID string, entry *PermissionCacheEntry) (ExpirationStatus, *time.Time) {
	if s.expiration != nil {
		st, at, err := s.expiration.CheckExpiration(ctx, userID, projectID)
		if err != nil {
			// Fail open: the primary role gate still applies. Loud by design so
			// deployments can alert on it.
			s.log.Error("expiration check failed, failing open",
				"user_id", userID, "project_id", projectID, "fail_open", true, "error", err.Error())
			return ExpirationActive, nil
		}
		return st, at
	}
	switch entry.Source {
	case SourceInherited:
		return ExpirationActive, nil
	case SourceExplicit:
		if entry.ExpiresAt == nil {
			return ExpirationActive, nil
		}
		if entry.ExpiresAt.Before(s.now()) {
			return ExpirationExpired, entry.ExpiresAt
		}
		return ExpirationActive, entry.ExpiresAt
	default:
		return ExpirationNone, nil
	}
}

// CheckPermission runs the full base decision: membership resolution,
// expiration, matrix match, then scope for scope-limited roles.
func (s *PermissionService) CheckPermission(ctx context.Context, userID, projectID string, required Permission, rc *ResourceContext) (*CheckResult, error) {
	entry, err := s.load(ctx, userID, projectID)
	if err != nil {
		return nil, err
	}

	if entry.Source == SourceNone {
		if !entry.ProjectOK {
			return &CheckResult{
				Allowed: false,
				Reason:  ReasonProjectNotFound,
				Message: fmt.Sprintf("Project %s was not found", projectID),
			}, nil
		}
		return &CheckResult{
			Allowed:  false,
			Reason:   ReasonUserNotMember,
			Message:  "You are not a member of this project",
			Required: required,
		}, nil
	}

	if st, at := s.expirationStatus(ctx, userID, projectID, entry); st == ExpirationExpired {
		msg := "Your access to this project has expired"
		if at != nil {
			msg = fmt.Sprintf("Your access to this project expired on %s", at.Format("2006-01-02"))
		}
		return &CheckResult{
			Allowed:  false,
			Reason:   ReasonAccessExpired,
			Message:  msg,
			Required: required,
			Role:     entry.Role,
		}, nil
	}

	if !HasPermission(entry.Permissions, required) {
		return &CheckResult{
			Allowed:   false,
			Reason:    ReasonInsufficientPermissions,
			Message:   fmt.Sprintf("Role %s does not grant %s", entry.Role, required),
			Required:  required,
			Role:      entry.Role,
			Inherited: entry.Inherited,
		}, nil
	}

	// Scope applies only to scope-limited roles with an explicit membership,
	// and only when the check names a concrete resource. Collection-level
	// checks pass here; list filtering is the caller's job via
	// FilterResourcesByScope.
	if IsScopeLimited(entry.Role) && !entry.Inherited && rc != nil && rc.ResourceID != "" {
		resScope := rc.Scope
		if resScope == nil && s.scopes != nil {
			loaded, err := s.scopes.ResourceScope(ctx, rc.ResourceType, rc.ResourceID)
			if err != nil {
				// Fail open: skip the scope sub-check entirely. The role gate
				// above has already passed. Loud so deployments can alert.
				s.log.Error("resource scope lookup failed, failing open",
					"user_id", userID, "project_id", projectID,
					"resource_type", rc.ResourceType, "resource_id", rc.ResourceID,
					"fail_open", true, "error", err.Error())
				return &CheckResult{
					Allowed:   true,
					Required:  required,
					Role:      entry.Role,
					Inherited: entry.Inherited,
				}, nil
			}
			resScope = loaded
		}
		match := MatchesScope(entry.Scope, resScope, rc.ResourceType)
		if !match.HasAccess {
			return &CheckResult{
				Allowed:   false,
				Reason:    ReasonScopeRestriction,
				Message:   match.Reason,
				Required:  required,
				Role:      entry.Role,
				Inherited: entry.Inherited,
				Scope:     &match,
			}, nil
		}
		return &CheckResult{
			Allowed:   true,
			Required:  required,
			Role:      entry.Role,
			Inherited: entry.Inherited,
			Scope:     &match,
		}, nil
	}

	return &CheckResult{
		Allowed:   true,
		Required:  required,
		Role:      entry.Role,
		Inherited: entry.Inherited,
	}, nil
}

// HasPermission is the boolean form of CheckPermission.
func (s *PermissionService) HasPermission(ctx context.Context, userID, projectID string, required Permission, rc *ResourceContext) (bool, error) {
	res, err := s.CheckPermission(ctx, userID, projectID, required, rc)
	if err != nil {
		return false, err
	}
	return res.Allowed, nil
}

// HasAnyPermission reports whether any of the required permissions is granted.
func (s *PermissionService) HasAnyPermission(ctx context.Context, userID, projectID string, required ...Permission) (bool, error) {
	for _, r := range required {
		ok, err := s.HasPermission(ctx, userID, projectID, r, nil)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// HasAllPermissions reports whether every required permission is granted.
func (s *PermissionService) HasAllPermissions(ctx context.Context, userID, projectID string, required ...Permission) (bool, error) {
	for _, r := range required {
		ok, err := s.HasPermission(ctx, userID, projectID, r, nil)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// GetUserPermissions returns the user's effective permission set on a project,
// minimized (broad grants absorb narrower ones).
func (s *PermissionService) GetUserPermissions(ctx context.Context, userID, projectID string) ([]Permission, error) {
	entry, err := s.load(ctx, userID, projectID)
	if err != nil {
		return nil, err
	}
	if entry.Source == SourceNone {
		return nil, nil
	}
	if st, _ := s.expirationStatus(ctx, userID, projectID, entry); st == ExpirationExpired {
		return nil, nil
	}
	return MinimizePermissions(entry.Permissions), nil
}

// GetEffectiveRole exposes the resolver verdict (cached).
func (s *PermissionService) GetEffectiveRole(ctx context.Context, userID, projectID string) (EffectiveRole, error) {
	entry, err := s.load(ctx, userID, projectID)
	if err != nil {
		return EffectiveRole{Source: SourceNone}, err
	}
	return EffectiveRole{Role: entry.Role, Inherited: entry.Inherited, Source: entry.Source}, nil
}

// GetUserScope returns the user's scope on a project (nil when unlimited).
func (s *PermissionService) GetUserScope(ctx context.Context, userID, projectID string) (*UserScope, error) {
	entry, err := s.load(ctx, userID, projectID)
	if err != nil {
		return nil, err
	}
	return entry.Scope, nil
}

// GetUserPermissionMap bulk-checks a permission list in one cache load, for UI
// rendering (menus, buttons). Expired or non-member users get all-false.
func (s *PermissionService) GetUserPermissionMap(ctx context.Context, userID, projectID string, required []Permission) (map[Permission]bool, error) {
	entry, err := s.load(ctx, userID, projectID)
	if err != nil {
		return nil, err
	}
	out := make(map[Permission]bool, len(required))
	denied := entry.Source == SourceNone
	if !denied {
		if st, _ := s.expirationStatus(ctx, userID, projectID, entry); st == ExpirationExpired {
			denied = true
		}
	}
	for _, r := range required {
		out[r] = !denied && HasPermission(entry.Permissions, r)
	}
	return out, nil
}

// ClearPermissionCache drops cached entries for a user, optionally narrowed to
// specific projects. Callers must invoke this whenever a membership's role,
// scope or expiry changes.
func (s *PermissionService) ClearPermissionCache(userID string, projectIDs ...string) {
	s.keysMu.Lock()
	defer s.keysMu.Unlock()
	set := s.keysByUser[userID]
	if set == nil {
		return
	}
	if len(projectIDs) == 0 {
		for key := range set {
			s.cache.Del(key)
		}
		delete(s.keysByUser, userID)
		return
	}
	for _, pid := range projectIDs {
		key := cacheKey(userID, pid)
		if _, ok := set[key]; ok {
			s.cache.Del(key)
			delete(set, key)
		}
	}
	if len(set) == 0 {
		delete(s.keysByUser, userID)
	}
}

// CleanExpiredCache prunes index entries whose cached value has been evicted
// or aged out. Ristretto evicts values itself; this keeps the side index from
// growing without bound.
func (s *PermissionService) CleanExpiredCache() {
	now := s.now()
	s.keysMu.Lock()
	defer s.keysMu.Unlock()
	for userID, set := range s.keysByUser {
		for key := range set {
			v, ok := s.cache.Get(key)
			if !ok {
				delete(set, key)
				continue
			}
			if entry, ok := v.(*PermissionCacheEntry); ok && now.After(entry.CacheExpiresAt) {
				s.cache.Del(key)
				delete(set, key)
			}
		}
		if len(set) == 0 {
			delete(s.keysByUser, userID)
		}
	}
}

// Close releases the cache.
func (s *PermissionService) Close() {
	s.cache.Close()
}
