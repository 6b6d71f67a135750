// Package permit is the authorization engine for multi-tenant construction
// project management: role-based permission matching with wildcards,
// organization-to-project role inheritance, time-bounded memberships and
// scope filtering for trade partners.
//
// Decisions run in two phases. Phase 1 resolves the user's effective role
// (explicit project membership first, inherited organization role as
// fallback), checks expiration, matches the required permission against the
// role matrix and, for scope-limited roles, evaluates the resource's scope
// tags. Phase 2 applies per-feature workflow rules (ownership, status,
// thresholds) through feature guards. Verdicts are cached at both layers:
// permission snapshots per (user, project) and final guard results per
// (user, project, action, resource).
//
// Fail-open: when an optional secondary collaborator (expiration source,
// resource-scope resolver) fails, the engine logs at Error level with
// fail_open=true and proceeds as if the secondary check passed. The primary
// role gate always applies. Deployments should alert on these log lines.
//
// Cache invalidation is the caller's contract: every membership role, scope
// or expiry change must be followed by Engine.Invalidate for the affected
// user, which clears both cache layers locally and, when an Invalidator is
// installed, fans the event out to peer instances.
package permit
