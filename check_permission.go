package labcore

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Decision is the outcome of a permission check. Deny carries the reason so
// rejected requests are diagnosable from the audit trail alone.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason"`
}

// DecisionContext carries action-specific context. For technician access to
// Operations records the caller supplies the job's assigned technician so
// the resolver can scope the check to the technician's own jobs.
type DecisionContext struct {
	AssignedTechnician *uuid.UUID
}

// ResolverConfig configures a Resolver. Redis is optional; without a client
// every decision is computed from the grant table directly.
type ResolverConfig struct {
	Registry    *RoleRegistry
	Audit       AuditSink
	Logger      *zap.Logger
	RedisClient *redis.Client
	CachePrefix string
	CacheTTL    time.Duration
}

// Resolver evaluates (principal, action) pairs against the role registry.
// Deny is the default: an action is allowed only with an explicit grant and
// a passing contextual rule.
type Resolver struct {
	registry *RoleRegistry
	audit    AuditSink
	log      *zap.Logger
	cache    *decisionCache
}

func NewResolver(cfg ResolverConfig) (*Resolver, error) {
	if cfg.Registry == nil {
		return nil, fmt.Errorf("%w: resolver requires a role registry", ErrConfiguration)
	}
	if cfg.Audit == nil {
		cfg.Audit = NopSink{}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	r := &Resolver{
		registry: cfg.Registry,
		audit:    cfg.Audit,
		log:      cfg.Logger,
	}
	if cfg.RedisClient != nil {
		r.cache = newDecisionCache(cfg.RedisClient, cfg.CachePrefix, cfg.CacheTTL)
	}
	return r, nil
}

// Decide resolves whether the principal may perform the action. Every
// decision, allowed or denied, is reported to the audit sink.
func (r *Resolver) Decide(ctx context.Context, p Principal, action Action, dc *DecisionContext) Decision {
	d := r.decide(ctx, p, action, dc)

	outcome := "deny"
	if d.Allowed {
		outcome = "allow"
	}
	r.audit.Record(ctx, newAuditEvent(AuditPermissionDecision, p, action.String(), outcome, d.Reason))
	return d
}

// InvalidateCache clears every cached decision under the resolver's prefix.
// Called at startup so entries written by an earlier deploy cannot outlive a
// grant table change. A no-op without a Redis client.
func (r *Resolver) InvalidateCache(ctx context.Context) error {
	return r.cache.invalidate(ctx)
}

func (r *Resolver) decide(ctx context.Context, p Principal, action Action, dc *DecisionContext) Decision {
	if !p.Active {
		return Decision{Reason: "principal is inactive"}
	}
	if !p.Role.IsValid() {
		return Decision{Reason: fmt.Sprintf("unknown role %q", p.Role)}
	}

	granted, cached := false, false
	if dc == nil {
		granted, cached = r.cache.get(ctx, p.Role, action)
	}
	if !cached {
		granted = r.registry.Has(p.Role, action)
		if dc == nil {
			r.cache.set(ctx, p.Role, action, granted)
		}
	}
	if !granted {
		return Decision{Reason: fmt.Sprintf("role %s lacks grant %s", p.Role, action)}
	}

	// Technician access to Operations records is scoped to own assignments.
	if p.Role == RoleTechnician && action.Module == ModuleOperations &&
		(action.Verb == VerbView || action.Verb == VerbEdit) && dc != nil {
		if dc.AssignedTechnician == nil || *dc.AssignedTechnician != p.ID {
			return Decision{Reason: "job is assigned to another technician"}
		}
	}

	return Decision{Allowed: true, Reason: fmt.Sprintf("role %s granted %s", p.Role, action)}
}
