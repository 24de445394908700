package identity

import (
	"context"
	"log"
	"time"

	apperrors "github.com/myunifiles/unifiles/internal/platform/errors"
	"github.com/myunifiles/unifiles/internal/store"
)

// rolePartition binds a partition to the role tag its records resolve to.
type rolePartition struct {
	partition string
	role      Role
}

// partitionOrder is the fixed probe priority. When malformed data matches a
// credential pair in more than one partition, the first match wins.
var partitionOrder = []rolePartition{
	{partition: store.PartitionRegistration, role: RoleStudent},
	{partition: store.PartitionAdminUser, role: RoleAdmin},
	{partition: store.PartitionCeo, role: RoleCEO},
}

// Resolver probes role partitions in priority order and tags the first
// match with its partition's role.
type Resolver struct {
	querier store.Querier
	audit   store.Mutator
	clock   func() time.Time
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithClock overrides the time source used for login events.
func WithClock(clock func() time.Time) ResolverOption {
	return func(r *Resolver) { r.clock = clock }
}

// WithAuditLog enables best-effort login event recording through the given
// mutator. Without it, resolution succeeds but nothing is recorded.
func WithAuditLog(audit store.Mutator) ResolverOption {
	return func(r *Resolver) { r.audit = audit }
}

// NewResolver creates a Resolver over a record store querier.
func NewResolver(querier store.Querier, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		querier: querier,
		clock:   time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve matches a credential pair against the role partitions in priority
// order and returns the first match tagged with its role. Partitions after
// the match are never queried. On success a login event is recorded
// best-effort; an audit write failure never fails the resolution.
func (r *Resolver) Resolve(ctx context.Context, credential Credential) (Identity, error) {
	if err := credential.Validate(); err != nil {
		return Identity{}, err
	}
	credential = credential.Normalize()

	for _, probe := range partitionOrder {
		records, err := r.querier.Get(ctx, store.Query{
			Partition: probe.partition,
			Predicates: []store.Predicate{
				store.Eq("studentID", credential.ExternalID),
				store.Eq("studentName", credential.DisplayName),
			},
		})
		if err != nil {
			return Identity{}, apperrors.Wrap(apperrors.CodeStoreUnavailable, "identity lookup failed", err)
		}
		if len(records) == 0 {
			continue
		}

		resolved := identityFromRecord(probe.role, records[0])
		r.recordLogin(ctx, resolved)
		return resolved, nil
	}

	return Identity{}, ErrNotFound
}

// identityFromRecord maps a partition document onto the identity variant
// for the given role.
func identityFromRecord(role Role, record store.Record) Identity {
	resolved := Identity{
		Role:        role,
		ExternalID:  record.Field("studentID"),
		DisplayName: record.Field("studentName"),
	}
	if role == RoleStudent {
		resolved.Institution = record.Field("institution")
		resolved.Course = record.Field("course")
		resolved.PhotoRef = record.Field("userPhoto")
	}
	return resolved
}

// recordLogin appends a login event. Failures are logged and isolated so
// login success never depends on audit durability.
func (r *Resolver) recordLogin(ctx context.Context, resolved Identity) {
	if r.audit == nil {
		return
	}
	fields := LoginEventFields(resolved, r.clock().UTC())
	if _, err := r.audit.Create(ctx, store.PartitionLoginLogs, fields); err != nil {
		log.Printf("identity: record login event for %s: %v", resolved.Role, err)
	}
}
