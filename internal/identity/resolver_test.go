package identity

import (
	"context"
	"errors"
	"testing"
	"time"

	apperrors "github.com/myunifiles/unifiles/internal/platform/errors"
	"github.com/myunifiles/unifiles/internal/store"
	"github.com/myunifiles/unifiles/internal/store/memory"
)

func seedStudent(t *testing.T, s *memory.Store) {
	t.Helper()
	_, err := s.Create(context.Background(), store.PartitionRegistration, map[string]any{
		"studentID":   "A1B2C3D4",
		"studentName": "jane doe",
		"institution": "LeoTech Academy",
		"course":      "CompSci",
		"userPhoto":   "photos/jane.png",
	})
	if err != nil {
		t.Fatalf("seed student: %v", err)
	}
}

func TestResolveStudent(t *testing.T) {
	s := memory.New()
	seedStudent(t, s)
	resolver := NewResolver(s)

	resolved, err := resolver.Resolve(context.Background(), Credential{
		ExternalID:  "A1B2C3D4",
		DisplayName: "  Jane DOE ",
	})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved.Role != RoleStudent {
		t.Fatalf("expected Student role, got %v", resolved.Role)
	}
	if resolved.Course != "CompSci" {
		t.Fatalf("expected course CompSci, got %q", resolved.Course)
	}
	if resolved.Institution != "LeoTech Academy" {
		t.Fatalf("expected institution, got %q", resolved.Institution)
	}
	if resolved.PhotoRef != "photos/jane.png" {
		t.Fatalf("expected photo ref, got %q", resolved.PhotoRef)
	}
}

func TestResolveAdminAndCEO(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	if _, err := s.Create(ctx, store.PartitionAdminUser, map[string]any{
		"studentID": "AD-1", "studentName": "ada admin",
	}); err != nil {
		t.Fatalf("seed admin: %v", err)
	}
	if _, err := s.Create(ctx, store.PartitionCeo, map[string]any{
		"studentID": "CEO-1", "studentName": "carol chief",
	}); err != nil {
		t.Fatalf("seed ceo: %v", err)
	}
	resolver := NewResolver(s)

	admin, err := resolver.Resolve(ctx, Credential{ExternalID: "AD-1", DisplayName: "Ada Admin"})
	if err != nil {
		t.Fatalf("resolve admin: %v", err)
	}
	if admin.Role != RoleAdmin {
		t.Fatalf("expected Admin role, got %v", admin.Role)
	}
	if admin.Course != "" || admin.Institution != "" {
		t.Fatalf("expected no student fields on admin, got %+v", admin)
	}

	ceo, err := resolver.Resolve(ctx, Credential{ExternalID: "CEO-1", DisplayName: "Carol Chief"})
	if err != nil {
		t.Fatalf("resolve ceo: %v", err)
	}
	if ceo.Role != RoleCEO {
		t.Fatalf("expected CEO role, got %v", ceo.Role)
	}
}

func TestResolvePriorityShortCircuit(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	// Same credential pair in the Student and Admin partitions: the Student
	// partition is probed first and wins.
	if _, err := s.Create(ctx, store.PartitionRegistration, map[string]any{
		"studentID": "DUP-1", "studentName": "dup name", "course": "Law",
	}); err != nil {
		t.Fatalf("seed student: %v", err)
	}
	if _, err := s.Create(ctx, store.PartitionAdminUser, map[string]any{
		"studentID": "DUP-1", "studentName": "dup name",
	}); err != nil {
		t.Fatalf("seed admin: %v", err)
	}

	queried := make([]string, 0)
	counting := &countingQuerier{inner: s, partitions: &queried}
	resolver := NewResolver(counting)

	resolved, err := resolver.Resolve(ctx, Credential{ExternalID: "DUP-1", DisplayName: "dup name"})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved.Role != RoleStudent {
		t.Fatalf("expected Student to win, got %v", resolved.Role)
	}
	if len(queried) != 1 || queried[0] != store.PartitionRegistration {
		t.Fatalf("expected only Registration queried, got %v", queried)
	}
}

func TestResolveNotFound(t *testing.T) {
	resolver := NewResolver(memory.New())

	_, err := resolver.Resolve(context.Background(), Credential{ExternalID: "nope", DisplayName: "nobody"})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestResolveInvalidCredentialSkipsStore(t *testing.T) {
	queried := make([]string, 0)
	counting := &countingQuerier{inner: memory.New(), partitions: &queried}
	resolver := NewResolver(counting)

	tests := []Credential{
		{ExternalID: "", DisplayName: "jane"},
		{ExternalID: "A1", DisplayName: ""},
		{ExternalID: "A1", DisplayName: "   "},
	}
	for _, credential := range tests {
		if _, err := resolver.Resolve(context.Background(), credential); !errors.Is(err, ErrInvalidCredential) {
			t.Fatalf("expected ErrInvalidCredential for %+v, got %v", credential, err)
		}
	}
	if len(queried) != 0 {
		t.Fatalf("expected no partition queries, got %v", queried)
	}
}

func TestResolveStoreUnavailable(t *testing.T) {
	resolver := NewResolver(failingQuerier{})

	_, err := resolver.Resolve(context.Background(), Credential{ExternalID: "A1", DisplayName: "jane"})
	if apperrors.CodeOf(err) != apperrors.CodeStoreUnavailable {
		t.Fatalf("expected StoreUnavailable, got %v", err)
	}
	if errors.Is(err, ErrNotFound) {
		t.Fatalf("store failures must not be conflated with NotFound")
	}
}

func TestResolveRecordsLoginEvent(t *testing.T) {
	s := memory.New()
	seedStudent(t, s)
	fixed := time.Date(2026, 8, 29, 9, 30, 0, 0, time.UTC)
	resolver := NewResolver(s, WithAuditLog(s), WithClock(func() time.Time { return fixed }))

	if _, err := resolver.Resolve(context.Background(), Credential{ExternalID: "A1B2C3D4", DisplayName: "Jane Doe"}); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	logs, err := s.Get(context.Background(), store.Query{Partition: store.PartitionLoginLogs})
	if err != nil {
		t.Fatalf("get logs: %v", err)
	}
	if len(logs) != 1 {
		t.Fatalf("expected 1 login event, got %d", len(logs))
	}
	if logs[0].Field("role") != "Student" {
		t.Fatalf("expected Student event, got %q", logs[0].Field("role"))
	}
	if logs[0].Field("loggedInAt") != "2026-08-29T09:30:00Z" {
		t.Fatalf("unexpected loggedInAt %q", logs[0].Field("loggedInAt"))
	}
	if logs[0].Field("institution") != "LeoTech Academy" {
		t.Fatalf("expected institution on student event, got %q", logs[0].Field("institution"))
	}
}

func TestResolveAuditFailureIsIsolated(t *testing.T) {
	s := memory.New()
	seedStudent(t, s)
	resolver := NewResolver(s, WithAuditLog(failingMutator{}))

	resolved, err := resolver.Resolve(context.Background(), Credential{ExternalID: "A1B2C3D4", DisplayName: "jane doe"})
	if err != nil {
		t.Fatalf("expected resolution to succeed despite audit failure, got %v", err)
	}
	if resolved.Role != RoleStudent {
		t.Fatalf("expected Student role, got %v", resolved.Role)
	}
}

type countingQuerier struct {
	inner      store.Querier
	partitions *[]string
}

func (c *countingQuerier) Get(ctx context.Context, q store.Query) ([]store.Record, error) {
	*c.partitions = append(*c.partitions, q.Partition)
	return c.inner.Get(ctx, q)
}

type failingQuerier struct{}

func (failingQuerier) Get(context.Context, store.Query) ([]store.Record, error) {
	return nil, errors.New("connection refused")
}

type failingMutator struct{}

func (failingMutator) Create(context.Context, string, map[string]any) (store.Record, error) {
	return store.Record{}, errors.New("audit backend down")
}

func (failingMutator) Update(context.Context, string, string, map[string]any) (store.Record, error) {
	return store.Record{}, errors.New("audit backend down")
}

func (failingMutator) Delete(context.Context, string, string) error {
	return errors.New("audit backend down")
}
