package identity

import (
	"time"

	"github.com/myunifiles/unifiles/internal/store"
)

// missingFieldValue is recorded when a student record lacks an optional
// field, matching the audit log's display convention.
const missingFieldValue = "—"

// LoginEventFields builds the append-only audit document for a successful
// resolution. The field set varies by role: students carry institution and
// course context, admins and CEOs only their ID and name.
func LoginEventFields(resolved Identity, at time.Time) map[string]any {
	fields := map[string]any{
		"role":       string(resolved.Role),
		"loggedInAt": at.UTC().Format(time.RFC3339),
	}
	switch resolved.Role {
	case RoleStudent:
		fields["studentID"] = resolved.ExternalID
		fields["studentName"] = resolved.DisplayName
		fields["institution"] = orMissing(resolved.Institution)
		fields["course"] = orMissing(resolved.Course)
	case RoleAdmin:
		fields["adminID"] = resolved.ExternalID
		fields["adminName"] = resolved.DisplayName
	case RoleCEO:
		fields["ceoID"] = resolved.ExternalID
		fields["ceoName"] = resolved.DisplayName
	}
	return fields
}

func orMissing(value string) string {
	if value == "" {
		return missingFieldValue
	}
	return value
}

// StartOfDay truncates a time to midnight UTC.
func StartOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// TodayLoginsQuery scopes the LoginLogs partition to events recorded since
// the start of the current day, for live audit views.
func TodayLoginsQuery(now time.Time) store.Query {
	return store.Query{
		Partition: store.PartitionLoginLogs,
		Predicates: []store.Predicate{
			store.Gte("loggedInAt", StartOfDay(now).Format(time.RFC3339)),
		},
	}
}
