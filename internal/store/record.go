// Package store defines the record store model consumed by the unifiles
// core: partitioned records, query predicates, and the query, mutation, and
// live-subscription interfaces its backends implement.
package store

import "time"

// Well-known partitions. Each partition is an independent collection of
// records scoped to one role or category.
const (
	PartitionRegistration  = "Registration"
	PartitionAdminUser     = "AdminUser"
	PartitionCeo           = "Ceo"
	PartitionLoginLogs     = "LoginLogs"
	PartitionPastQuestions = "PastQuestions"
	PartitionCourses       = "Courses"
	PartitionLevels        = "Levels"
	PartitionModules       = "Modules"
	PartitionAcademicYears = "AcademicYears"
	PartitionInstitutions  = "Institutions"
)

// Record is a document held by one partition. The store owns records
// exclusively; callers hold read-only copies.
type Record struct {
	ID        string
	Partition string
	Fields    map[string]any
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Field returns the string value of a document field, or empty when the
// field is missing or not a string.
func (r Record) Field(name string) string {
	value, ok := r.Fields[name]
	if !ok {
		return ""
	}
	s, ok := value.(string)
	if !ok {
		return ""
	}
	return s
}

// Clone returns a deep copy of the record so cached copies can be handed
// out without aliasing the store's state.
func (r Record) Clone() Record {
	cloned := r
	cloned.Fields = cloneFields(r.Fields)
	return cloned
}

func cloneFields(fields map[string]any) map[string]any {
	if fields == nil {
		return nil
	}
	cloned := make(map[string]any, len(fields))
	for key, value := range fields {
		switch v := value.(type) {
		case []any:
			list := make([]any, len(v))
			copy(list, v)
			cloned[key] = list
		case map[string]any:
			cloned[key] = cloneFields(v)
		default:
			cloned[key] = value
		}
	}
	return cloned
}

// Snapshot is the full current result set for a live query at a point in
// time, tagged with the partition version it was computed at.
type Snapshot struct {
	Partition string
	Version   int64
	Records   []Record
}
