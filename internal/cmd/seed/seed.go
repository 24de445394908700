// Package seed parses seed command flags and populates a running record
// store with reference catalogs and demo principals.
package seed

import (
	"context"
	"flag"
	"fmt"
	"io"

	entrypoint "github.com/myunifiles/unifiles/internal/platform/cmd"
	"github.com/myunifiles/unifiles/internal/records"
	"github.com/myunifiles/unifiles/internal/store"
	"github.com/myunifiles/unifiles/internal/store/client"
)

// Config holds seed command configuration.
type Config struct {
	StoreURL string `env:"UNIFILES_STORE_URL" envDefault:"http://localhost:8090"`
	Verbose  bool
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}

	fs.StringVar(&cfg.StoreURL, "store-url", cfg.StoreURL, "record store base URL")
	fs.BoolVar(&cfg.Verbose, "v", cfg.Verbose, "verbose output")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run seeds the record store reachable at the configured URL.
func Run(ctx context.Context, cfg Config, out io.Writer) error {
	if out == nil {
		out = io.Discard
	}
	backend := client.New(cfg.StoreURL)
	return Seed(ctx, backend, cfg.Verbose, out)
}

// fixture is one record to ensure exists, keyed for idempotency.
type fixture struct {
	partition string
	keyField  string
	fields    map[string]any
}

// Seed writes the fixture set through the given backend. Records whose key
// field already matches an existing record are left alone, so reruns are
// safe.
func Seed(ctx context.Context, backend store.Store, verbose bool, out io.Writer) error {
	mutator := records.NewMutator(backend)

	created, skipped := 0, 0
	for _, f := range fixtures() {
		keyValue, _ := f.fields[f.keyField].(string)
		existing, err := backend.Get(ctx, store.Query{
			Partition:  f.partition,
			Predicates: []store.Predicate{store.Eq(f.keyField, keyValue)},
		})
		if err != nil {
			return fmt.Errorf("check %s %q: %w", f.partition, keyValue, err)
		}
		if len(existing) > 0 {
			skipped++
			if verbose {
				fmt.Fprintf(out, "skip %s %q (exists)\n", f.partition, keyValue)
			}
			continue
		}

		if _, err := mutator.Create(ctx, f.partition, f.fields); err != nil {
			return fmt.Errorf("seed %s %q: %w", f.partition, keyValue, err)
		}
		created++
		if verbose {
			fmt.Fprintf(out, "seed %s %q\n", f.partition, keyValue)
		}
	}

	fmt.Fprintf(out, "seeded %d records (%d already present)\n", created, skipped)
	return nil
}

func fixtures() []fixture {
	catalog := func(partition, name string) fixture {
		return fixture{
			partition: partition,
			keyField:  "name",
			fields:    map[string]any{"name": name},
		}
	}

	all := []fixture{
		catalog(store.PartitionInstitutions, "National Open University"),
		catalog(store.PartitionInstitutions, "City Polytechnic"),
		catalog(store.PartitionCourses, "CompSci"),
		catalog(store.PartitionCourses, "Law"),
		catalog(store.PartitionCourses, "Economics"),
		catalog(store.PartitionLevels, "100"),
		catalog(store.PartitionLevels, "200"),
		catalog(store.PartitionLevels, "300"),
		catalog(store.PartitionLevels, "400"),
		catalog(store.PartitionModules, "First Semester"),
		catalog(store.PartitionModules, "Second Semester"),
		catalog(store.PartitionAcademicYears, "2025/2026"),
		catalog(store.PartitionAcademicYears, "2026/2027"),
	}

	all = append(all,
		fixture{
			partition: store.PartitionRegistration,
			keyField:  "studentID",
			fields: map[string]any{
				"studentID":   "A1B2C3D4",
				"studentName": "jane doe",
				"institution": "National Open University",
				"course":      "CompSci",
				"userPhoto":   "",
			},
		},
		fixture{
			partition: store.PartitionAdminUser,
			keyField:  "studentID",
			fields: map[string]any{
				"studentID":   "ADM-0001",
				"studentName": "sam admin",
			},
		},
		fixture{
			partition: store.PartitionCeo,
			keyField:  "studentID",
			fields: map[string]any{
				"studentID":   "CEO-0001",
				"studentName": "pat chief",
			},
		},
	)
	return all
}
