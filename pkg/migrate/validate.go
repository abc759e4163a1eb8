package migrate

import (
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"sort"
	"strings"

	"go.uber.org/multierr"
)

var sqlFileRe = regexp.MustCompile(`^(\d{14})_[a-z0-9_]+\.sql$`)

// ValidateDir validates a migrations root on disk. See ValidateFS.
func ValidateDir(root string) error {
	if root == "" {
		return fmt.Errorf("dir is required")
	}
	return ValidateFS(os.DirFS(root))
}

// ValidateEmbedded validates the migrations compiled into the binary.
func ValidateEmbedded() error {
	sub, err := fs.Sub(embedded, "migrations")
	if err != nil {
		return err
	}
	return ValidateFS(sub)
}

// ValidateFS checks every dialect directory for well-formed, unique,
// goose-annotated files and requires all dialects to carry the same set.
func ValidateFS(fsys fs.FS) error {
	var (
		errs     error
		baseline []string
	)
	for _, dialect := range dialectDirs {
		names, err := validateDialect(fsys, dialect)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		if baseline == nil {
			baseline = names
			continue
		}
		if strings.Join(names, ",") != strings.Join(baseline, ",") {
			errs = multierr.Append(errs, fmt.Errorf("%s migrations %v differ from %s migrations %v", dialect, names, dialectDirs[0], baseline))
		}
	}
	return errs
}

func validateDialect(fsys fs.FS, dialect string) ([]string, error) {
	entries, err := fs.ReadDir(fsys, dialect)
	if err != nil {
		return nil, fmt.Errorf("read %s migrations: %w", dialect, err)
	}

	seen := map[string]string{}
	var names []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".sql") {
			continue
		}
		m := sqlFileRe.FindStringSubmatch(name)
		if m == nil {
			return nil, fmt.Errorf("%s: invalid migration filename %q (expected YYYYMMDDHHMMSS_name.sql)", dialect, name)
		}
		if prev, ok := seen[m[1]]; ok {
			return nil, fmt.Errorf("%s: duplicate migration version %s in %q and %q", dialect, m[1], prev, name)
		}
		seen[m[1]] = name

		b, err := fs.ReadFile(fsys, dialect+"/"+name)
		if err != nil {
			return nil, fmt.Errorf("read %s/%s: %w", dialect, name, err)
		}
		txt := string(b)
		for _, marker := range []string{"-- +goose Up", "-- +goose Down"} {
			if !strings.Contains(txt, marker) {
				return nil, fmt.Errorf("%s: migration %q missing %q", dialect, name, marker)
			}
		}
		names = append(names, name)
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("no %s migrations found", dialect)
	}
	sort.Strings(names)
	return names, nil
}
