package migrate

import (
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var (
	sqlFileRe = regexp.MustCompile(`^(\d{14})_([a-z0-9_]+)\.sql$`)

	// ledger_entries is append-only; corrections are new journal rows.
	ledgerRewriteRe = regexp.MustCompile(`(?i)\b(update\s+ledger_entries|delete\s+from\s+ledger_entries|truncate\s+(table\s+)?ledger_entries)\b`)
)

type migrationFile struct {
	version int64
	name    string
	file    string
}

// list returns the migration files in src ordered by version.
func list(src Source) ([]migrationFile, error) {
	if src.Dir == "" {
		return nil, fmt.Errorf("dir is required")
	}
	fsys, dir := src.open()
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("read dir %q: %w", src, err)
	}

	var out []migrationFile
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		m := sqlFileRe.FindStringSubmatch(e.Name())
		if m == nil {
			return nil, fmt.Errorf("invalid migration filename %q (expected YYYYMMDDHHMMSS_name.sql)", e.Name())
		}
		version, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid migration version in %q: %w", e.Name(), err)
		}
		out = append(out, migrationFile{version: version, name: m[2], file: e.Name()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].version < out[j].version })
	return out, nil
}

// Validate checks filenames, goose annotations and the append-only journal rule.
func Validate(src Source) error {
	files, err := list(src)
	if err != nil {
		return err
	}
	fsys, dir := src.open()

	seen := map[int64]string{}
	for _, f := range files {
		if prev, ok := seen[f.version]; ok {
			return fmt.Errorf("duplicate migration version %d in %q and %q", f.version, prev, f.file)
		}
		seen[f.version] = f.file

		raw, err := fs.ReadFile(fsys, path.Join(dir, f.file))
		if err != nil {
			return fmt.Errorf("read file %q: %w", f.file, err)
		}
		if err := validateBody(f.file, string(raw)); err != nil {
			return err
		}
	}
	return nil
}

// ValidateDir validates the migrations stored under dir on disk.
func ValidateDir(dir string) error {
	return Validate(Disk(dir))
}

func validateBody(name, txt string) error {
	upIdx := strings.Index(txt, "-- +goose Up")
	if upIdx < 0 {
		return fmt.Errorf("migration %q missing \"-- +goose Up\"", name)
	}
	downIdx := strings.Index(txt, "-- +goose Down")
	if downIdx < 0 {
		return fmt.Errorf("migration %q missing \"-- +goose Down\"", name)
	}
	if downIdx < upIdx {
		return fmt.Errorf("migration %q declares Down before Up", name)
	}
	if begin, end := strings.Count(txt, "-- +goose StatementBegin"), strings.Count(txt, "-- +goose StatementEnd"); begin != end {
		return fmt.Errorf("migration %q has %d StatementBegin and %d StatementEnd", name, begin, end)
	}
	if ledgerRewriteRe.MatchString(txt[upIdx:downIdx]) {
		return fmt.Errorf("migration %q rewrites ledger_entries; post a correcting journal instead", name)
	}
	return nil
}
