package migrate

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"sync"

	"github.com/pressly/goose/v3"
)

// DefaultDir is where new migrations are written during development.
const DefaultDir = "pkg/migrate/migrations"

const dialect = "postgres"

//go:embed migrations/*.sql
var embedded embed.FS

// goose keeps its base filesystem and dialect in package state.
var gooseMu sync.Mutex

// Source locates a set of goose migrations. A nil FS reads Dir from disk.
type Source struct {
	FS  fs.FS
	Dir string
}

// Embedded returns the migrations compiled into the binary.
func Embedded() Source {
	return Source{FS: embedded, Dir: "migrations"}
}

// Disk returns the migrations under dir.
func Disk(dir string) Source {
	return Source{Dir: dir}
}

func (s Source) String() string {
	if s.FS == nil {
		return s.Dir
	}
	return "embedded:" + s.Dir
}

// open returns a filesystem rooted so that Dir resolves inside it.
func (s Source) open() (fs.FS, string) {
	if s.FS == nil {
		return os.DirFS(s.Dir), "."
	}
	return s.FS, s.Dir
}

func (s Source) prepare() error {
	if s.Dir == "" {
		return fmt.Errorf("migration dir is required")
	}
	goose.SetBaseFS(s.FS)
	if err := goose.SetDialect(dialect); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	return nil
}

// Run executes a goose command against db.
func Run(ctx context.Context, db *sql.DB, src Source, command string, args ...string) error {
	if db == nil {
		return fmt.Errorf("db is required")
	}
	gooseMu.Lock()
	defer gooseMu.Unlock()
	if err := src.prepare(); err != nil {
		return err
	}

	// RunContext prints status output to stdout (goose internal)
	if err := goose.RunContext(ctx, command, db, src.Dir, args...); err != nil {
		return fmt.Errorf("goose %s: %w", command, err)
	}
	return nil
}

// MigrateToVersion moves the schema up or down to targetVersion.
func MigrateToVersion(ctx context.Context, db *sql.DB, src Source, targetVersion string) error {
	if targetVersion == "" {
		return fmt.Errorf("targetVersion is required")
	}
	target, err := strconv.ParseInt(targetVersion, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid version %q (expected YYYYMMDDHHMMSS): %w", targetVersion, err)
	}

	gooseMu.Lock()
	defer gooseMu.Unlock()
	if err := src.prepare(); err != nil {
		return err
	}

	current, err := goose.GetDBVersion(db)
	if err != nil {
		return fmt.Errorf("get db version: %w", err)
	}

	switch {
	case current == target:
		return nil
	case current < target:
		if err := goose.UpToContext(ctx, db, src.Dir, target); err != nil {
			return fmt.Errorf("goose up-to %d: %w", target, err)
		}
	default:
		if err := goose.DownToContext(ctx, db, src.Dir, target); err != nil {
			return fmt.Errorf("goose down-to %d: %w", target, err)
		}
	}
	return nil
}

// Check fails when the database schema is behind the newest migration in src.
func Check(ctx context.Context, db *sql.DB, src Source) (current, latest int64, err error) {
	files, err := list(src)
	if err != nil {
		return 0, 0, err
	}
	if len(files) > 0 {
		latest = files[len(files)-1].version
	}

	gooseMu.Lock()
	defer gooseMu.Unlock()
	if err := src.prepare(); err != nil {
		return 0, latest, err
	}
	current, err = goose.GetDBVersionContext(ctx, db)
	if err != nil {
		return 0, latest, fmt.Errorf("get db version: %w", err)
	}
	if current < latest {
		return current, latest, fmt.Errorf("schema at %d is behind latest migration %d", current, latest)
	}
	return current, latest, nil
}
