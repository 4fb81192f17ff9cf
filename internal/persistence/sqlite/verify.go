package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// CheckMode picks the integrity pragma.
type CheckMode string

const (
	// QuickCheck skips index cross-checks and is linear in database size.
	QuickCheck CheckMode = "quick"
	// FullCheck also verifies every index against its table.
	FullCheck CheckMode = "full"
)

// ParseCheckMode accepts "quick" or "full" in any case.
func ParseCheckMode(s string) (CheckMode, error) {
	switch m := CheckMode(strings.ToLower(strings.TrimSpace(s))); m {
	case QuickCheck, FullCheck:
		return m, nil
	}
	return "", fmt.Errorf("invalid check mode %q: use quick or full", s)
}

func (m CheckMode) pragma() string {
	if m == FullCheck {
		return "PRAGMA integrity_check"
	}
	return "PRAGMA quick_check"
}

// VerifyIntegrity checks the database at path through a read-only handle and
// returns the problems sqlite reports. A healthy database yields no issues.
func VerifyIntegrity(ctx context.Context, path string, mode CheckMode) ([]string, error) {
	db, err := sql.Open("sqlite", dsn(path, 2*time.Second, true))
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s read-only: %w", path, err)
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, mode.pragma())
	if err != nil {
		return nil, fmt.Errorf("sqlite: %s check: %w", mode, err)
	}
	defer rows.Close()

	var issues []string
	for rows.Next() {
		var line string
		if err := rows.Scan(&line); err != nil {
			return nil, fmt.Errorf("sqlite: scan %s check: %w", mode, err)
		}
		if !strings.EqualFold(line, "ok") {
			issues = append(issues, line)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: %s check: %w", mode, err)
	}
	return issues, nil
}
