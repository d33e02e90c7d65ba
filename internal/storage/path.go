package storage

import (
	"fmt"
	"path"
	"regexp"
	"strings"
	"time"
)

var pathComponentPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,127}$`)

// BuildHistoryPath lays out archived history batches by UTC date and hour, e.g.
// history/date=2026-02-19/hour=09/part-1771491900000000000-00003.parquet.
func BuildHistoryPath(prefix string, flushedAt time.Time, sequence int) (string, error) {
	parts, err := splitPrefix(prefix)
	if err != nil {
		return "", err
	}
	if sequence < 0 {
		return "", fmt.Errorf("sequence must be >= 0")
	}

	ts := flushedAt.UTC()
	parts = append(parts,
		fmt.Sprintf("date=%04d-%02d-%02d", ts.Year(), ts.Month(), ts.Day()),
		fmt.Sprintf("hour=%02d", ts.Hour()),
		fmt.Sprintf("part-%d-%05d.parquet", ts.UnixNano(), sequence),
	)
	return path.Join(parts...), nil
}

func splitPrefix(prefix string) ([]string, error) {
	prefix = strings.Trim(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		return nil, nil
	}
	parts := strings.Split(prefix, "/")
	for _, part := range parts {
		if err := validatePathComponent(part, "path prefix"); err != nil {
			return nil, err
		}
	}
	return parts, nil
}

func validatePathComponent(value, field string) error {
	if !pathComponentPattern.MatchString(value) {
		return fmt.Errorf("invalid %s: %q", field, value)
	}
	return nil
}
