package storage

import (
	"testing"
	"time"
)

func TestBuildHistoryPath(t *testing.T) {
	ts := time.Date(2026, time.February, 19, 4, 5, 0, 0, time.FixedZone("x", -5*3600))
	key, err := BuildHistoryPath("history", ts, 3)
	if err != nil {
		t.Fatalf("BuildHistoryPath() error = %v", err)
	}
	want := "history/date=2026-02-19/hour=09/part-1771491900000000000-00003.parquet"
	if key != want {
		t.Fatalf("BuildHistoryPath() = %q, want %q", key, want)
	}
}

func TestBuildHistoryPathNestedAndEmptyPrefix(t *testing.T) {
	ts := time.Date(2026, time.October, 16, 23, 0, 0, 0, time.UTC)
	key, err := BuildHistoryPath("/audit/sqlprompt/", ts, 0)
	if err != nil {
		t.Fatalf("BuildHistoryPath() error = %v", err)
	}
	if key != "audit/sqlprompt/date=2026-10-16/hour=23/part-1792191600000000000-00000.parquet" {
		t.Fatalf("BuildHistoryPath() = %q", key)
	}

	key, err = BuildHistoryPath("", ts, 1)
	if err != nil {
		t.Fatalf("BuildHistoryPath() error = %v", err)
	}
	if key != "date=2026-10-16/hour=23/part-1792191600000000000-00001.parquet" {
		t.Fatalf("BuildHistoryPath() = %q", key)
	}
}

func TestBuildHistoryPathRejectsInvalidInput(t *testing.T) {
	if _, err := BuildHistoryPath("../oops", time.Now(), 1); err == nil {
		t.Fatal("expected invalid prefix error")
	}
	if _, err := BuildHistoryPath("history", time.Now(), -1); err == nil {
		t.Fatal("expected negative sequence error")
	}
}
