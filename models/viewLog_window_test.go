package models

import (
	"testing"
	"time"
)

func TestShouldRecordView(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	if !shouldRecordView(nil, now) {
		t.Fatalf("first view must always be recorded")
	}

	within := now.Add(-30 * time.Minute)
	if shouldRecordView(&within, now) {
		t.Fatalf("view inside the window must be deduplicated")
	}

	exactly := now.Add(-ViewLogWindow)
	if !shouldRecordView(&exactly, now) {
		t.Fatalf("view exactly at the window boundary must be recorded")
	}

	past := now.Add(-2 * time.Hour)
	if !shouldRecordView(&past, now) {
		t.Fatalf("view after the window must be recorded")
	}
}
