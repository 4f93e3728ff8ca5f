package util

import (
	"strconv"
	"testing"
	"time"
)

func TestParseTimeRFC3339(t *testing.T) {
	s := "2024-10-10T10:10:10Z"
	got, ok := ParseTime(s)
	if !ok {
		t.Fatalf("expected ok")
	}
	if got.UTC().Format(time.RFC3339) != s {
		t.Fatalf("unexpected time %v", got)
	}
}

func TestParseTimeUnix(t *testing.T) {
	ts := time.Date(2024, 10, 10, 10, 10, 10, 0, time.UTC).Unix()
	got, ok := ParseTime(strconv.FormatInt(ts, 10))
	if !ok {
		t.Fatalf("expected ok")
	}
	if got.Unix() != ts {
		t.Fatalf("unexpected unix %v", got.Unix())
	}
}

func TestParseTimeDefault(t *testing.T) {
	def := time.Date(2024, 10, 10, 10, 10, 10, 0, time.UTC)
	got := ParseTimeDefault("", def)
	if !got.Equal(def) {
		t.Fatalf("expected default")
	}
}

func TestDateInUsesLocation(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skip("tzdata unavailable")
	}
	// 02:00 UTC on the 10th is still the 9th in New York.
	got := DateIn(time.Date(2025, 10, 10, 2, 0, 0, 0, time.UTC), ny)
	if !got.Equal(Date(2025, 10, 9)) {
		t.Fatalf("unexpected date %s", FormatDate(got))
	}
}

func TestParseDate(t *testing.T) {
	got, ok := ParseDate("2025-03-14")
	if !ok || !got.Equal(Date(2025, 3, 14)) {
		t.Fatalf("unexpected %v %v", got, ok)
	}
	if _, ok := ParseDate("14/03/2025"); ok {
		t.Fatalf("expected failure")
	}
}
