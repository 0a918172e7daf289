package collab

import (
	"testing"
	"time"
)

var presenceNow = time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)

func TestUpsertEntryAppendsNewIdentity(t *testing.T) {
	roster := UpsertEntry(nil, PresenceEntry{Email: "a@x.com", Name: "Ada"}, presenceNow)

	if len(roster) != 1 {
		t.Fatalf("expected one entry, got %d", len(roster))
	}
	if roster[0].Email != "a@x.com" {
		t.Fatalf("unexpected email %q", roster[0].Email)
	}
	if !roster[0].LastActiveAt.Equal(presenceNow) {
		t.Fatalf("expected last active to be refreshed to now")
	}
	if roster[0].Cursor.Color == "" {
		t.Fatalf("expected a derived cursor color")
	}
}

func TestUpsertEntryReplacesExistingIdentityInPlace(t *testing.T) {
	earlier := presenceNow.Add(-time.Minute)
	roster := []PresenceEntry{
		{Email: "a@x.com", Name: "Ada", LastActiveAt: earlier, Cursor: Cursor{Position: 3, Color: "hsl(1, 70%, 60%)"}},
		{Email: "b@y.com", Name: "Ben", LastActiveAt: earlier},
	}

	updated := UpsertEntry(roster, PresenceEntry{
		Email:  "a@x.com",
		Name:   "Ada",
		Cursor: Cursor{Position: 42, Color: "hsl(1, 70%, 60%)"},
	}, presenceNow)

	if len(updated) != 2 {
		t.Fatalf("expected two entries, got %d", len(updated))
	}
	if updated[0].Email != "a@x.com" {
		t.Fatalf("expected replacement to keep roster position, got %q first", updated[0].Email)
	}
	if updated[0].Cursor.Position != 42 {
		t.Fatalf("expected cursor position 42, got %d", updated[0].Cursor.Position)
	}
	if !updated[0].LastActiveAt.Equal(presenceNow) {
		t.Fatalf("expected last active refreshed to now")
	}
	if !updated[1].LastActiveAt.Equal(earlier) {
		t.Fatalf("other entries must not be touched")
	}
}

func TestUpsertEntryNeverDuplicatesIdentity(t *testing.T) {
	roster := UpsertEntry(nil, PresenceEntry{Email: "a@x.com"}, presenceNow)
	roster = UpsertEntry(roster, PresenceEntry{Email: "a@x.com"}, presenceNow.Add(time.Second))
	roster = UpsertEntry(roster, PresenceEntry{Email: "a@x.com"}, presenceNow.Add(2*time.Second))

	if len(roster) != 1 {
		t.Fatalf("expected a single entry per identity, got %d", len(roster))
	}
}

func TestEvictStaleBoundary(t *testing.T) {
	ttl := 5 * time.Minute
	cutoff := presenceNow.Add(-ttl)

	tests := []struct {
		name       string
		lastActive time.Time
		kept       bool
	}{
		{name: "one millisecond inside ttl", lastActive: cutoff.Add(time.Millisecond), kept: true},
		{name: "exactly at ttl", lastActive: cutoff, kept: false},
		{name: "one millisecond beyond ttl", lastActive: cutoff.Add(-time.Millisecond), kept: false},
		{name: "fresh", lastActive: presenceNow, kept: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			roster := []PresenceEntry{{Email: "a@x.com", LastActiveAt: tc.lastActive}}
			active := EvictStale(roster, presenceNow, ttl)
			if tc.kept && len(active) != 1 {
				t.Fatalf("expected entry to survive eviction")
			}
			if !tc.kept && len(active) != 0 {
				t.Fatalf("expected entry to be evicted")
			}
		})
	}
}

func TestUpsertEntryEvictsStaleEntries(t *testing.T) {
	stale := presenceNow.Add(-PresenceTTL)
	roster := []PresenceEntry{{Email: "old@x.com", LastActiveAt: stale}}

	updated := UpsertEntry(roster, PresenceEntry{Email: "new@y.com"}, presenceNow)

	if len(updated) != 1 {
		t.Fatalf("expected stale entry to be evicted on write, got %d entries", len(updated))
	}
	if updated[0].Email != "new@y.com" {
		t.Fatalf("expected only the fresh entry to remain")
	}
}

func TestRemoveEntry(t *testing.T) {
	roster := []PresenceEntry{
		{Email: "a@x.com", LastActiveAt: presenceNow},
		{Email: "b@y.com", LastActiveAt: presenceNow},
	}

	remaining := RemoveEntry(roster, "a@x.com")
	if len(remaining) != 1 || remaining[0].Email != "b@y.com" {
		t.Fatalf("expected only b@y.com to remain, got %#v", remaining)
	}

	unchanged := RemoveEntry(remaining, "missing@z.com")
	if len(unchanged) != 1 {
		t.Fatalf("removing an absent identity must be a no-op")
	}
}

func TestUserColorIsStable(t *testing.T) {
	first := UserColor("a@x.com")
	second := UserColor("a@x.com")
	if first != second {
		t.Fatalf("expected stable color, got %q and %q", first, second)
	}
	if first == UserColor("b@y.com") {
		t.Fatalf("expected distinct identities to usually differ")
	}
}
