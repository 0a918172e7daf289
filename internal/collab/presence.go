package collab

import (
	"fmt"
	"time"
)

// PresenceTTL bounds how long a roster entry stays active without a refresh.
// Eviction runs inline on every roster read and write instead of on a timer;
// rosters are small (collaborators on one chat), so the O(n) filter is cheap.
const PresenceTTL = 5 * time.Minute

// UpsertEntry merges entry into the roster keyed by email: an existing entry
// for the same identity is replaced in place, otherwise the entry is appended.
// LastActiveAt is always refreshed to now. The result is evicted before return,
// so the roster never carries stale entries out of a write.
func UpsertEntry(roster []PresenceEntry, entry PresenceEntry, now time.Time) []PresenceEntry {
	entry.LastActiveAt = now
	if entry.Cursor == (Cursor{}) {
		entry.Cursor = Cursor{Position: 0, Color: UserColor(entry.Email)}
	}

	replaced := false
	merged := make([]PresenceEntry, 0, len(roster)+1)
	for _, existing := range roster {
		if existing.Email == entry.Email {
			merged = append(merged, entry)
			replaced = true
			continue
		}
		merged = append(merged, existing)
	}
	if !replaced {
		merged = append(merged, entry)
	}
	return EvictStale(merged, now, PresenceTTL)
}

// RemoveEntry drops the identity's entry from the roster if present.
func RemoveEntry(roster []PresenceEntry, email string) []PresenceEntry {
	remaining := make([]PresenceEntry, 0, len(roster))
	for _, entry := range roster {
		if entry.Email == email {
			continue
		}
		remaining = append(remaining, entry)
	}
	return remaining
}

// EvictStale filters out every entry whose LastActiveAt is at or beyond the
// TTL horizon. Deterministic given now; entries exactly at now-ttl are stale.
func EvictStale(roster []PresenceEntry, now time.Time, ttl time.Duration) []PresenceEntry {
	cutoff := now.Add(-ttl)
	active := make([]PresenceEntry, 0, len(roster))
	for _, entry := range roster {
		if entry.LastActiveAt.After(cutoff) {
			active = append(active, entry)
		}
	}
	return active
}

// UserColor derives a stable display color from the identity so every client
// renders the same cursor color for a given participant.
func UserColor(email string) string {
	var hash int32
	for _, char := range email {
		hash = char + ((hash << 5) - hash)
	}
	hue := hash % 360
	if hue < 0 {
		hue += 360
	}
	return fmt.Sprintf("hsl(%d, 70%%, 60%%)", hue)
}
