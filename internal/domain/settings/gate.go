package settings

import "time"

// CanRelease decides whether certificate payloads may be exposed. A nil
// release date means no gate is configured. Both the public search (which
// hides the download link) and the direct download endpoint must call this
// same predicate; gating only one of them is a bypass.
func CanRelease(now time.Time, releaseDate *time.Time) bool {
	if releaseDate == nil {
		return true
	}
	return !now.Before(*releaseDate)
}
