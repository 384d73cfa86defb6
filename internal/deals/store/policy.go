package store

import "fmt"

// MergePolicy decides how remote changes merge into local state.
type MergePolicy string

const (
	// LastEventWins applies every remote UPDATE unconditionally. A delayed
	// echo can overwrite a newer local edit, and a stale INSERT after a local
	// delete resurrects the deal.
	LastEventWins MergePolicy = "last_event_wins"
	// RevisionGated drops remote UPDATEs older than the local revision and
	// keeps delete tombstones so stale echoes cannot resurrect a deal.
	RevisionGated MergePolicy = "revision"
)

// ParseMergePolicy maps a config value to a policy.
func ParseMergePolicy(raw string) (MergePolicy, error) {
	switch MergePolicy(raw) {
	case LastEventWins, "":
		return LastEventWins, nil
	case RevisionGated:
		return RevisionGated, nil
	default:
		return "", fmt.Errorf("unknown merge policy %q", raw)
	}
}
