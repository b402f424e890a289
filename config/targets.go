package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// Targets is the sync-target document (groups_to_sync.json). Any key with a
// non-empty list is processed; absent or empty keys are skipped.
type Targets struct {
	// GroupIDs are directory group object identifiers to resolve transitively.
	GroupIDs []string `json:"group_ids"`
	// GroupNames are directory group display names, resolved to an identifier
	// via a prefix-match query before syncing.
	GroupNames []string `json:"group_names"`
	// Users are raw user display names to create directly in the account,
	// with no group attachment.
	Users []string `json:"users"`
}

// LoadTargets reads and parses the sync-target document.
func LoadTargets(path string) (*Targets, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read targets file: %w", err)
	}

	var t Targets
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("failed to parse targets JSON: %w", err)
	}
	return &t, nil
}

// Empty reports whether the document names nothing to sync.
func (t *Targets) Empty() bool {
	return len(t.GroupIDs) == 0 && len(t.GroupNames) == 0 && len(t.Users) == 0
}
