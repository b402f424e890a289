package workingset

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/kpkab/nested-ad-group-to-flat-db-group/logging"
)

// ErrMalformed reports a working-set file whose content cannot be parsed back
// into the expected record structure.
var ErrMalformed = errors.New("malformed working set file")

var storeLog = logging.NewLogger("workingset")

// Kind selects one of the three per-group working-set files.
type Kind string

const (
	KindGroups            Kind = "groups"
	KindUsers             Kind = "users"
	KindServicePrincipals Kind = "sp"
)

var knownKinds = []Kind{KindGroups, KindUsers, KindServicePrincipals}

func (k Kind) suffix() string {
	return "_tmp_" + string(k) + ".txt"
}

// Store persists resolved membership partitions as JSON-lines files under a
// single root directory, one file per (group identifier, kind). Keys are
// tracked in an explicit index; group identifiers are never recovered by
// parsing arbitrary filenames.
//
// The store is append-only within a run. Callers must Clear before the first
// Persist of a run, otherwise records from the prior run leak into the
// current reconciliation.
type Store struct {
	root    string
	index   map[string]map[Kind]bool
	unknown []string
}

// NewStore creates the root directory if needed and indexes any files already
// present (a prior run's working set survives until the next Clear).
func NewStore(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create working set directory %s: %w", root, err)
	}
	s := &Store{root: root}
	if err := s.rescan(); err != nil {
		return nil, err
	}
	return s, nil
}

// Root returns the working-set directory.
func (s *Store) Root() string {
	return s.root
}

func (s *Store) rescan() error {
	s.index = make(map[string]map[Kind]bool)
	s.unknown = nil

	entries, err := os.ReadDir(s.root)
	if err != nil {
		return fmt.Errorf("failed to read working set directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()

		matched := false
		for _, kind := range knownKinds {
			if groupID, ok := strings.CutSuffix(name, kind.suffix()); ok && groupID != "" {
				s.mark(groupID, kind)
				matched = true
				break
			}
		}
		if !matched {
			s.unknown = append(s.unknown, name)
		}
	}
	return nil
}

func (s *Store) mark(groupID string, kind Kind) {
	if s.index[groupID] == nil {
		s.index[groupID] = make(map[Kind]bool)
	}
	s.index[groupID][kind] = true
}

func (s *Store) path(groupID string, kind Kind) string {
	return filepath.Join(s.root, groupID+kind.suffix())
}

// FileName returns the conventional file name for a (group, kind) key.
func (s *Store) FileName(groupID string, kind Kind) string {
	return groupID + kind.suffix()
}

// PersistGroups appends group records to the group's working set.
func (s *Store) PersistGroups(groupID string, recs []GroupRecord) error {
	return persist(s, groupID, KindGroups, recs)
}

// PersistUsers appends user records to the group's working set.
func (s *Store) PersistUsers(groupID string, recs []UserRecord) error {
	return persist(s, groupID, KindUsers, recs)
}

// PersistServicePrincipals appends service-principal records to the group's
// working set.
func (s *Store) PersistServicePrincipals(groupID string, recs []ServicePrincipalRecord) error {
	return persist(s, groupID, KindServicePrincipals, recs)
}

// persist appends one JSON record per line. An empty slice leaves the file
// untouched so that Has stays false for kinds with nothing pending.
func persist[T any](s *Store, groupID string, kind Kind, recs []T) error {
	if len(recs) == 0 {
		return nil
	}

	file, err := os.OpenFile(s.path(groupID, kind), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open working set file: %w", err)
	}
	defer file.Close()

	for _, rec := range recs {
		line, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("failed to serialize working set record: %w", err)
		}
		if _, err := file.Write(append(line, '\n')); err != nil {
			return fmt.Errorf("failed to write working set record: %w", err)
		}
	}

	s.mark(groupID, kind)
	storeLog.Debug("Persisted %d %s record(s) for group %s", len(recs), kind, groupID)
	return nil
}

// LoadGroups reads back the group partition for a target group.
func (s *Store) LoadGroups(groupID string) ([]GroupRecord, error) {
	return load[GroupRecord](s, groupID, KindGroups)
}

// LoadUsers reads back the user partition for a target group.
func (s *Store) LoadUsers(groupID string) ([]UserRecord, error) {
	return load[UserRecord](s, groupID, KindUsers)
}

// LoadServicePrincipals reads back the service-principal partition for a
// target group.
func (s *Store) LoadServicePrincipals(groupID string) ([]ServicePrincipalRecord, error) {
	return load[ServicePrincipalRecord](s, groupID, KindServicePrincipals)
}

func load[T any](s *Store, groupID string, kind Kind) ([]T, error) {
	file, err := os.Open(s.path(groupID, kind))
	if err != nil {
		return nil, fmt.Errorf("failed to open working set file: %w", err)
	}
	defer file.Close()

	var recs []T
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var rec T
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			return nil, fmt.Errorf("%w: %s for group %s: %v", ErrMalformed, kind, groupID, err)
		}
		recs = append(recs, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read working set file: %w", err)
	}
	return recs, nil
}

// Has reports whether a working-set file exists for the (group, kind) key.
func (s *Store) Has(groupID string, kind Kind) bool {
	return s.index[groupID][kind]
}

// GroupIDs returns the identifiers of every target group present in the
// working set, sorted for deterministic iteration.
func (s *Store) GroupIDs() []string {
	ids := make([]string, 0, len(s.index))
	for id := range s.index {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// UnknownFiles returns files under the root that match none of the three
// working-set kinds. Their presence means some other process wrote into the
// working-set directory.
func (s *Store) UnknownFiles() []string {
	return append([]string(nil), s.unknown...)
}

// Clear deletes every file under the working-set root. Per-file deletion
// failures are logged and skipped so the remaining files still get removed.
func (s *Store) Clear() error {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return fmt.Errorf("failed to read working set directory: %w", err)
	}

	if len(entries) == 0 {
		storeLog.Info("No working set files to delete")
		return nil
	}

	storeLog.Info("Deleting %d file(s) from working set directory %s", len(entries), s.root)
	for _, entry := range entries {
		path := filepath.Join(s.root, entry.Name())
		if err := os.Remove(path); err != nil {
			storeLog.Error("Failed to delete %s: %v", path, err)
			continue
		}
		storeLog.Debug("Deleted %s", path)
	}

	return s.rescan()
}
