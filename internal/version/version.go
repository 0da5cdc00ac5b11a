// Package version implements the Artifact Versioning & Migration Manager
// (C14): a semver-ordered catalog of artifact versions with forward/rollback
// migration paths and a migration log. Ordering is delegated to
// golang.org/x/mod/semver, the version-comparison library contributed by the
// AKJUS-bsc-erigon example, generalized here to data-artifact schema
// migration.
package version

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/mod/semver"
)

// Branch distinguishes the artifact family a version belongs to.
type Branch string

const (
	BranchInvoice  Branch = "invoice"
	BranchSettlement Branch = "settlement"
	BranchSecurity Branch = "security"
)

// MigrationStatus tracks one migration attempt's lifecycle.
type MigrationStatus string

const (
	MigrationPending    MigrationStatus = "PENDING"
	MigrationInProgress MigrationStatus = "IN_PROGRESS"
	MigrationCompleted  MigrationStatus = "COMPLETED"
	MigrationFailed     MigrationStatus = "FAILED"
	MigrationRolledBack MigrationStatus = "ROLLED_BACK"
)

var (
	// ErrUnknownVersion is returned when a referenced version isn't registered.
	ErrUnknownVersion = errors.New("version: unknown artifact version")
	// ErrNoPath is returned when no migration path connects two versions.
	ErrNoPath = errors.New("version: no migration path")
	// ErrVerificationFailed is returned when a migration's post-check fails.
	ErrVerificationFailed = errors.New("version: post-migration verification failed")
)

// MigrateFunc transforms an artifact forward from one version to the next.
type MigrateFunc func(artifact map[string]any) (map[string]any, error)

// VerifyFunc checks an artifact is well-formed at the version it claims.
type VerifyFunc func(artifact map[string]any) error

// ArtifactVersion is one entry in a branch's version history.
type ArtifactVersion struct {
	SemVer   string // e.g. "v1.2.0", must satisfy golang.org/x/mod/semver
	Branch   Branch
	Migrate  MigrateFunc // transforms the prior version's artifact into this one
	Rollback MigrateFunc // reverses Migrate
	Verify   VerifyFunc
}

// MigrationRecord is one append-only entry in the migration log.
type MigrationRecord struct {
	ID        string
	Branch    Branch
	FromVer   string
	ToVer     string
	Status    MigrationStatus
	StartedAt time.Time
	EndedAt   time.Time
	Err       string
}

// Manager tracks the registered versions per branch and the migration log.
type Manager struct {
	mu       sync.Mutex
	versions map[Branch][]*ArtifactVersion
	log      []MigrationRecord
	seq      int
	clock    func() time.Time
}

// NewManager creates an empty manager. clock defaults to time.Now.
func NewManager(clock func() time.Time) *Manager {
	if clock == nil {
		clock = time.Now
	}
	return &Manager{versions: make(map[Branch][]*ArtifactVersion), clock: clock}
}

// Register adds av to its branch's history, keeping the branch sorted by
// semver ascending.
func (m *Manager) Register(av *ArtifactVersion) error {
	if !semver.IsValid(av.SemVer) {
		return fmt.Errorf("version: invalid semver %q", av.SemVer)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.versions[av.Branch] = append(m.versions[av.Branch], av)
	sort.Slice(m.versions[av.Branch], func(i, j int) bool {
		return semver.Compare(m.versions[av.Branch][i].SemVer, m.versions[av.Branch][j].SemVer) < 0
	})
	return nil
}

func (m *Manager) find(branch Branch, ver string) (int, *ArtifactVersion) {
	list := m.versions[branch]
	for i, v := range list {
		if v.SemVer == ver {
			return i, v
		}
	}
	return -1, nil
}

// getMigrationPath returns the ordered slice of versions to walk from `from`
// to `to` within one branch: for an upgrade, exclusive of `from` and
// inclusive of `to`; for a downgrade, from `from` down to the version just
// above `to`, in descending order.
func (m *Manager) getMigrationPath(branch Branch, from, to string) ([]*ArtifactVersion, error) {
	list := m.versions[branch]
	fi, fv := m.find(branch, from)
	ti, tv := m.find(branch, to)
	if fv == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownVersion, from)
	}
	if tv == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownVersion, to)
	}
	if fi == ti {
		return nil, nil
	}
	if fi < ti {
		return list[fi+1 : ti+1], nil
	}
	// Rollback direction: path is from ti+1..fi in reverse order.
	path := make([]*ArtifactVersion, 0, fi-ti)
	for i := fi; i > ti; i-- {
		path = append(path, list[i])
	}
	return path, nil
}

// Migrate walks artifact forward from fromVer to toVer, applying each
// intermediate version's Migrate function and Verify check in order,
// appending a record to the migration log for every attempt.
func (m *Manager) Migrate(branch Branch, fromVer, toVer string, artifact map[string]any) (map[string]any, error) {
	m.mu.Lock()
	fi, _ := m.find(branch, fromVer)
	ti, _ := m.find(branch, toVer)
	m.mu.Unlock()
	if fi < 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnknownVersion, fromVer)
	}
	if ti < 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnknownVersion, toVer)
	}
	if ti < fi {
		return nil, fmt.Errorf("%w: %s -> %s is a downgrade, use Rollback", ErrNoPath, fromVer, toVer)
	}

	path, err := m.getMigrationPath(branch, fromVer, toVer)
	if err != nil {
		return nil, err
	}

	idx := m.startRecord(branch, fromVer, toVer)
	current := artifact
	for _, step := range path {
		if step.Migrate == nil {
			m.failRecord(idx, fmt.Errorf("version: %s has no Migrate function", step.SemVer))
			return nil, fmt.Errorf("version: %s has no Migrate function", step.SemVer)
		}
		next, err := step.Migrate(current)
		if err != nil {
			m.failRecord(idx, err)
			return nil, fmt.Errorf("version: migrate to %s: %w", step.SemVer, err)
		}
		if step.Verify != nil {
			if err := step.Verify(next); err != nil {
				m.failRecord(idx, err)
				return nil, fmt.Errorf("%w: %s: %v", ErrVerificationFailed, step.SemVer, err)
			}
		}
		current = next
	}
	m.completeRecord(idx)
	return current, nil
}

// Rollback walks artifact backward from fromVer to toVer, applying each
// intermediate version's Rollback function in descending order.
func (m *Manager) Rollback(branch Branch, fromVer, toVer string, artifact map[string]any) (map[string]any, error) {
	m.mu.Lock()
	fi, _ := m.find(branch, fromVer)
	ti, _ := m.find(branch, toVer)
	m.mu.Unlock()
	if fi < 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnknownVersion, fromVer)
	}
	if ti < 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnknownVersion, toVer)
	}
	if ti > fi {
		return nil, fmt.Errorf("%w: %s -> %s is an upgrade, use Migrate", ErrNoPath, fromVer, toVer)
	}

	path, err := m.getMigrationPath(branch, fromVer, toVer)
	if err != nil {
		return nil, err
	}

	idx := m.startRecord(branch, fromVer, toVer)
	current := artifact
	for _, step := range path {
		if step.Rollback == nil {
			m.failRecord(idx, fmt.Errorf("version: %s has no Rollback function", step.SemVer))
			return nil, fmt.Errorf("version: %s has no Rollback function", step.SemVer)
		}
		next, err := step.Rollback(current)
		if err != nil {
			m.failRecord(idx, err)
			return nil, fmt.Errorf("version: rollback from %s: %w", step.SemVer, err)
		}
		current = next
	}
	m.markRolledBack(idx)
	return current, nil
}

// startRecord appends a new in-progress record and returns its index into
// m.log. Callers must address the record by this index, not by pointer: a
// concurrent Migrate/Rollback can append to m.log between startRecord and the
// matching completeRecord/failRecord/markRolledBack call, and append may
// reallocate the backing array, stranding any pointer taken earlier.
func (m *Manager) startRecord(branch Branch, from, to string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	rec := MigrationRecord{
		ID:        fmt.Sprintf("MIG-%04d", m.seq),
		Branch:    branch,
		FromVer:   from,
		ToVer:     to,
		Status:    MigrationInProgress,
		StartedAt: m.clock(),
	}
	m.log = append(m.log, rec)
	return len(m.log) - 1
}

func (m *Manager) completeRecord(idx int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.log[idx].Status = MigrationCompleted
	m.log[idx].EndedAt = m.clock()
}

func (m *Manager) failRecord(idx int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.log[idx].Status = MigrationFailed
	m.log[idx].EndedAt = m.clock()
	m.log[idx].Err = err.Error()
}

func (m *Manager) markRolledBack(idx int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.log[idx].Status = MigrationRolledBack
	m.log[idx].EndedAt = m.clock()
}

// Log returns a copy of the migration log in append order.
func (m *Manager) Log() []MigrationRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MigrationRecord, len(m.log))
	copy(out, m.log)
	return out
}

// Latest returns the highest registered semver for a branch.
func (m *Manager) Latest(branch Branch) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.versions[branch]
	if len(list) == 0 {
		return "", fmt.Errorf("%w: no versions registered for branch %s", ErrUnknownVersion, branch)
	}
	return list[len(list)-1].SemVer, nil
}
