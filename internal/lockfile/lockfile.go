// Package lockfile provides cross-process mutual exclusion over remote
// resources using exclusive lock files on a shared directory. A lock file is
// a JSON record naming its holder; creation with O_EXCL is the atomic
// acquire, deletion is the release. Stale locks left by dead processes are
// reclaimed during acquisition.
package lockfile

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"scriptsync/internal/xerrors"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

const (
	// DefaultPoll is the retry interval while waiting on a contended lock.
	DefaultPoll = 100 * time.Millisecond

	// DefaultStaleAfter bounds how long a lock from another host is trusted.
	// Cross-host PIDs cannot be probed, so age is the only staleness signal.
	DefaultStaleAfter = 5 * time.Minute
)

// record is the on-disk lock file body.
type record struct {
	ResourceID string    `json:"resource_id"`
	LockID     string    `json:"lock_id"`
	OwnerPID   int       `json:"owner_pid"`
	Hostname   string    `json:"hostname"`
	AcquiredAt time.Time `json:"acquired_at"`
	Operation  string    `json:"operation"`
}

// Options configures a Manager. Zero values fall back to package defaults.
type Options struct {
	Dir        string
	Poll       time.Duration
	StaleAfter time.Duration
}

// Manager acquires and releases file locks for one process. It tracks the
// lock ids it handed out so Release only ever removes its own lock files.
type Manager struct {
	dir        string
	hostname   string
	pid        int
	poll       time.Duration
	staleAfter time.Duration
	logger     *zap.Logger

	mu   sync.Mutex
	held map[string]string // resourceID -> lockID

	cleaning sync.Mutex
}

func NewManager(opts Options, logger *zap.Logger) (*Manager, error) {
	if opts.Dir == "" {
		return nil, fmt.Errorf("lock directory is required")
	}
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating lock directory: %w", err)
	}
	if opts.Poll <= 0 {
		opts.Poll = DefaultPoll
	}
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = DefaultStaleAfter
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}

	return &Manager{
		dir:        opts.Dir,
		hostname:   hostname,
		pid:        os.Getpid(),
		poll:       opts.Poll,
		staleAfter: opts.StaleAfter,
		logger:     logger,
		held:       make(map[string]string),
	}, nil
}

// Acquire blocks until the lock on resourceID is obtained or timeout
// elapses. operation is a short human-readable label stored in the lock
// record so a blocked process can report who is in the way.
func (m *Manager) Acquire(resourceID, operation string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	path := m.lockPath(resourceID)
	lastChance := false

	for {
		ok, err := m.tryAcquire(path, resourceID, operation)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}

		if holder, stale := m.staleHolder(path); stale {
			m.logger.Warn("reclaiming stale lock",
				zap.String("resource_id", resourceID),
				zap.Int("owner_pid", holder.OwnerPID),
				zap.String("hostname", holder.Hostname),
				zap.Time("acquired_at", holder.AcquiredAt))
			// Best effort; on a lost race the next tryAcquire just fails.
			os.Remove(path)
			continue
		}

		if time.Now().After(deadline) {
			holder, rerr := m.readRecord(path)
			if rerr != nil && !lastChance {
				// The lock file vanished or turned unreadable mid-wait;
				// its holder may be gone, so go around one more time.
				lastChance = true
				continue
			}
			return xerrors.LockTimeout(resourceID, timeout, xerrors.HolderInfo{
				LockID:     holder.LockID,
				OwnerPID:   holder.OwnerPID,
				Hostname:   holder.Hostname,
				AcquiredAt: holder.AcquiredAt,
				Operation:  holder.Operation,
			})
		}
		time.Sleep(m.poll)
	}
}

// Release removes the lock this manager holds on resourceID. Releasing a
// lock that is not held, or that was already reclaimed, is a no-op.
func (m *Manager) Release(resourceID string) {
	m.mu.Lock()
	lockID, ok := m.held[resourceID]
	delete(m.held, resourceID)
	m.mu.Unlock()
	if !ok {
		return
	}

	path := m.lockPath(resourceID)
	rec, err := m.readRecord(path)
	if err != nil {
		return
	}
	if rec.LockID != lockID {
		m.logger.Warn("lock file belongs to another holder, leaving it",
			zap.String("resource_id", resourceID),
			zap.String("lock_id", rec.LockID))
		return
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		m.logger.Warn("removing lock file failed",
			zap.String("resource_id", resourceID),
			zap.Error(err))
	}
}

// ReleaseAll releases every lock this manager currently holds.
func (m *Manager) ReleaseAll() {
	m.mu.Lock()
	ids := make([]string, 0, len(m.held))
	for id := range m.held {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		m.Release(id)
	}
}

// Holder reports the current lock record for resourceID, if any.
func (m *Manager) Holder(resourceID string) (xerrors.HolderInfo, bool) {
	rec, err := m.readRecord(m.lockPath(resourceID))
	if err != nil {
		return xerrors.HolderInfo{}, false
	}
	return xerrors.HolderInfo{
		LockID:     rec.LockID,
		OwnerPID:   rec.OwnerPID,
		Hostname:   rec.Hostname,
		AcquiredAt: rec.AcquiredAt,
		Operation:  rec.Operation,
	}, true
}

// CleanupStaleLocks scans the lock directory and removes every stale lock
// file. Returns the number of locks removed. Concurrent calls coalesce; the
// second caller returns immediately.
func (m *Manager) CleanupStaleLocks() (int, error) {
	if !m.cleaning.TryLock() {
		return 0, nil
	}
	defer m.cleaning.Unlock()

	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return 0, fmt.Errorf("reading lock directory: %w", err)
	}

	removed := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".lock") {
			continue
		}
		path := filepath.Join(m.dir, entry.Name())
		if holder, stale := m.staleHolder(path); stale {
			if err := os.Remove(path); err == nil {
				removed++
				m.logger.Info("removed stale lock",
					zap.String("file", entry.Name()),
					zap.Int("owner_pid", holder.OwnerPID))
			}
		}
	}
	return removed, nil
}

func (m *Manager) tryAcquire(path, resourceID, operation string) (bool, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		if os.IsExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("creating lock file: %w", err)
	}

	rec := record{
		ResourceID: resourceID,
		LockID:     uuid.New().String(),
		OwnerPID:   m.pid,
		Hostname:   m.hostname,
		AcquiredAt: time.Now().UTC(),
		Operation:  operation,
	}
	if err := json.NewEncoder(f).Encode(rec); err != nil {
		f.Close()
		os.Remove(path)
		return false, fmt.Errorf("writing lock record: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return false, fmt.Errorf("closing lock file: %w", err)
	}

	m.mu.Lock()
	m.held[resourceID] = rec.LockID
	m.mu.Unlock()

	m.logger.Debug("lock acquired",
		zap.String("resource_id", resourceID),
		zap.String("lock_id", rec.LockID),
		zap.String("operation", operation))
	return true, nil
}

// staleHolder decides whether the lock at path was abandoned. Same-host
// locks are stale when their owner process is gone; other hosts' locks only
// when older than the staleness ceiling. An unreadable or corrupt lock file
// counts as stale so it cannot wedge the resource forever.
func (m *Manager) staleHolder(path string) (record, bool) {
	rec, err := m.readRecord(path)
	if err != nil {
		if os.IsNotExist(err) {
			return record{}, false
		}
		return record{}, true
	}

	if rec.Hostname == m.hostname {
		return rec, !pidAlive(rec.OwnerPID)
	}
	return rec, time.Since(rec.AcquiredAt) > m.staleAfter
}

func (m *Manager) readRecord(path string) (record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return record{}, err
	}
	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return record{}, fmt.Errorf("parsing lock record: %w", err)
	}
	return rec, nil
}

func (m *Manager) lockPath(resourceID string) string {
	return filepath.Join(m.dir, sanitize(resourceID)+".lock")
}

// sanitize maps a resource id to a safe filename component.
func sanitize(resourceID string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-' || r == '_' || r == '.':
			return r
		default:
			return '_'
		}
	}, resourceID)
}

// pidAlive probes a process with signal 0. EPERM means the process exists
// but belongs to another user, which still counts as alive.
func pidAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	if err == nil {
		return true
	}
	return errors.Is(err, unix.EPERM)
}
