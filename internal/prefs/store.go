// Package prefs persists user preferences that outlive a session, most
// notably per-account unread notification counts.
package prefs

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"golang.org/x/crypto/blake2b"
)

const (
	CurrentVersion = 1

	defaultDebounce = time.Second
)

// Preferences is the on-disk document.
type Preferences struct {
	Version int `json:"version"`
	// NotificationCounts maps a token fingerprint to its unread notification count.
	NotificationCounts map[string]int `json:"notification_counts,omitempty"`
	// ShowSecondaryColumn mirrors the wide-layout toggle.
	ShowSecondaryColumn bool `json:"show_secondary_column,omitempty"`
}

// Store is a debounced, file-locked JSON preferences store.
// A Store with an empty path keeps everything in memory.
type Store struct {
	path     string
	lockPath string

	mu       sync.Mutex
	prefs    Preferences
	dirty    bool
	timer    *time.Timer
	debounce time.Duration
}

// New returns a store persisting to path.
func New(path string) *Store {
	path = strings.TrimSpace(path)
	lockPath := ""
	if path != "" {
		lockPath = path + ".lock"
	}
	return &Store{
		path:     path,
		lockPath: lockPath,
		prefs: Preferences{
			Version:            CurrentVersion,
			NotificationCounts: make(map[string]int),
		},
		debounce: defaultDebounce,
	}
}

// Path returns the backing file path.
func (s *Store) Path() string { return s.path }

// Fingerprint derives the storage key for a token. Raw tokens never hit disk.
func Fingerprint(token string) string {
	token = strings.TrimSpace(token)
	if token == "" {
		return ""
	}
	sum := blake2b.Sum256([]byte(token))
	return hex.EncodeToString(sum[:16])
}

// Load reads preferences from disk. A missing file is not an error.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.path == "" {
		return nil
	}

	var loaded Preferences
	if err := withFileLock(s.lockPath, func() error {
		payload, err := os.ReadFile(s.path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil
			}
			return err
		}
		if len(payload) == 0 {
			return nil
		}
		return json.Unmarshal(payload, &loaded)
	}); err != nil {
		return fmt.Errorf("load preferences: %w", err)
	}

	if loaded.Version <= 0 {
		loaded.Version = CurrentVersion
	}
	if loaded.NotificationCounts == nil {
		loaded.NotificationCounts = make(map[string]int)
	}
	s.prefs = loaded
	s.dirty = false
	return nil
}

// Snapshot returns a copy of the current preferences.
func (s *Store) Snapshot() Preferences {
	s.mu.Lock()
	defer s.mu.Unlock()
	return clonePreferences(s.prefs)
}

// NotificationCount returns the unread notification count for token.
func (s *Store) NotificationCount(token string) int {
	key := Fingerprint(token)
	if key == "" {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.prefs.NotificationCounts[key]
}

// SetNotificationCount stores count for token. Negative counts are stored as zero.
func (s *Store) SetNotificationCount(token string, count int) {
	key := Fingerprint(token)
	if key == "" {
		return
	}
	if count < 0 {
		count = 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.prefs.NotificationCounts[key] == count {
		return
	}
	if count == 0 {
		delete(s.prefs.NotificationCounts, key)
	} else {
		s.prefs.NotificationCounts[key] = count
	}
	s.markDirtyLocked()
}

// IncrementNotificationCount adds one unread notification for token and
// returns the new count.
func (s *Store) IncrementNotificationCount(token string) int {
	key := Fingerprint(token)
	if key == "" {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prefs.NotificationCounts[key]++
	s.markDirtyLocked()
	return s.prefs.NotificationCounts[key]
}

// ClearNotifications resets the count for token.
func (s *Store) ClearNotifications(token string) {
	s.SetNotificationCount(token, 0)
}

// SetShowSecondaryColumn toggles the wide-layout preference.
func (s *Store) SetShowSecondaryColumn(show bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.prefs.ShowSecondaryColumn == show {
		return
	}
	s.prefs.ShowSecondaryColumn = show
	s.markDirtyLocked()
}

// Close flushes pending changes.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	needsSave := s.dirty
	s.mu.Unlock()
	if !needsSave {
		return nil
	}
	return s.SaveNow()
}

// SaveNow writes preferences to disk immediately.
func (s *Store) SaveNow() error {
	s.mu.Lock()
	if s.path == "" {
		s.dirty = false
		s.mu.Unlock()
		return nil
	}
	prefs := clonePreferences(s.prefs)
	s.dirty = false
	s.mu.Unlock()

	prefs.Version = CurrentVersion
	if err := withFileLock(s.lockPath, func() error {
		return writeAtomicJSON(s.path, prefs)
	}); err != nil {
		s.mu.Lock()
		s.dirty = true
		s.mu.Unlock()
		return err
	}
	return nil
}

func (s *Store) markDirtyLocked() {
	s.dirty = true
	if s.path == "" {
		return
	}
	if s.timer == nil {
		s.timer = time.AfterFunc(s.debounce, func() {
			_ = s.SaveNow()
		})
		return
	}
	_ = s.timer.Reset(s.debounce)
}

func withFileLock(lockPath string, fn func() error) error {
	if strings.TrimSpace(lockPath) == "" {
		return fn()
	}
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX); err != nil {
		return fmt.Errorf("lock %s: %w", lockPath, err)
	}
	defer func() {
		_ = syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
	}()
	return fn()
}

func writeAtomicJSON(path string, prefs Preferences) error {
	payload, err := json.MarshalIndent(prefs, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, payload, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func clonePreferences(p Preferences) Preferences {
	out := p
	out.NotificationCounts = make(map[string]int, len(p.NotificationCounts))
	for k, v := range p.NotificationCounts {
		out.NotificationCounts[k] = v
	}
	return out
}
