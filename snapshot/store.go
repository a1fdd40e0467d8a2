// Package snapshot provides pre-mutation file captures for undo/restore and
// a transaction log for all-or-nothing multi-file edits. Every mutating
// file operation in the system snapshots through here before touching disk.
package snapshot

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Operation tags why a snapshot was taken.
type Operation string

const (
	OpWrite  Operation = "write"
	OpEdit   Operation = "edit"
	OpDelete Operation = "delete"
	OpCreate Operation = "create"
)

// FileSnapshot captures a file's content before a mutation. A nil Content
// means the file did not exist at capture time; undoing to that state
// deletes the file.
type FileSnapshot struct {
	ID          string
	Path        string
	Content     *string
	Timestamp   time.Time
	Op          Operation
	Description string
}

const (
	perPathCapacity = 50
	globalCapacity  = 100
)

// Store holds bounded snapshot histories: one ring per path plus one global
// log. Both evict oldest-first when full.
type Store struct {
	mu      sync.Mutex
	perPath map[string][]*FileSnapshot
	global  []*FileSnapshot
}

// NewStore builds an empty store.
func NewStore() *Store {
	return &Store{perPath: make(map[string][]*FileSnapshot)}
}

// Take captures the current content of path (nil when absent) and records
// it in both histories. Callers must invoke this before mutating the file.
func (s *Store) Take(path string, op Operation, description string) (*FileSnapshot, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", path, err)
	}
	var content *string
	if data, err := os.ReadFile(abs); err == nil {
		text := string(data)
		content = &text
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("snapshot %s: %w", abs, err)
	}
	snap := &FileSnapshot{
		ID:          uuid.NewString(),
		Path:        abs,
		Content:     content,
		Timestamp:   time.Now().UTC(),
		Op:          op,
		Description: description,
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	history := append(s.perPath[abs], snap)
	if len(history) > perPathCapacity {
		history = history[len(history)-perPathCapacity:]
	}
	s.perPath[abs] = history
	s.global = append(s.global, snap)
	if len(s.global) > globalCapacity {
		s.global = s.global[len(s.global)-globalCapacity:]
	}
	return snap, nil
}

// UndoLast pops and restores the most recent snapshot. With a path it works
// against that path's history; with an empty path it works against the
// global log and keeps the per-path history consistent by removing the same
// snapshot id there too. On restore failure the popped snapshot is pushed
// back so nothing is lost.
func (s *Store) UndoLast(path string) (*FileSnapshot, error) {
	if path == "" {
		return s.undoGlobal()
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	history := s.perPath[abs]
	if len(history) == 0 {
		s.mu.Unlock()
		return nil, fmt.Errorf("no change history for %s", abs)
	}
	snap := history[len(history)-1]
	s.perPath[abs] = history[:len(history)-1]
	s.removeFromGlobal(snap.ID)
	s.mu.Unlock()

	if err := apply(snap); err != nil {
		s.mu.Lock()
		s.perPath[abs] = append(s.perPath[abs], snap)
		s.global = append(s.global, snap)
		s.mu.Unlock()
		return nil, fmt.Errorf("restore %s: %w", abs, err)
	}
	return snap, nil
}

func (s *Store) undoGlobal() (*FileSnapshot, error) {
	s.mu.Lock()
	if len(s.global) == 0 {
		s.mu.Unlock()
		return nil, fmt.Errorf("no changes to undo")
	}
	snap := s.global[len(s.global)-1]
	s.global = s.global[:len(s.global)-1]
	s.removeFromPath(snap.Path, snap.ID)
	s.mu.Unlock()

	if err := apply(snap); err != nil {
		s.mu.Lock()
		s.global = append(s.global, snap)
		s.perPath[snap.Path] = append(s.perPath[snap.Path], snap)
		s.mu.Unlock()
		return nil, fmt.Errorf("restore %s: %w", snap.Path, err)
	}
	return snap, nil
}

// Restore reapplies a snapshot by id without removing it from either
// history, so the same state can be restored repeatedly.
func (s *Store) Restore(id string) (*FileSnapshot, error) {
	s.mu.Lock()
	var snap *FileSnapshot
	for _, candidate := range s.global {
		if candidate.ID == id {
			snap = candidate
			break
		}
	}
	s.mu.Unlock()
	if snap == nil {
		return nil, fmt.Errorf("snapshot %s not found", id)
	}
	if err := apply(snap); err != nil {
		return nil, fmt.Errorf("restore %s: %w", snap.Path, err)
	}
	return snap, nil
}

// History returns the recorded snapshots for a path, most recent last.
func (s *Store) History(path string) []*FileSnapshot {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*FileSnapshot(nil), s.perPath[abs]...)
}

func (s *Store) removeFromGlobal(id string) {
	for i, snap := range s.global {
		if snap.ID == id {
			s.global = append(s.global[:i], s.global[i+1:]...)
			return
		}
	}
}

func (s *Store) removeFromPath(path, id string) {
	history := s.perPath[path]
	for i, snap := range history {
		if snap.ID == id {
			s.perPath[path] = append(history[:i], history[i+1:]...)
			return
		}
	}
}

// apply writes a snapshot's state back to disk. Nil content means the file
// did not exist, so restoring deletes it.
func apply(snap *FileSnapshot) error {
	if snap.Content == nil {
		if err := os.Remove(snap.Path); err != nil && !os.IsNotExist(err) {
			return err
		}
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(snap.Path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(snap.Path, []byte(*snap.Content), 0o644)
}
