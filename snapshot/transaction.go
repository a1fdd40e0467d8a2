package snapshot

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// EditKind names one transactional step.
type EditKind string

const (
	EditCreate  EditKind = "create"
	EditModify  EditKind = "modify"
	EditDelete  EditKind = "delete"
	EditReplace EditKind = "replace"
)

// FileEdit is one step of a transaction. Create and Replace take full
// Content; Modify swaps OldText for NewText and fails when OldText is not
// present; Delete removes the file.
type FileEdit struct {
	Path    string   `json:"path"`
	Kind    EditKind `json:"kind"`
	Content string   `json:"content,omitempty"`
	OldText string   `json:"old_text,omitempty"`
	NewText string   `json:"new_text,omitempty"`
}

// Transaction groups edits that apply all-or-nothing. Backups hold the
// pre-transaction content of every touched path (nil for absent files) and
// survive a commit so the whole transaction can be rolled back later.
type Transaction struct {
	ID        string
	Edits     []FileEdit
	Backups   map[string]*string
	Applied   bool
	Timestamp time.Time
}

// Log tracks committed transactions in memory for later rollback.
type Log struct {
	mu           sync.Mutex
	transactions map[string]*Transaction
}

// NewLog builds an empty transaction log.
func NewLog() *Log {
	return &Log{transactions: make(map[string]*Transaction)}
}

// Apply backs up every target path, then applies the edits in order. The
// first failing edit rolls back everything already applied and the whole
// transaction reports failure with the count of reverted edits. Backups are
// taken before any mutation so rollback always has the true prior state.
func (l *Log) Apply(edits []FileEdit) (*Transaction, error) {
	tx := &Transaction{
		ID:        uuid.NewString(),
		Edits:     edits,
		Backups:   make(map[string]*string),
		Timestamp: time.Now().UTC(),
	}
	for _, edit := range edits {
		abs, err := filepath.Abs(edit.Path)
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", edit.Path, err)
		}
		if _, seen := tx.Backups[abs]; seen {
			continue
		}
		if data, err := os.ReadFile(abs); err == nil {
			text := string(data)
			tx.Backups[abs] = &text
		} else if os.IsNotExist(err) {
			tx.Backups[abs] = nil
		} else {
			return nil, fmt.Errorf("backup %s: %w", abs, err)
		}
	}

	for i, edit := range edits {
		if err := applyEdit(edit); err != nil {
			reverted := revert(tx.Backups)
			log.Printf("[snapshot] transaction %s failed at edit %d, reverted %d files", tx.ID, i, reverted)
			return nil, fmt.Errorf("edit %d (%s %s): %w; rolled back %d applied edits", i, edit.Kind, edit.Path, err, i)
		}
	}

	tx.Applied = true
	l.mu.Lock()
	l.transactions[tx.ID] = tx
	l.mu.Unlock()
	return tx, nil
}

// Rollback restores every path a committed transaction touched to its
// pre-transaction state.
func (l *Log) Rollback(id string) error {
	l.mu.Lock()
	tx, ok := l.transactions[id]
	l.mu.Unlock()
	if !ok {
		return fmt.Errorf("transaction %s not found", id)
	}
	if !tx.Applied {
		return fmt.Errorf("transaction %s was never applied", id)
	}
	revert(tx.Backups)
	l.mu.Lock()
	tx.Applied = false
	l.mu.Unlock()
	return nil
}

// Get returns a committed transaction by id.
func (l *Log) Get(id string) (*Transaction, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	tx, ok := l.transactions[id]
	return tx, ok
}

func applyEdit(edit FileEdit) error {
	abs, err := filepath.Abs(edit.Path)
	if err != nil {
		return err
	}
	switch edit.Kind {
	case EditCreate, EditReplace:
		if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
			return err
		}
		return os.WriteFile(abs, []byte(edit.Content), 0o644)
	case EditModify:
		data, err := os.ReadFile(abs)
		if err != nil {
			return err
		}
		text := string(data)
		if !strings.Contains(text, edit.OldText) {
			return fmt.Errorf("old text not found in %s", abs)
		}
		text = strings.Replace(text, edit.OldText, edit.NewText, 1)
		return os.WriteFile(abs, []byte(text), 0o644)
	case EditDelete:
		if err := os.Remove(abs); err != nil && !os.IsNotExist(err) {
			return err
		}
		return nil
	default:
		return fmt.Errorf("unknown edit kind %q", edit.Kind)
	}
}

// revert writes backups back to disk and returns how many paths changed.
func revert(backups map[string]*string) int {
	count := 0
	for path, content := range backups {
		if content == nil {
			if err := os.Remove(path); err == nil || os.IsNotExist(err) {
				count++
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			continue
		}
		if err := os.WriteFile(path, []byte(*content), 0o644); err == nil {
			count++
		}
	}
	return count
}
