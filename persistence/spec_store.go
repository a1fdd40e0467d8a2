package persistence

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// SpecStatus tracks a spec document's lifecycle stage.
type SpecStatus string

const (
	SpecDraft        SpecStatus = "draft"
	SpecRequirements SpecStatus = "requirements"
	SpecDesign       SpecStatus = "design"
	SpecTasks        SpecStatus = "tasks"
	SpecImplementing SpecStatus = "implementing"
	SpecDone         SpecStatus = "done"
)

// TaskStatus tracks one implementation task.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in-progress"
	TaskDone       TaskStatus = "done"
	TaskSkipped    TaskStatus = "skipped"
)

// Requirement is one numbered requirement produced at the requirements stage.
type Requirement struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Rationale   string `json:"rationale,omitempty"`
}

// DesignSection is one section of the design stage output.
type DesignSection struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// Task is one unit of implementation work.
type Task struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Status      TaskStatus `json:"status"`
	FileHint    string     `json:"file_hint,omitempty"`
	DependsOn   []string   `json:"depends_on,omitempty"`
	Size        string     `json:"size,omitempty"`
}

// SpecDoc is the full staged document. Each stage appends content; a stage
// cannot be generated before its prerequisite has content.
type SpecDoc struct {
	ID           string          `json:"id"`
	Title        string          `json:"title"`
	Description  string          `json:"description"`
	Status       SpecStatus      `json:"status"`
	Requirements []Requirement   `json:"requirements,omitempty"`
	Design       []DesignSection `json:"design,omitempty"`
	Tasks        []Task          `json:"tasks,omitempty"`
	FileRefs     []string        `json:"file_refs,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// SpecStore persists spec documents under .sidekick/specs, writing both a
// machine-readable JSON file and a human-readable markdown rendering.
type SpecStore struct {
	mu  sync.Mutex
	dir string
}

// NewSpecStore builds a store rooted at projectRoot.
func NewSpecStore(projectRoot string) *SpecStore {
	return &SpecStore{dir: filepath.Join(projectRoot, ".sidekick", "specs")}
}

// Create registers a new draft spec.
func (s *SpecStore) Create(title, description string) (*SpecDoc, error) {
	now := time.Now().UTC()
	doc := &SpecDoc{
		ID:          uuid.NewString()[:8],
		Title:       title,
		Description: description,
		Status:      SpecDraft,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.Save(doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// Save writes both renderings.
func (s *SpecStore) Save(doc *SpecDoc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return err
	}
	doc.UpdatedAt = time.Now().UTC()
	payload, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	jsonPath := filepath.Join(s.dir, doc.ID+".json")
	if err := os.WriteFile(jsonPath, payload, 0o644); err != nil {
		return err
	}
	mdPath := filepath.Join(s.dir, doc.ID+".md")
	return os.WriteFile(mdPath, []byte(renderMarkdown(doc)), 0o644)
}

// Load reads a spec by id.
func (s *SpecStore) Load(id string) (*SpecDoc, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	payload, err := os.ReadFile(filepath.Join(s.dir, id+".json"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("spec %s not found", id)
		}
		return nil, err
	}
	var doc SpecDoc
	if err := json.Unmarshal(payload, &doc); err != nil {
		return nil, fmt.Errorf("spec %s corrupt: %w", id, err)
	}
	return &doc, nil
}

// List returns every stored spec, newest first.
func (s *SpecStore) List() ([]*SpecDoc, error) {
	s.mu.Lock()
	entries, err := os.ReadDir(s.dir)
	s.mu.Unlock()
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var docs []*SpecDoc
	for _, entry := range entries {
		if !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		doc, err := s.Load(strings.TrimSuffix(entry.Name(), ".json"))
		if err != nil {
			continue
		}
		docs = append(docs, doc)
	}
	sort.Slice(docs, func(i, j int) bool {
		return docs[i].UpdatedAt.After(docs[j].UpdatedAt)
	})
	return docs, nil
}

// RecomputeStatus derives the aggregate status from task states: done when
// every task is done or skipped, implementing when any task has started,
// otherwise the stage reached by content.
func (doc *SpecDoc) RecomputeStatus() {
	if len(doc.Tasks) > 0 {
		allSettled := true
		anyActive := false
		for _, task := range doc.Tasks {
			switch task.Status {
			case TaskDone, TaskSkipped:
			case TaskInProgress:
				anyActive = true
				allSettled = false
			default:
				allSettled = false
			}
		}
		switch {
		case allSettled:
			doc.Status = SpecDone
		case anyActive || doc.Status == SpecImplementing || doc.Status == SpecDone:
			doc.Status = SpecImplementing
		default:
			doc.Status = SpecTasks
		}
		return
	}
	switch {
	case len(doc.Design) > 0:
		doc.Status = SpecDesign
	case len(doc.Requirements) > 0:
		doc.Status = SpecRequirements
	default:
		doc.Status = SpecDraft
	}
}

// Task returns a task by id.
func (doc *SpecDoc) Task(id string) *Task {
	for i := range doc.Tasks {
		if doc.Tasks[i].ID == id {
			return &doc.Tasks[i]
		}
	}
	return nil
}

// NextPendingTask returns the first pending task whose dependencies are all
// done or skipped, or nil.
func (doc *SpecDoc) NextPendingTask() *Task {
	for i := range doc.Tasks {
		task := &doc.Tasks[i]
		if task.Status != TaskPending {
			continue
		}
		if doc.dependenciesSettled(task) {
			return task
		}
	}
	return nil
}

func (doc *SpecDoc) dependenciesSettled(task *Task) bool {
	for _, dep := range task.DependsOn {
		if other := doc.Task(dep); other != nil {
			if other.Status != TaskDone && other.Status != TaskSkipped {
				return false
			}
		}
	}
	return true
}

func renderMarkdown(doc *SpecDoc) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s\n\n", doc.Title)
	fmt.Fprintf(&sb, "Status: %s\n\n", doc.Status)
	if doc.Description != "" {
		fmt.Fprintf(&sb, "%s\n\n", doc.Description)
	}
	if len(doc.Requirements) > 0 {
		sb.WriteString("## Requirements\n\n")
		for _, req := range doc.Requirements {
			fmt.Fprintf(&sb, "- **%s** %s: %s\n", req.ID, req.Title, req.Description)
		}
		sb.WriteString("\n")
	}
	if len(doc.Design) > 0 {
		sb.WriteString("## Design\n\n")
		for _, section := range doc.Design {
			fmt.Fprintf(&sb, "### %s\n\n%s\n\n", section.Title, section.Content)
		}
	}
	if len(doc.Tasks) > 0 {
		sb.WriteString("## Tasks\n\n")
		for _, task := range doc.Tasks {
			mark := " "
			switch task.Status {
			case TaskDone:
				mark = "x"
			case TaskInProgress:
				mark = "~"
			case TaskSkipped:
				mark = "-"
			}
			fmt.Fprintf(&sb, "- [%s] **%s** %s", mark, task.ID, task.Title)
			if task.FileHint != "" {
				fmt.Fprintf(&sb, " (`%s`)", task.FileHint)
			}
			sb.WriteString("\n")
		}
	}
	return sb.String()
}
