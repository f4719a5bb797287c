// Package session provides the review workflow state machine with
// stage gates and strict ordering.
package session

import (
	"errors"
	"fmt"
	"time"
)

// Stage represents a distinct step of the review workflow
type Stage string

const (
	// StageInitialize creates the session workspace
	StageInitialize Stage = "initialize"

	// StageDiscover inventories the dropped documents
	StageDiscover Stage = "discover"

	// StageMap assigns documents to compliance requirements
	StageMap Stage = "map"

	// StageExtractEvidence runs the field extractors over each document
	StageExtractEvidence Stage = "extract_evidence"

	// StageValidate cross-checks the extracted fields
	StageValidate Stage = "validate"

	// StageReport assembles the review report
	StageReport Stage = "report"

	// StageHumanReview holds the session for a reviewer sign-off
	StageHumanReview Stage = "human_review"

	// StageComplete closes the session
	StageComplete Stage = "complete"
)

// AllStages returns all stages in execution order
func AllStages() []Stage {
	return []Stage{
		StageInitialize,
		StageDiscover,
		StageMap,
		StageExtractEvidence,
		StageValidate,
		StageReport,
		StageHumanReview,
		StageComplete,
	}
}

// Index returns the stage's position in execution order, or -1.
func (s Stage) Index() int {
	for i, stage := range AllStages() {
		if stage == s {
			return i
		}
	}
	return -1
}

// Valid reports whether s names a known stage.
func (s Stage) Valid() bool { return s.Index() >= 0 }

// StageStatus represents the completion status of a stage
type StageStatus string

const (
	StatusPending    StageStatus = "pending"
	StatusInProgress StageStatus = "in_progress"
	StatusCompleted  StageStatus = "completed"
	StatusFailed     StageStatus = "failed"
)

var (
	// ErrSessionNotFound is returned when a session ID is unknown.
	ErrSessionNotFound = errors.New("session not found")

	// ErrStageOutOfOrder is returned when a stage is requested before
	// its predecessors have completed.
	ErrStageOutOfOrder = errors.New("stage out of order")
)

// StageResult captures the outcome of one stage run
type StageResult struct {
	Stage       Stage       `json:"stage"`
	Status      StageStatus `json:"status"`
	StartedAt   time.Time   `json:"started_at"`
	CompletedAt time.Time   `json:"completed_at,omitempty"`
	Error       string      `json:"error,omitempty"`

	// Artifacts names the store objects the stage produced.
	Artifacts []string `json:"artifacts,omitempty"`
}

// Session is one review of one document set. All stage progress hangs
// off it; re-running a completed stage replaces its result without
// resetting later stages.
type Session struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	CurrentStage Stage                  `json:"current_stage"`
	Results      map[Stage]*StageResult `json:"results"`

	// Metadata carries caller-supplied labels such as the project name.
	Metadata map[string]string `json:"metadata,omitempty"`
}

// NewSession creates a session positioned at the first stage.
func NewSession(id string) *Session {
	now := time.Now().UTC()
	return &Session{
		ID:           id,
		CreatedAt:    now,
		UpdatedAt:    now,
		CurrentStage: StageInitialize,
		Results:      make(map[Stage]*StageResult),
	}
}

// Completed reports whether the given stage has a completed result.
func (s *Session) Completed(stage Stage) bool {
	r, ok := s.Results[stage]
	return ok && r.Status == StatusCompleted
}

// NextStage returns the earliest stage without a completed result.
// Once every stage has completed it returns StageComplete.
func (s *Session) NextStage() Stage {
	for _, stage := range AllStages() {
		if !s.Completed(stage) {
			return stage
		}
	}
	return StageComplete
}

// CanAdvance checks whether the session may run the target stage. A
// stage is runnable when it is the next incomplete stage, or when it
// already completed and is being re-run. Skipping ahead is refused.
func (s *Session) CanAdvance(target Stage) error {
	if !target.Valid() {
		return fmt.Errorf("invalid stage: %s", target)
	}
	if s.Completed(target) {
		return nil
	}
	next := s.NextStage()
	if target != next {
		return fmt.Errorf("%w: cannot run %s before %s completes", ErrStageOutOfOrder, target, next)
	}
	return nil
}
