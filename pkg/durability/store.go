package durability

import "context"

// CheckpointStore persists and loads the resumable progress snapshot
// (§4.E "Checkpoint manager"). Implementations must make Save atomic —
// a crash mid-write must never leave a torn file visible to Load.
type CheckpointStore interface {
	Save(ctx context.Context, cp *Checkpoint) error
	Load(ctx context.Context, runID string) (*Checkpoint, error)
	ListRunIDs(ctx context.Context) ([]string, error)
}

// ResultsStore is the append-only results log plus the two documents
// written once per run (§4.E "Results writer").
type ResultsStore interface {
	WriteManifest(ctx context.Context, m *RunManifest) error
	AppendResult(ctx context.Context, r RunCaseResult) error
	WriteSummary(ctx context.Context, s *MetricsSummary) error
	Close() error
}

// ErrCheckpointNotFound is returned by CheckpointStore.Load when no
// checkpoint exists for the given run_id (§4.E "load ... not_found").
type ErrCheckpointNotFound struct{ RunID string }

func (e *ErrCheckpointNotFound) Error() string {
	return "durability: no checkpoint found for run " + e.RunID
}

// ErrInvalidCheckpoint wraps a checkpoint that failed Validate (§4.E
// "load ... invalid(reason)").
type ErrInvalidCheckpoint struct {
	RunID  string
	Reason string
}

func (e *ErrInvalidCheckpoint) Error() string {
	return "durability: checkpoint for run " + e.RunID + " is invalid: " + e.Reason
}
