package durability

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrRunAlreadyComplete is returned by Resume when the checkpoint's
// completed_count already equals total_cases (§4.E "if already complete ...
// error").
type ErrRunAlreadyComplete struct{ RunID string }

func (e *ErrRunAlreadyComplete) Error() string {
	return fmt.Sprintf("durability: run %s is already complete", e.RunID)
}

// ErrSelectionMismatch is returned by Resume when the current selection does
// not set-equal the checkpoint's recorded selection.
type ErrSelectionMismatch struct {
	RunID string
	Diff  SelectionDiff
}

func (e *ErrSelectionMismatch) Error() string {
	var parts []string
	if len(e.Diff.MissingProviders) > 0 {
		parts = append(parts, "missing providers: "+strings.Join(e.Diff.MissingProviders, ", "))
	}
	if len(e.Diff.ExtraProviders) > 0 {
		parts = append(parts, "extra providers: "+strings.Join(e.Diff.ExtraProviders, ", "))
	}
	if len(e.Diff.MissingBenchmarks) > 0 {
		parts = append(parts, "missing benchmarks: "+strings.Join(e.Diff.MissingBenchmarks, ", "))
	}
	if len(e.Diff.ExtraBenchmarks) > 0 {
		parts = append(parts, "extra benchmarks: "+strings.Join(e.Diff.ExtraBenchmarks, ", "))
	}
	return fmt.Sprintf("durability: resume selection for run %s does not match checkpoint (%s)", e.RunID, strings.Join(parts, "; "))
}

// Resume loads and validates the checkpoint for a resume attempt, enforcing
// the ordered checks of §4.E "Resume protocol": not-found (with an
// available-runs listing), invalid, already-complete, selection mismatch.
// On success it returns the loaded checkpoint ready to drive the executor's
// skip-set.
func Resume(ctx context.Context, store CheckpointStore, runID string, current Selections) (*Checkpoint, error) {
	cp, err := store.Load(ctx, runID)
	if err != nil {
		var notFound *ErrCheckpointNotFound
		if errors.As(err, &notFound) {
			available, listErr := store.ListRunIDs(ctx)
			if listErr == nil && len(available) > 0 {
				return nil, fmt.Errorf("durability: no checkpoint found for run %s; available runs (newest first): %s", runID, strings.Join(available, ", "))
			}
			return nil, fmt.Errorf("durability: no checkpoint found for run %s; no prior runs available", runID)
		}
		return nil, err
	}

	if cp.CompletedCount >= cp.TotalCases && cp.TotalCases > 0 {
		return nil, &ErrRunAlreadyComplete{RunID: runID}
	}

	diff := cp.ValidateSelections(current)
	if !diff.Equal() {
		return nil, &ErrSelectionMismatch{RunID: runID, Diff: diff}
	}

	return cp, nil
}
