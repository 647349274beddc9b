package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// ErrBackendDown is returned by EnsureReady when the backend does not answer.
var ErrBackendDown = errors.New("inference backend is not reachable")

// EnsureReady verifies e is up and has every named model, pulling missing
// ones and writing progress to w. Empty and repeated names are skipped.
func EnsureReady(ctx context.Context, e Engine, w io.Writer, models ...string) error {
	if !e.IsRunning(ctx) {
		return ErrBackendDown
	}

	seen := make(map[string]struct{}, len(models))
	for _, model := range models {
		if _, dup := seen[model]; model == "" || dup {
			continue
		}
		seen[model] = struct{}{}

		if !e.HasModel(ctx, model) {
			if err := pull(ctx, e, w, model); err != nil {
				return err
			}
		}
		fmt.Fprintf(w, "model %s: ready\n", model)
	}
	return nil
}

// pull reports a line per status change and per whole percent.
func pull(ctx context.Context, e Engine, w io.Writer, model string) error {
	fmt.Fprintf(w, "model %s: pulling\n", model)

	lastStatus, lastPct := "", -1
	err := e.PullModel(ctx, model, func(p PullProgress) {
		pct := -1
		if p.Total > 0 {
			pct = int(p.Completed * 100 / p.Total)
		}
		if p.Status == lastStatus && pct == lastPct {
			return
		}
		lastStatus, lastPct = p.Status, pct
		if pct >= 0 {
			fmt.Fprintf(w, "  %s %d%%\n", p.Status, pct)
		} else {
			fmt.Fprintf(w, "  %s\n", p.Status)
		}
	})
	switch {
	case errors.Is(err, ErrPullUnsupported):
		return fmt.Errorf("model %s is not available on this backend", model)
	case err != nil:
		return fmt.Errorf("pulling model %s: %w", model, err)
	}
	return nil
}
