package service

import (
	"context"
	"strings"
)

// Snapshot fetches the latest value of every key registered so far, each
// fetch bounded by the snapshot timeout. Keys that time out or failed are
// left out; a partial result is still a result.
func (h *Hub) Snapshot(ctx context.Context) map[Ref]Datapoint {
	return h.SnapshotPrefix(ctx, "")
}

// SnapshotPrefix is Snapshot restricted to labels with the given prefix.
func (h *Hub) SnapshotPrefix(ctx context.Context, prefix string) map[Ref]Datapoint {
	var refs []Ref
	for _, ref := range h.keys.Snapshot() {
		if strings.HasPrefix(ref.Label, prefix) {
			refs = append(refs, ref)
		}
	}

	type result struct {
		dp Datapoint
		ok bool
	}
	results := make(chan result, len(refs))
	for _, ref := range refs {
		ref := ref
		err := h.rt.IO.Go(func() {
			fctx, cancel := context.WithTimeout(ctx, h.snapshotTimeout)
			defer cancel()
			dp, err := h.LatestAny(fctx, ref)
			results <- result{dp: dp, ok: err == nil}
		})
		if err != nil {
			results <- result{}
		}
	}

	out := make(map[Ref]Datapoint, len(refs))
	for range refs {
		if r := <-results; r.ok {
			out[r.dp.Key] = r.dp
		}
	}
	h.observer.RecordSnapshot(len(refs), len(refs)-len(out))
	return out
}
