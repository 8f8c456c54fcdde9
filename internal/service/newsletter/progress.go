package newsletter

import (
	"fmt"
	"strings"

	"github.com/ignite/newsletter-engine/internal/domain"
)

// recordChunk stores result at index in w and recomputes the wave totals from
// every recorded chunk, so recording the same result twice changes nothing.
// It reports whether this call completed the wave.
func recordChunk(w *domain.Wave, index, total int, result domain.ChunkResult) (bool, error) {
	if total <= 0 || index < 0 || index >= total {
		return false, fmt.Errorf("%w: chunk %d of %d", ErrChunkOutOfRange, index, total)
	}
	if total > w.TotalChunks {
		w.TotalChunks = total
	}
	for len(w.ChunkResults) < w.TotalChunks {
		w.ChunkResults = append(w.ChunkResults, nil)
	}

	stored := result
	w.ChunkResults[index] = &stored

	w.TotalSent, w.TotalFailed = 0, 0
	recorded := 0
	for _, cr := range w.ChunkResults {
		if cr == nil {
			continue
		}
		recorded++
		w.TotalSent += cr.SentCount
		w.TotalFailed += cr.FailedCount
	}

	if w.Completed || recorded < w.TotalChunks {
		return false, nil
	}
	// Under in-order dispatch this is the write for index total-1; out of
	// order, the wave completes on whichever write fills the last gap.
	w.Completed = true
	return true, nil
}

// CollectFailed returns the de-duplicated addresses that failed in results,
// excluding any address that was delivered elsewhere in the same wave.
// The first spelling seen is kept; comparison ignores case.
func CollectFailed(results []*domain.ChunkResult) []string {
	delivered := make(map[string]bool)
	for _, cr := range results {
		if cr == nil {
			continue
		}
		for _, r := range cr.Results {
			if r.Success {
				delivered[strings.ToLower(r.Email)] = true
			}
		}
	}

	seen := make(map[string]bool)
	var failed []string
	for _, cr := range results {
		if cr == nil {
			continue
		}
		for _, r := range cr.Results {
			key := strings.ToLower(r.Email)
			if r.Success || delivered[key] || seen[key] {
				continue
			}
			seen[key] = true
			failed = append(failed, r.Email)
		}
	}
	return failed
}
