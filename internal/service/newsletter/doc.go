// Package newsletter drives a newsletter from dispatch to a terminal state.
//
// The Dispatcher partitions recipients into chunks and sends them strictly in
// order through the sending pipeline. Each chunk result is recorded by the
// Aggregator, which owns the persisted status and progress record. When a
// wave finishes with partial failures the RetryOrchestrator plans the next
// wave over the residual addresses, using a shrinking ladder of chunk sizes.
//
// Progress writes are compare-and-swap on a revision counter, so a lost race
// is re-read and re-applied instead of silently overwriting a newer record.
package newsletter
