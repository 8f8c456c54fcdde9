// Package analytics records newsletter opens and link clicks.
//
// Recipients are never stored. Each engagement event carries a fingerprint,
// a one-way hash of recipient and campaign, and unique counters on the parent
// rows grow only when the fingerprint upsert reports that it created a row.
// Recording never fails the caller: the pixel and the redirect must be served
// whatever happens to the analytics write.
package analytics
