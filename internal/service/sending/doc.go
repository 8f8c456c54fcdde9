// Package sending delivers one chunk of a newsletter over SMTP.
//
// A chunk flows through three stages: the validator cleans and filters raw
// addresses, the Manager opens and verifies a single relay connection with
// bounded exponential backoff, and the ChunkSender delivers the message
// (one BCC envelope, or an individual send for a single recipient). The
// Pipeline ties the stages together and always closes the connection.
//
// Per-recipient failures are returned as data, never as errors.
package sending
