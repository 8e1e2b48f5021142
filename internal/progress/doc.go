// Package progress implements the bottom-up cascade that keeps per-user
// progress nodes consistent with card completion edges. A single card flip
// fans out to every section containing the card, then to every course
// containing those sections, then to every learning path containing those
// courses; each ancestor's percentage is recomputed as a total function of
// all its children, never as an incremental delta.
package progress
