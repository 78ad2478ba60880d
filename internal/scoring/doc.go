// Package scoring turns message text into a ScoreResult using weighted
// keyword tables.
//
// Scoring is a pure function of (sender, subject, body) and the Taxonomy the
// Engine was built with. It performs no I/O and never returns an error:
// empty or markup-only input yields a degraded, low-priority result.
//
// Keywords are matched as whole-token phrases after HTML stripping, NFC
// normalization and case folding, so "contract" matches "Contract:" but not
// "contractor".
package scoring
