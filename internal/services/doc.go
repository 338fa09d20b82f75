// Package services holds the error taxonomy and context plumbing shared by
// pipeline stages. Stage code wraps failures with a sentinel marker so the
// orchestrator can decide between retry, surface, and abort without string
// matching.
package services
