// Package pipeline drives ledger entries through the print and archive
// stages. A single loop polls the ledger for the oldest workable entry,
// moves it through its stage's processing status, and persists the outcome.
// Heartbeats guard against a wedged stage holding an entry forever.
package pipeline
