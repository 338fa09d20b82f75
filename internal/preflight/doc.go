// Package preflight provides readiness checks for the print system and
// filesystem paths that autoprint depends on.
//
// These checks run in two contexts:
//   - The daemon runs RunAll at startup. Failures are logged and surfaced
//     but do not prevent startup, since a printer that is offline at boot
//     may come back before the first file arrives.
//   - The CLI "autoprint status" command displays individual check results.
package preflight
