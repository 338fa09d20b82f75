// Package daemon wires the watcher, ledger, and pipeline into a
// single-instance background service and exposes the operations the control
// socket needs.
package daemon
