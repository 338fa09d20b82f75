// Package daemonctl orchestrates the daemon process from the CLI side:
// launching a detached daemon, waiting for its control socket, requesting
// start/stop over IPC, and force-terminating a wedged process.
package daemonctl
