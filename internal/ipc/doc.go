// Package ipc implements the daemon control surface: JSON-RPC over a Unix
// domain socket, with typed request/response messages shared by the server
// and the CLI client.
package ipc
