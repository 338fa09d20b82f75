// Package notifications delivers push notifications through ntfy. Detection,
// print, and error events each have a config toggle; an empty topic disables
// the whole channel via a noop service.
package notifications
