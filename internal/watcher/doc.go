// Package watcher turns filesystem noise into print candidates. It combines
// fsnotify events with a polling loop that waits for each file's size and
// mtime to hold still, because a cloud sync client announces a file long
// before it finishes writing it.
package watcher
