// Package printing wraps the lp and lpstat command line tools and provides
// the pipeline stage that submits documents to the spooler. Success here
// means acceptance by the spooler, not paper in the tray.
package printing
