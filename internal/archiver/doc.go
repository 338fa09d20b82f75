// Package archiver relocates printed files into the archive folder,
// disambiguating name collisions so nothing is overwritten.
package archiver
