// Package output renders live session events. Console prints a styled
// transcript for terminals, JSONLines writes one object per event for other
// programs, and Multi fans events out to several sinks.
package output
