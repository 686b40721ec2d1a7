// Package ui renders fleet snapshots for the terminal.
//
// Colors are ANSI codes so they degrade cleanly:
//
//	ColorSuccess   (green)  - healthy hosts, low usage
//	ColorWarning   (yellow) - degraded hosts, usage above 60%
//	ColorError     (red)    - unreachable hosts, usage above 80%
//	ColorMuted     (gray)   - secondary text, ages
//
// ConfigureColors picks a color profile for the output writer; it falls
// back to plain text when the writer is not a terminal or NO_COLOR is set.
package ui
