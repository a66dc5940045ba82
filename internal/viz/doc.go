// Package viz renders run output for the terminal: rate tables, fit
// summaries, population sparklines and product bars, styled with lipgloss.
//
// Colours follow the active [Theme]; pick one with [SetTheme]. When stdout is
// not a terminal lipgloss drops the escape sequences and the output is plain
// text.
package viz
