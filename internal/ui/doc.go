// Package ui renders imgx output in the terminal.
//
// [Palette] holds the lipgloss styles used for plain command output. [Model] is a bubbletea
// program with three views:
//  1. [ProgressView] : spinner and the latest progress message while a batch runs
//  2. [ListView] : filterable list of processed files or stored history
//  3. [DetailView] : sizes, result URL and error for one entry
//
// Progress updates flow through a channel from [tasks.Processor], so rendering never blocks
// the workers.
package ui
