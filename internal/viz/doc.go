// Package viz renders ensemble results and run progress in the terminal.
//
//   - [Summary]: a styled report of one ensemble request
//   - [Progress]: a Bubble Tea model tracking completed realizations
//   - [Track]: runs a job while showing [Progress]
//
// # Key Bindings
//
//	Ctrl+C, Q - cancel the running ensemble
package viz
