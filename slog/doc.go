// Package slog provides utilities for working with the standard library's log/slog package.
//
//   - FatalError: Logs an error message and terminates the application with exit code 1.
//     Used for unrecoverable errors during startup, such as an invalid configuration or a state store that cannot be opened.
package slog
