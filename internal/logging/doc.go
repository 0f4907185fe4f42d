// Package logging builds the slog loggers used across loom. Runs log to
// stdout and, when an output directory is known, to a structured loom.log
// file inside it so long builds remain auditable after the fact.
package logging
