// Command loom builds a labeled post corpus by looping hashtag discovery
// through a structured-output classifier until the eligible pool target is
// met, then draws and exports a deterministic final sample.
package main
