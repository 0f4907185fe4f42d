// Package discovery wraps the actor platform that fetches raw social posts.
// It runs an actor synchronously, waits for the run to finish, and pages the
// resulting dataset items back to the caller.
package discovery
