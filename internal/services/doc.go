// Package services defines the shared error taxonomy for external
// collaborators and storage. Sentinel markers let callers classify a failure
// (configuration, validation, external service, storage) without inspecting
// message text.
package services
