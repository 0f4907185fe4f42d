// Package labeling classifies raw posts with a chat-completion model using
// strict structured outputs. Low-confidence decisions from the primary model
// are re-run on the escalation model.
package labeling
