// Package events decouples task state changes from their side effects.
//
// The orchestrator emits a TaskTransitioned event only after it wins the
// compare-and-set on a task's status, so every handler sees each transition
// exactly once per process. Handlers (notification delivery, metrics) never
// learn which code path won the race.
package events
