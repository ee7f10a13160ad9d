// Package jobs runs background work off the request path: a bounded
// in-memory queue drained by a worker pool, and periodic runners for sweeps.
// Jobs are not persisted; anything that must survive a restart lives in the
// stores and is picked up again by a sweep.
package jobs
