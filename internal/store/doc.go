// Package store defines interfaces for data persistence operations.
// These interfaces abstract the underlying data storage mechanism from
// the application's core logic. Every status change of a task or pairing
// token goes through a compare-and-set Transition so that concurrent
// writers (webhooks, sweeps, cancellations) cannot both win.
package store
