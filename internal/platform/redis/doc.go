// Package redis implements store.PairingStore on Redis for deployments that
// keep short-lived pairing state out of PostgreSQL. Compare-and-set is done
// with WATCH/MULTI so concurrent confirmations still have a single winner.
package redis
