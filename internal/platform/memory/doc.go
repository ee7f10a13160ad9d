// Package memory provides mutex-guarded in-process implementations of the
// store interfaces. They honour the same compare-and-set contracts as the
// PostgreSQL stores and back the service tests and single-node development.
package memory
