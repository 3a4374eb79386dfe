// Package memory provides an in-memory implementation of the state
// registry. Entries live for the duration of the process; a restart
// drops all in-flight authorization attempts, which is acceptable for
// a single-instance relay.
package memory
