// Package flagstore is the durable layer behind the update bus.
//
// It keeps one last-write-wins record per update kind, addressed by the
// kind's stable storage key. Records survive process restarts; a consumer
// that was not running when a trigger fired finds the flag on its next
// activation.
//
// Backends:
//   - "sqlite": SQLite database file (default)
//   - "file":   dependency-free snapshot + journal
//   - "memory": process-local, for tests
package flagstore
