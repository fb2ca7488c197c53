// Package testutil contains helpers used across tests to drain normalized
// event streams and assert over their frames without repeating the same
// collection loops. These helpers are intentionally minimal and avoid adding
// third-party dependencies. They are not intended for production usage.
package testutil
