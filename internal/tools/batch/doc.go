// Package batch provides helpers for tools that act on a list of ids:
// parsing the id list argument and running a per-id call sequentially
// while collecting successes in input order and failures on the side.
package batch
