// Package stats registers statistics queries on a lab session and streams their snapshots.
//
// A Query names the stats to collect, optionally with ordering and a filter expression. Once
// registered with Register, a Reader pulls snapshots in timestamp order with NextSnapshot;
// an AsyncReader does the same on its own goroutine and hands each snapshot, together with
// the previous one, to a callback or a bounded channel.
package stats
