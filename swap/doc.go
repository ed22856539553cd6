// Package swap implements the per-swap event-sourced state machine that
// drives a single submarine swap between a Lightning node and the
// Bitcoin/Litecoin base chain, from creation to a terminal outcome.
//
// The package is organised around the classic event-sourcing split:
//
//   - State is the left fold of Events from a zero value (Apply, in
//     apply.go).
//   - Commands are the only way to request a state transition; Exec (in
//     exec.go) turns a (State, Command) pair into new Events, coordinating
//     with external collaborators through the Deps interface along the way.
//   - Handler (in aggregate.go) orchestrates load-fold-exec-append against
//     an EventStore with optimistic concurrency, and is the only thing that
//     may re-enter Exec for a given SwapId -- never concurrently.
//
// Nothing in this package talks to a database, the network, or a wallet
// directly; those are all injected via interfaces so the state machine
// itself stays pure and is simple to test with scenario-style command
// sequences (see exec_test.go).
package swap
