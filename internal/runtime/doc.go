// Package runtime implements the single-actor node core. One goroutine owns
// all mutable node state and drains a single event queue fed by the transport
// read loop and a periodic tick timer. Handlers registered per body type run
// synchronously on that goroutine, so engine state needs no locking.
//
// The node starts uninitialized; the one-time init message assigns its
// identity and the cluster member list and transitions it to ready. Requests
// arriving before that are answered with a temporarily-unavailable error.
package runtime
