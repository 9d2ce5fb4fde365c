/*
Package registry is the fleet-wide, in-memory mirror of every storage
agent's pools, replicas, and nexuses (C2-C5).

# Concurrency model

Each Node runs its own sync-loop goroutine; at most one sync is outstanding
per node at a time. Registry-level indices (pools/replicas/nexuses by key)
are protected by a single RWMutex and only ever mutated from within a
Node's sync loop or from an entity RPC wrapper (Replica.Destroy, and so
on) — never concurrently for the same entity, since a Node's goroutine and
its own RPC wrappers agree on a single Node.mu.

# Events

Registry.Subscribe hands out a buffered channel fed by every node/pool/
replica/nexus mutation. EventStream wraps a subscription with the
replay-then-delta protocol external consumers (watchers, the CSI layer,
the volume FSA) expect: enumerate current state as "new" events, then
forward live events, coalescing under back-pressure.
*/
package registry
