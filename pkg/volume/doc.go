/*
Package volume implements the Volume reconciliation state machine and its
manager (C6, C7).

Every Volume owns a reconciliation coroutine triggered by registry events,
spec mutations, publish/unpublish calls, and a periodic safety tick. Each
tick re-reads desired-vs-actual state fresh from the Registry and issues at
most one corrective action per pass (see fsa.go's step, implementing the ten
rules of the FSA in order, first match wins) before re-evaluating; this
mirrors the "never cache across a suspension point" discipline a gRPC call
to a Node or the persistent store requires.

Manager indexes volumes by uuid and serialises CreateVolume/DestroyVolume/
Publish/Unpublish/Update per uuid with a fair mutex (pkg/volume/keylock), so
that concurrent duplicate calls collapse rather than racing.
*/
package volume
