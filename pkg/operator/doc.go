/*
Package operator implements the two CR-facing reconcile loops (C9, C10) that
sit between the orchestrator's custom resources and the in-memory Registry:
PoolOperator drives MayastorPool objects, NodeOperator drives MayastorNode
objects. Both consume a pkg/watcher.Cache for their resource plus a
pkg/registry.Subscriber for the corresponding entity, and react to whichever
side changed first. PoolOperator also re-reconciles every pool once per
PoolConfig.TickPeriod; NodeOperator does not poll.

The loop shape is the teacher's pkg/reconciler: a single goroutine serializes
all reconciliation for one resource kind, so there is never a read/modify/write
race between two reconciles of the same object.
*/
package operator
