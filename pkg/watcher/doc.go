/*
Package watcher implements the generic list-watch cache (C8) the pool and
node operators reconcile against instead of polling the orchestrator API
directly.

Cache wraps one GroupVersionResource in a k8s.io/client-go SharedIndexInformer
built from a dynamic ListWatch. Start blocks until the first list completes,
retrying with exponential backoff on failure. Once synced, a background
goroutine tears the informer down and rebuilds it whenever no watch event has
been observed for IdleTimeout, recovering from silent TCP black-holes.
Write operations block on the matching new|mod|del event coming back through
the same informer before returning, so a caller that reads right after a
write observes its own change.
*/
package watcher
