/*
Package childstore implements the persistent store (C11): the networked
key-value record of which nexus children survived the last clean or unclean
shutdown, consulted once per nexus uuid before the Volume FSA assembles its
first nexus. Unlike the teacher's pkg/storage (a local bbolt file embedded in
the control-plane process), this store is reached over the network — the
spec's own wording requires it survive the control plane's own restart
independently — so it is backed by go.etcd.io/etcd/client/v3 rather than
bbolt.

Transport failures are wrapped in a small hand-rolled circuit breaker: no
breaker library appears anywhere in the retrieved example pack, so this one
piece of domain glue is written by hand rather than borrowed.
*/
package childstore
