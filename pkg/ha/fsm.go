package ha

import (
	"io"

	"github.com/hashicorp/raft"
)

// noopFSM is the Raft FSM backing leader election only: this package never
// replicates domain state through the log (registry/volume state lives in
// memory, reconstructed from agents per spec.md §4.7), so Apply/Snapshot/
// Restore have nothing to do beyond satisfying raft.FSM.
type noopFSM struct{}

func (noopFSM) Apply(*raft.Log) interface{} { return nil }

func (noopFSM) Snapshot() (raft.FSMSnapshot, error) { return noopSnapshot{}, nil }

func (noopFSM) Restore(rc io.ReadCloser) error {
	return rc.Close()
}

type noopSnapshot struct{}

func (noopSnapshot) Persist(sink raft.SnapshotSink) error { return sink.Close() }

func (noopSnapshot) Release() {}
