package ha

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/raft"
	raftboltdb "github.com/hashicorp/raft-boltdb"

	"github.com/nexusvol/control-plane/pkg/metrics"
)

// Config mirrors the teacher's manager.Config, trimmed to what leader
// election needs.
type Config struct {
	NodeID   string
	BindAddr string
	DataDir  string

	// HeartbeatTimeout/ElectionTimeout/LeaderLeaseTimeout default to the
	// teacher's tuned-for-LAN values (500ms/500ms/250ms) when zero.
	HeartbeatTimeout   time.Duration
	ElectionTimeout    time.Duration
	LeaderLeaseTimeout time.Duration
}

func (c Config) raftConfig() *raft.Config {
	cfg := raft.DefaultConfig()
	cfg.LocalID = raft.ServerID(c.NodeID)

	heartbeat := c.HeartbeatTimeout
	if heartbeat == 0 {
		heartbeat = 500 * time.Millisecond
	}
	election := c.ElectionTimeout
	if election == 0 {
		election = 500 * time.Millisecond
	}
	lease := c.LeaderLeaseTimeout
	if lease == 0 {
		lease = 250 * time.Millisecond
	}
	cfg.HeartbeatTimeout = heartbeat
	cfg.ElectionTimeout = election
	cfg.LeaderLeaseTimeout = lease
	return cfg
}

// Elector wraps a raft.Raft whose only job is picking a leader among
// control-plane replicas (SPEC_FULL.md §2's added HA section).
type Elector struct {
	cfg  Config
	raft *raft.Raft

	stopLeaderGauge chan struct{}
}

// Bootstrap starts a brand-new single-node cluster with cfg.NodeID as its
// only member, grounded in the teacher's Manager.Bootstrap.
func Bootstrap(cfg Config) (*Elector, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create raft data dir: %w", err)
	}

	transport, snapshotStore, logStore, stableStore, err := buildRaftDeps(cfg)
	if err != nil {
		return nil, err
	}

	r, err := raft.NewRaft(cfg.raftConfig(), noopFSM{}, logStore, stableStore, snapshotStore, transport)
	if err != nil {
		return nil, fmt.Errorf("create raft: %w", err)
	}

	future := r.BootstrapCluster(raft.Configuration{
		Servers: []raft.Server{{ID: cfg.raftConfig().LocalID, Address: transport.LocalAddr()}},
	})
	if err := future.Error(); err != nil {
		return nil, fmt.Errorf("bootstrap cluster: %w", err)
	}

	e := &Elector{cfg: cfg, raft: r, stopLeaderGauge: make(chan struct{})}
	e.watchLeaderGauge()
	return e, nil
}

// Join starts raft for cfg.NodeID without bootstrapping a new cluster; the
// caller must separately ask an existing leader to AddVoter this node (e.g.
// over the existing agent/control gRPC surface).
func Join(cfg Config) (*Elector, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create raft data dir: %w", err)
	}

	transport, snapshotStore, logStore, stableStore, err := buildRaftDeps(cfg)
	if err != nil {
		return nil, err
	}

	r, err := raft.NewRaft(cfg.raftConfig(), noopFSM{}, logStore, stableStore, snapshotStore, transport)
	if err != nil {
		return nil, fmt.Errorf("create raft: %w", err)
	}

	e := &Elector{cfg: cfg, raft: r, stopLeaderGauge: make(chan struct{})}
	e.watchLeaderGauge()
	return e, nil
}

func buildRaftDeps(cfg Config) (*raft.NetworkTransport, *raft.FileSnapshotStore, *raftboltdb.BoltStore, *raftboltdb.BoltStore, error) {
	addr, err := net.ResolveTCPAddr("tcp", cfg.BindAddr)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("resolve bind address: %w", err)
	}
	transport, err := raft.NewTCPTransport(cfg.BindAddr, addr, 3, 10*time.Second, os.Stderr)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("create transport: %w", err)
	}
	snapshotStore, err := raft.NewFileSnapshotStore(cfg.DataDir, 2, os.Stderr)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("create snapshot store: %w", err)
	}
	logStore, err := raftboltdb.NewBoltStore(filepath.Join(cfg.DataDir, "raft-log.db"))
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("create log store: %w", err)
	}
	stableStore, err := raftboltdb.NewBoltStore(filepath.Join(cfg.DataDir, "raft-stable.db"))
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("create stable store: %w", err)
	}
	return transport, snapshotStore, logStore, stableStore, nil
}

// AddVoter adds a new replica to the raft quorum. Only the leader may call
// this successfully.
func (e *Elector) AddVoter(nodeID, address string) error {
	if !e.IsLeader() {
		return fmt.Errorf("not the leader, current leader: %s", e.LeaderAddr())
	}
	future := e.raft.AddVoter(raft.ServerID(nodeID), raft.ServerAddress(address), 0, 10*time.Second)
	return future.Error()
}

// RemoveServer removes a replica from the raft quorum.
func (e *Elector) RemoveServer(nodeID string) error {
	if !e.IsLeader() {
		return fmt.Errorf("not the leader")
	}
	future := e.raft.RemoveServer(raft.ServerID(nodeID), 0, 10*time.Second)
	return future.Error()
}

// GetClusterServers returns the current raft quorum membership.
func (e *Elector) GetClusterServers() ([]raft.Server, error) {
	future := e.raft.GetConfiguration()
	if err := future.Error(); err != nil {
		return nil, fmt.Errorf("get configuration: %w", err)
	}
	return future.Configuration().Servers, nil
}

// IsLeader reports whether this replica currently holds raft leadership.
// cmd/nexus-controller wires it as the pkg/csi.ReadyFunc.
func (e *Elector) IsLeader() bool {
	return e.raft.State() == raft.Leader
}

// LeaderAddr returns the raft-advertised address of the current leader, or
// empty if unknown.
func (e *Elector) LeaderAddr() string {
	return string(e.raft.Leader())
}

// Shutdown stops the raft instance and the leadership gauge watcher.
func (e *Elector) Shutdown() error {
	close(e.stopLeaderGauge)
	future := e.raft.Shutdown()
	if err := future.Error(); err != nil {
		return fmt.Errorf("shutdown raft: %w", err)
	}
	return nil
}

// watchLeaderGauge mirrors raft's leadership observation channel onto the
// RaftLeader/RaftPeers prometheus gauges.
func (e *Elector) watchLeaderGauge() {
	ch := e.raft.LeaderCh()
	go func() {
		for {
			select {
			case leader, ok := <-ch:
				if !ok {
					return
				}
				if leader {
					metrics.RaftLeader.Set(1)
				} else {
					metrics.RaftLeader.Set(0)
				}
				if servers, err := e.GetClusterServers(); err == nil {
					metrics.RaftPeers.Set(float64(len(servers)))
				}
			case <-e.stopLeaderGauge:
				return
			}
		}
	}()
}
