package ha

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func freeTCPAddr(t *testing.T) string {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := lis.Addr().String()
	require.NoError(t, lis.Close())
	return addr
}

func waitForLeader(t *testing.T, e *Elector) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if e.IsLeader() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	require.Fail(t, "elector never became leader")
}

func TestBootstrapSingleNodeBecomesLeader(t *testing.T) {
	cfg := Config{NodeID: "node-1", BindAddr: freeTCPAddr(t), DataDir: t.TempDir()}
	e, err := Bootstrap(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Shutdown() })

	waitForLeader(t, e)
	require.NotEmpty(t, e.LeaderAddr())

	servers, err := e.GetClusterServers()
	require.NoError(t, err)
	require.Len(t, servers, 1)
}

func TestRemoveServerOnUnknownIDIsNoOp(t *testing.T) {
	cfg := Config{NodeID: "node-1", BindAddr: freeTCPAddr(t), DataDir: t.TempDir()}
	e, err := Bootstrap(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Shutdown() })

	waitForLeader(t, e)
	require.NoError(t, e.RemoveServer("node-does-not-exist"))
}

func TestAddVoterFailsWhenNotLeader(t *testing.T) {
	cfg := Config{NodeID: "node-1", BindAddr: freeTCPAddr(t), DataDir: t.TempDir()}
	e, err := Join(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Shutdown() })

	require.False(t, e.IsLeader())
	err = e.AddVoter("node-2", "127.0.0.1:0")
	require.Error(t, err)
}
