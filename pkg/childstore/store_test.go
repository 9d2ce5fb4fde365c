package childstore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexusvol/control-plane/pkg/types"
)

func replicaWithRealUUID(uuid string) types.Replica {
	return types.Replica{
		UUID: "logical-" + uuid,
		URI:  "nvmf://host/nqn?uuid=" + uuid,
	}
}

func TestDecodeRecordRejectsMalformedJSON(t *testing.T) {
	_, err := decodeRecord([]byte("not json"))
	require.Error(t, err)
}

func TestDecodeRecordRejectsChildMissingUUID(t *testing.T) {
	_, err := decodeRecord([]byte(`{"clean_shutdown":true,"children":[{"healthy":true}]}`))
	require.Error(t, err)
}

func TestFilterByRecordCleanShutdownKeepsAllHealthy(t *testing.T) {
	rec, err := decodeRecord([]byte(`{
		"clean_shutdown": true,
		"children": [
			{"uuid": "a", "healthy": true},
			{"uuid": "b", "healthy": false},
			{"uuid": "c", "healthy": true}
		]
	}`))
	require.NoError(t, err)

	replicas := []types.Replica{replicaWithRealUUID("a"), replicaWithRealUUID("b"), replicaWithRealUUID("c")}
	got := filterByRecord(rec, replicas)

	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].RealUUID())
	assert.Equal(t, "c", got[1].RealUUID())
}

func TestFilterByRecordUncleanShutdownKeepsAtMostOneByChildOrder(t *testing.T) {
	rec, err := decodeRecord([]byte(`{
		"clean_shutdown": false,
		"children": [
			{"uuid": "a", "healthy": false},
			{"uuid": "b", "healthy": true},
			{"uuid": "c", "healthy": true}
		]
	}`))
	require.NoError(t, err)

	replicas := []types.Replica{replicaWithRealUUID("c"), replicaWithRealUUID("b"), replicaWithRealUUID("a")}
	got := filterByRecord(rec, replicas)

	require.Len(t, got, 1)
	assert.Equal(t, "b", got[0].RealUUID())
}

func TestFilterByRecordUncleanShutdownWithNoHealthyChildReturnsEmpty(t *testing.T) {
	rec, err := decodeRecord([]byte(`{"clean_shutdown": false, "children": [{"uuid": "a", "healthy": false}]}`))
	require.NoError(t, err)

	got := filterByRecord(rec, []types.Replica{replicaWithRealUUID("a")})
	assert.Empty(t, got)
}

func TestBreakerOpensAfterThresholdAndHalfOpensAfterWindow(t *testing.T) {
	b := newBreaker(3, 10*time.Millisecond)
	assert.True(t, b.allow())

	b.recordFailure()
	b.recordFailure()
	assert.True(t, b.allow(), "still below threshold")
	b.recordFailure()

	assert.False(t, b.allow(), "just tripped, still within the open window")

	time.Sleep(20 * time.Millisecond)
	assert.True(t, b.allow(), "window elapsed, admits a half-open trial call")
	b.recordSuccess()
	assert.Equal(t, breakerClosed, b.state)
}

func TestBreakerStaysOpenWithinWindow(t *testing.T) {
	b := newBreaker(1, time.Hour)
	b.recordFailure()
	assert.False(t, b.allow())
}
