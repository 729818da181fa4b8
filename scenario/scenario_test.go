package scenario

import (
	"testing"

	"github.com/opd-ai/dhtsim/dht"
	"github.com/opd-ai/dhtsim/simnet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSimulator() *simnet.Simulator {
	return simnet.NewSimulator(simnet.Config{
		TickMS:         100,
		RandomSeed:     1,
		MinDelay:       1,
		MaxDelay:       1,
		BasePacketLoss: 0,
	}, nil)
}

func TestDriverLoadSchedulesNodeJoinWithExplicitIDs(t *testing.T) {
	sim := newTestSimulator()
	driver := NewDriver(sim, dht.DefaultNodeConfig(), nil)
	seed := driver.CreateSeedNode(dht.ID{0x01}, dht.Address{0x01})
	sim.ScheduleEvent(dht.NewEvent(dht.EventNodeJoin, 0, map[string]interface{}{"node_id": seed.ID()}))

	data := []byte(`[
		{"time": 5, "event": "NODE_JOIN", "params": {"nodeID": "02", "address": "02", "seedID": "01"}}
	]`)
	require.NoError(t, driver.Load(data))

	sim.Run(50)

	joined, ok := sim.Node(dht.ID{0x02})
	require.True(t, ok)
	assert.True(t, joined.Online())
}

func TestDriverLoadGeneratesRandomIDWhenOmitted(t *testing.T) {
	sim := newTestSimulator()
	driver := NewDriver(sim, dht.DefaultNodeConfig(), nil)

	data := []byte(`[{"time": 0, "event": "NODE_JOIN", "params": {}}]`)
	require.NoError(t, driver.Load(data))

	assert.Equal(t, 1, sim.NodeCount())
}

func TestDriverLoadSchedulesPublishAndRetrieve(t *testing.T) {
	sim := newTestSimulator()
	driver := NewDriver(sim, dht.DefaultNodeConfig(), nil)
	seed := driver.CreateSeedNode(dht.ID{0x01}, dht.Address{0x01})
	sim.ScheduleEvent(dht.NewEvent(dht.EventNodeJoin, 0, map[string]interface{}{"node_id": seed.ID()}))

	data := []byte(`[
		{"time": 1, "event": "FILE_PUBLISH", "params": {"nodeID": "01", "fileID": "aabb"}},
		{"time": 2, "event": "FILE_RETRIEVE", "params": {"nodeID": "01", "fileID": "aabb"}}
	]`)
	require.NoError(t, driver.Load(data))

	sim.Run(10)

	fileID, err := dht.IDFromHex("aabb")
	require.NoError(t, err)
	assert.Contains(t, seed.OwnedFileIDs(), fileID.String())
}

func TestDriverLoadSchedulesNodeLeave(t *testing.T) {
	sim := newTestSimulator()
	driver := NewDriver(sim, dht.DefaultNodeConfig(), nil)
	seed := driver.CreateSeedNode(dht.ID{0x01}, dht.Address{0x01})
	sim.ScheduleEvent(dht.NewEvent(dht.EventNodeJoin, 0, map[string]interface{}{"node_id": seed.ID()}))

	data := []byte(`[{"time": 3, "event": "NODE_LEAVE", "params": {"nodeID": "01"}}]`)
	require.NoError(t, driver.Load(data))

	sim.Run(10)

	assert.False(t, seed.Online())
}

func TestDriverLoadRejectsUnknownEventType(t *testing.T) {
	sim := newTestSimulator()
	driver := NewDriver(sim, dht.DefaultNodeConfig(), nil)

	data := []byte(`[{"time": 0, "event": "BOGUS_EVENT", "params": {}}]`)
	err := driver.Load(data)
	assert.Error(t, err)
}

func TestDriverLoadRejectsMalformedJSON(t *testing.T) {
	sim := newTestSimulator()
	driver := NewDriver(sim, dht.DefaultNodeConfig(), nil)

	err := driver.Load([]byte(`not json`))
	assert.Error(t, err)
}

func TestDriverLoadFileMissingReturnsError(t *testing.T) {
	sim := newTestSimulator()
	driver := NewDriver(sim, dht.DefaultNodeConfig(), nil)

	err := driver.LoadFile("/nonexistent/path/to/scenario.json")
	assert.Error(t, err)
}
