// Package scenario reads a JSON event timeline (spec §6) and drives a
// simnet.Simulator from it: creating nodes, scheduling their joins and
// departures, and scheduling file publish/retrieve requests.
package scenario

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"os"

	"github.com/opd-ai/dhtsim/dht"
	"github.com/opd-ai/dhtsim/simnet"
)

// rawEvent is the on-disk shape of one scenario entry:
//
//	{"time": 120, "event": "NODE_JOIN", "params": {"nodeID": "ab12..", "address": "c0ffee"}}
type rawEvent struct {
	Time   int64                  `json:"time"`
	Event  string                 `json:"event"`
	Params map[string]interface{} `json:"params"`
}

// Driver loads scenario files and turns them into scheduled
// dht.Events plus newly-created, registered nodes, the way the
// original implementation's main() did inline.
type Driver struct {
	sim     *simnet.Simulator
	nodeCfg dht.NodeConfig
	seedID  dht.ID

	// AddressBytes is the length random addresses are generated at when
	// a scenario entry omits one. The original used 6 bytes (roughly a
	// MAC-address-sized opaque token).
	AddressBytes int
}

// NewDriver creates a driver that registers nodes on sim using nodeCfg,
// bootstrapping every NODE_JOIN through seedID unless a scenario entry
// names its own seed.
func NewDriver(sim *simnet.Simulator, nodeCfg dht.NodeConfig, seedID dht.ID) *Driver {
	return &Driver{sim: sim, nodeCfg: nodeCfg, seedID: seedID, AddressBytes: 6}
}

// CreateSeedNode builds and registers the network's bootstrap node. It
// starts offline; callers typically schedule an immediate NODE_JOIN
// event with no seed for it (spec's seed node is its own bootstrap).
func (d *Driver) CreateSeedNode(id dht.ID, address dht.Address) *dht.Node {
	node := dht.NewNode(id, address, d.sim, d.nodeCfg)
	d.sim.RegisterNode(node)
	return node
}

// LoadFile reads a scenario file from path and schedules every entry
// it contains.
func (d *Driver) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("scenario: read %s: %w", path, err)
	}
	return d.Load(data)
}

// Load parses scenario JSON and schedules every entry it contains.
func (d *Driver) Load(data []byte) error {
	var events []rawEvent
	if err := json.Unmarshal(data, &events); err != nil {
		return fmt.Errorf("scenario: decode: %w", err)
	}

	for i, re := range events {
		if err := d.scheduleOne(re); err != nil {
			return fmt.Errorf("scenario: entry %d (%s): %w", i, re.Event, err)
		}
	}
	return nil
}

func (d *Driver) scheduleOne(re rawEvent) error {
	switch re.Event {
	case "NODE_JOIN":
		return d.scheduleNodeJoin(re)
	case "NODE_LEAVE":
		return d.scheduleNodeLeave(re)
	case "FILE_PUBLISH":
		return d.scheduleFilePublish(re)
	case "FILE_RETRIEVE":
		return d.scheduleFileRetrieve(re)
	default:
		return fmt.Errorf("unknown event type %q", re.Event)
	}
}

func (d *Driver) scheduleNodeJoin(re rawEvent) error {
	nodeID, err := idOrRandom(re.Params["nodeID"], d.nodeCfg.IDBits, d.sim.RNG())
	if err != nil {
		return err
	}
	address, err := addressOrRandom(re.Params["address"], d.AddressBytes, d.sim.RNG())
	if err != nil {
		return err
	}

	node := dht.NewNode(nodeID, address, d.sim, d.nodeCfg)
	d.sim.RegisterNode(node)

	seedID := d.seedID
	if s, ok := re.Params["seedID"]; ok {
		explicit, err := idOrRandom(s, d.nodeCfg.IDBits, d.sim.RNG())
		if err != nil {
			return err
		}
		seedID = explicit
	}

	d.sim.ScheduleEvent(dht.NewEvent(dht.EventNodeJoin, re.Time, map[string]interface{}{
		"node_id": nodeID,
		"seed_id": seedID,
	}))
	return nil
}

func (d *Driver) scheduleNodeLeave(re rawEvent) error {
	nodeID, err := requiredID(re.Params["nodeID"])
	if err != nil {
		return err
	}
	d.sim.ScheduleEvent(dht.NewEvent(dht.EventNodeLeave, re.Time, map[string]interface{}{
		"node_id": nodeID,
	}))
	return nil
}

func (d *Driver) scheduleFilePublish(re rawEvent) error {
	nodeID, fileID, err := requiredNodeAndFile(re.Params)
	if err != nil {
		return err
	}
	d.sim.ScheduleEvent(dht.NewEvent(dht.EventFilePublish, re.Time, map[string]interface{}{
		"node_id": nodeID,
		"file_id": fileID,
	}))
	return nil
}

func (d *Driver) scheduleFileRetrieve(re rawEvent) error {
	nodeID, fileID, err := requiredNodeAndFile(re.Params)
	if err != nil {
		return err
	}
	d.sim.ScheduleEvent(dht.NewEvent(dht.EventFileRetrieve, re.Time, map[string]interface{}{
		"node_id": nodeID,
		"file_id": fileID,
	}))
	return nil
}

func requiredNodeAndFile(params map[string]interface{}) (dht.ID, dht.ID, error) {
	nodeID, err := requiredID(params["nodeID"])
	if err != nil {
		return nil, nil, err
	}
	fileID, err := requiredID(params["fileID"])
	if err != nil {
		return nil, nil, err
	}
	return nodeID, fileID, nil
}

func requiredID(v interface{}) (dht.ID, error) {
	s, ok := v.(string)
	if !ok || s == "" {
		return nil, fmt.Errorf("missing required id field")
	}
	return dht.IDFromHex(s)
}

func idOrRandom(v interface{}, bits int, rng *rand.Rand) (dht.ID, error) {
	s, ok := v.(string)
	if !ok || s == "" {
		return dht.RandomID(bits, rng), nil
	}
	return dht.IDFromHex(s)
}

func addressOrRandom(v interface{}, length int, rng *rand.Rand) (dht.Address, error) {
	s, ok := v.(string)
	if !ok || s == "" {
		return dht.Address(dht.RandomID(length*8, rng)), nil
	}
	return dht.AddressFromHex(s)
}
