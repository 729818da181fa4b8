package simnet

import "sort"

// NodeState is a JSON-serializable summary of a single node, used by
// NetworkState and, in turn, the report package's snapshot exporter.
type NodeState struct {
	ID             string   `json:"id"`
	Address        string   `json:"address"`
	Online         bool     `json:"online"`
	RoutingTableSize int    `json:"routing_table_size"`
	OwnedFiles     []string `json:"owned_files"`
}

// NetworkState is a point-in-time dump of the whole simulation,
// grounded on the original simulator's get_network_state: enough to
// inspect convergence and liveness without replaying the event log.
// Unlike the original, this implementation has no HTML visualizer to
// feed — it exists purely as a machine-readable export.
type NetworkState struct {
	Time          int64       `json:"time"`
	NodeCount     int         `json:"node_count"`
	Nodes         []NodeState `json:"nodes"`
	EventsPending int         `json:"events_pending"`
}

// Snapshot captures the simulator's current state. Nodes are sorted by
// ID, and each node's owned files by file ID, so that two runs from the same seed and scenario produce
// byte-identical JSON (spec §8 scenario 5), rather than whatever order
// Go's map iteration happens to yield.
func (s *Simulator) Snapshot() NetworkState {
	nodes := make([]NodeState, 0, len(s.nodes))
	for _, n := range s.nodes {
		owned := n.OwnedFileIDs()
		sort.Strings(owned)
		nodes = append(nodes, NodeState{
			ID:               n.ID().String(),
			Address:          n.Address().String(),
			Online:           n.Online(),
			RoutingTableSize: n.RoutingTable().Size(),
			OwnedFiles:       owned,
		})
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })
	return NetworkState{
		Time:          s.clock.Now(),
		NodeCount:     len(s.nodes),
		Nodes:         nodes,
		EventsPending: s.queue.Len(),
	}
}
