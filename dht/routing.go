package dht

import "sort"

// RoutingTable owns exactly IDBits k-buckets indexed by common-prefix
// length, implementing the Kademlia routing structure for a single
// node. It never stores its own node ID.
//
// Closest-node lookups scan every bucket rather than maintaining any
// secondary index: at the population sizes this simulator targets
// (thousands of contacts at most), a linear scan is simpler to reason
// about and keeps the determinism properties in spec §8 easy to test,
// at the cost of O(total contacts) per lookup instead of O(k log n).
type RoutingTable struct {
	selfID  ID
	idBits  int
	k       int
	buckets []*KBucket
}

// NewRoutingTable creates a routing table for selfID with idBits
// k-buckets, each holding up to k contacts.
func NewRoutingTable(selfID ID, k, idBits int) *RoutingTable {
	buckets := make([]*KBucket, idBits)
	for i := range buckets {
		buckets[i] = NewKBucket(k)
	}
	return &RoutingTable{selfID: selfID, idBits: idBits, k: k, buckets: buckets}
}

// K returns the configured per-bucket capacity.
func (rt *RoutingTable) K() int { return rt.k }

// Update refreshes or inserts a contact. It never inserts selfID and
// returns false in that case without error. The bucket index is
// derived from BucketIndex(selfID, id); see spec §4.1 for why this can
// never be out of range for a well-formed, non-self ID.
func (rt *RoutingTable) Update(id ID, address Address, lastSeen int64) bool {
	if rt.selfID.Equal(id) {
		return false
	}
	idx, err := BucketIndex(rt.selfID, id)
	if err != nil || idx < 0 || idx >= len(rt.buckets) {
		return false
	}
	outcome := rt.buckets[idx].Touch(id, address, lastSeen)
	return outcome == Updated || outcome == Inserted
}

// Remove deletes id from whichever bucket it would occupy, and is a
// no-op if the ID is absent or would be self.
func (rt *RoutingTable) Remove(id ID) bool {
	idx, err := BucketIndex(rt.selfID, id)
	if err != nil || idx < 0 || idx >= len(rt.buckets) {
		return false
	}
	return rt.buckets[idx].Remove(id)
}

// Contains reports whether id is present anywhere in the table.
func (rt *RoutingTable) Contains(id ID) bool {
	idx, err := BucketIndex(rt.selfID, id)
	if err != nil || idx < 0 || idx >= len(rt.buckets) {
		return false
	}
	return rt.buckets[idx].Contains(id)
}

// Get returns the contact recorded for id, if present.
func (rt *RoutingTable) Get(id ID) (Contact, bool) {
	idx, err := BucketIndex(rt.selfID, id)
	if err != nil || idx < 0 || idx >= len(rt.buckets) {
		return Contact{}, false
	}
	return rt.buckets[idx].Get(id)
}

type scoredContact struct {
	contact  Contact
	distance []byte
}

// FindClosest returns up to n contacts closest to target by XOR
// distance, ascending, breaking ties lexicographically by node ID for
// determinism. It scans every bucket; see the type doc for why.
func (rt *RoutingTable) FindClosest(target ID, n int) []Contact {
	var scored []scoredContact
	for _, bucket := range rt.buckets {
		for _, c := range bucket.Contacts() {
			dist, err := Distance(target, c.NodeID)
			if err != nil {
				continue
			}
			scored = append(scored, scoredContact{contact: c, distance: dist})
		}
	}

	sort.Slice(scored, func(i, j int) bool {
		for k := range scored[i].distance {
			if scored[i].distance[k] != scored[j].distance[k] {
				return scored[i].distance[k] < scored[j].distance[k]
			}
		}
		return scored[i].contact.NodeID.Less(scored[j].contact.NodeID)
	})

	if n > len(scored) {
		n = len(scored)
	}
	out := make([]Contact, n)
	for i := 0; i < n; i++ {
		out[i] = scored[i].contact
	}
	return out
}

// AllContacts returns every contact currently known, across all
// buckets, in bucket order. Useful for diagnostics and network-state
// snapshots.
func (rt *RoutingTable) AllContacts() []Contact {
	var out []Contact
	for _, bucket := range rt.buckets {
		out = append(out, bucket.Contacts()...)
	}
	return out
}

// Size returns the total number of contacts across all buckets.
func (rt *RoutingTable) Size() int {
	total := 0
	for _, bucket := range rt.buckets {
		total += bucket.Len()
	}
	return total
}
