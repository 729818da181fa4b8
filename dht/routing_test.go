package dht

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRoutingTableNeverInsertsSelf(t *testing.T) {
	self := ID{0x00, 0x00}
	rt := NewRoutingTable(self, 8, 16)

	ok := rt.Update(self, Address{0x01}, 0)
	assert.False(t, ok)
	assert.Equal(t, 0, rt.Size())
}

func TestRoutingTableUpdateAndContains(t *testing.T) {
	self := ID{0x00, 0x00}
	rt := NewRoutingTable(self, 8, 16)

	other := ID{0x00, 0x01}
	ok := rt.Update(other, Address{0x01}, 5)
	assert.True(t, ok)
	assert.True(t, rt.Contains(other))
	assert.Equal(t, 1, rt.Size())
}

func TestRoutingTableFindClosestOrdersByXORDistance(t *testing.T) {
	self := ID{0x00, 0x00}
	rt := NewRoutingTable(self, 8, 16)

	far := ID{0x80, 0x00}
	near := ID{0x00, 0x01}
	mid := ID{0x00, 0x04}

	rt.Update(far, nil, 0)
	rt.Update(near, nil, 0)
	rt.Update(mid, nil, 0)

	closest := rt.FindClosest(self, 3)
	assert.Equal(t, near, closest[0].NodeID)
	assert.Equal(t, mid, closest[1].NodeID)
	assert.Equal(t, far, closest[2].NodeID)
}

func TestRoutingTableFindClosestCapsAtAvailableContacts(t *testing.T) {
	self := ID{0x00, 0x00}
	rt := NewRoutingTable(self, 8, 16)
	rt.Update(ID{0x00, 0x01}, nil, 0)

	closest := rt.FindClosest(self, 10)
	assert.Len(t, closest, 1)
}

func TestRoutingTableRemove(t *testing.T) {
	self := ID{0x00, 0x00}
	rt := NewRoutingTable(self, 8, 16)
	other := ID{0x00, 0x01}
	rt.Update(other, nil, 0)

	assert.True(t, rt.Remove(other))
	assert.False(t, rt.Contains(other))
}

func TestRoutingTableFullBucketTailDropsNewContact(t *testing.T) {
	self := ID{0x00, 0x00}
	rt := NewRoutingTable(self, 1, 16)

	// Both IDs XOR self to a distance with its highest bit set, so both
	// land in the farthest bucket (index 15), which this table caps at
	// one entry.
	first := ID{0x80, 0x00}
	second := ID{0xff, 0xff}

	assert.True(t, rt.Update(first, nil, 0))
	assert.False(t, rt.Update(second, nil, 0))
	assert.Equal(t, 1, rt.Size())
	assert.True(t, rt.Contains(first))
	assert.False(t, rt.Contains(second))
}
