package dht

// TouchOutcome reports what KBucket.Touch did with a contact.
type TouchOutcome int

const (
	// Updated means the contact already existed and was refreshed and
	// moved to the most-recently-seen end of the bucket.
	Updated TouchOutcome = iota
	// Inserted means the contact was new and the bucket had room.
	Inserted
	// Full means the contact was new but the bucket was already at
	// capacity; the caller decides what, if anything, to do about it
	// (spec §4.2: this implementation tail-drops the new contact and
	// leaves replacement — e.g. pinging the head — to the protocol
	// layer).
	Full
)

// KBucket is an ordered, bounded list of contacts sharing a
// common-prefix-length range with the owning node. Contacts are kept
// in least-recently-seen-first order: index 0 is the oldest entry,
// the last index is the most recently confirmed contact.
type KBucket struct {
	k        int
	contacts []Contact
}

// NewKBucket creates an empty bucket with the given capacity.
func NewKBucket(k int) *KBucket {
	return &KBucket{k: k, contacts: make([]Contact, 0, k)}
}

// Len returns the number of contacts currently stored.
func (b *KBucket) Len() int {
	return len(b.contacts)
}

// Contains reports whether id is present in the bucket.
func (b *KBucket) Contains(id ID) bool {
	return b.indexOf(id) >= 0
}

// Get returns the contact for id, if present.
func (b *KBucket) Get(id ID) (Contact, bool) {
	i := b.indexOf(id)
	if i < 0 {
		return Contact{}, false
	}
	return b.contacts[i], true
}

// Touch records a sighting of (id, address) at lastSeen. If id is
// already present, it is refreshed in place and moved to the tail
// (most recently seen) and Updated is returned. If id is new and the
// bucket has room, it is appended and Inserted is returned. If id is
// new and the bucket is full, nothing changes and Full is returned.
func (b *KBucket) Touch(id ID, address Address, lastSeen int64) TouchOutcome {
	if i := b.indexOf(id); i >= 0 {
		c := b.contacts[i]
		c.Address = address
		c.LastSeen = lastSeen
		b.contacts = append(b.contacts[:i], b.contacts[i+1:]...)
		b.contacts = append(b.contacts, c)
		return Updated
	}

	if len(b.contacts) < b.k {
		b.contacts = append(b.contacts, Contact{NodeID: id, Address: address, LastSeen: lastSeen})
		return Inserted
	}

	return Full
}

// Remove deletes id from the bucket, reporting whether it was present.
func (b *KBucket) Remove(id ID) bool {
	i := b.indexOf(id)
	if i < 0 {
		return false
	}
	b.contacts = append(b.contacts[:i], b.contacts[i+1:]...)
	return true
}

// Oldest returns the least-recently-seen contact (the head of the
// bucket), or false if the bucket is empty. This is the candidate a
// protocol layer would PING to validate before evicting in favor of a
// new contact.
func (b *KBucket) Oldest() (Contact, bool) {
	if len(b.contacts) == 0 {
		return Contact{}, false
	}
	return b.contacts[0], true
}

// Contacts returns a copy of the bucket's contents, oldest first.
func (b *KBucket) Contacts() []Contact {
	out := make([]Contact, len(b.contacts))
	copy(out, b.contacts)
	return out
}

func (b *KBucket) indexOf(id ID) int {
	for i, c := range b.contacts {
		if c.NodeID.Equal(id) {
			return i
		}
	}
	return -1
}
