package dht

import (
	"encoding/hex"
	"encoding/json"
)

// Address is an opaque network-location identifier. The simulator's
// distance-weighted loss model (spec §4.9) treats an Address as a
// big-endian unsigned integer after left-zero-padding (or truncating)
// to 4 bytes; beyond that, an Address is never interpreted, only
// compared and hex-encoded.
type Address []byte

// String returns the lowercase hex encoding of the address.
func (a Address) String() string {
	return hex.EncodeToString(a)
}

// AddressFromHex decodes a hex-encoded address as used on the wire and
// in scenario files.
func AddressFromHex(s string) (Address, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, err
	}
	return Address(b), nil
}

// MarshalJSON renders the address as a hex string, matching ID's
// encoding so nested occurrences (inside message content) use the same
// format as top-level wire-envelope fields.
func (a Address) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

// UnmarshalJSON is MarshalJSON's inverse.
func (a *Address) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	decoded, err := AddressFromHex(s)
	if err != nil {
		return err
	}
	*a = decoded
	return nil
}

// Equal reports whether two addresses have identical bytes.
func (a Address) Equal(other Address) bool {
	if len(a) != len(other) {
		return false
	}
	for i := range a {
		if a[i] != other[i] {
			return false
		}
	}
	return true
}

// Contact is a single routing-table entry: a peer's identity, its last
// known network location, and the virtual time it was last confirmed
// alive.
type Contact struct {
	NodeID   ID
	Address  Address
	LastSeen int64
}

// ProviderRecord asserts that Address claimed, as of LastSeen, to hold
// a copy of some file. Provider records are never garbage-collected by
// this implementation (spec §9 open question 4): republish_interval is
// accepted as configuration but unused by the core.
type ProviderRecord struct {
	Address  Address
	LastSeen int64
}
