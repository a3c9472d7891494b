// Package dump parses the tab-separated output of `wg show all dump` into
// peer and interface records.
package dump

import (
	"slices"
	"time"
)

// PeerRecord is one peer line of a dump. The preshared key and persistent
// keepalive columns are consumed for positioning only and not retained.
type PeerRecord struct {
	Interface  string
	PublicKey  string
	Endpoint   string // empty when wg reported (none)
	AllowedIPs string // verbatim, comma separated CIDRs

	// LatestHandshake is Unix seconds; 0 means no handshake has happened.
	LatestHandshake int64
	TransferRx      uint64
	TransferTx      uint64
}

// HandshakeTime returns the latest handshake and whether there was one.
func (p PeerRecord) HandshakeTime() (time.Time, bool) {
	if p.LatestHandshake <= 0 {
		return time.Time{}, false
	}
	return time.Unix(p.LatestHandshake, 0), true
}

// InterfaceRecord is one interface line of a dump.
type InterfaceRecord struct {
	Interface  string
	PrivateKey PrivateKey
	PublicKey  string
	ListenPort uint16
	Fwmark     uint32 // 0 when wg reported "off"
}

// KeyMismatch reports whether the private key is set and does not derive the
// listed public key.
func (r InterfaceRecord) KeyMismatch() bool {
	if r.PrivateKey.IsZero() {
		return false
	}
	derived, err := r.PrivateKey.PublicKey()
	if err != nil {
		return true
	}
	listed, err := parsePublicKey(r.PublicKey)
	if err != nil {
		return true
	}
	return !derived.Equals(listed)
}

// Snapshot is the result of parsing one dump. It is never modified after
// Parse returns; accessors hand out copies.
type Snapshot struct {
	peers      []PeerRecord
	interfaces []InterfaceRecord
	skipped    []error
	parsedAt   time.Time
}

// NewSnapshot builds a snapshot from already parsed records.
func NewSnapshot(peers []PeerRecord, interfaces []InterfaceRecord, parsedAt time.Time) *Snapshot {
	return &Snapshot{
		peers:      slices.Clone(peers),
		interfaces: slices.Clone(interfaces),
		parsedAt:   parsedAt,
	}
}

// Peers returns the peer records in dump order.
func (s *Snapshot) Peers() []PeerRecord {
	if s == nil {
		return nil
	}
	return slices.Clone(s.peers)
}

// Interfaces returns the interface records in dump order.
func (s *Snapshot) Interfaces() []InterfaceRecord {
	if s == nil {
		return nil
	}
	return slices.Clone(s.interfaces)
}

// Skipped returns one *ParseError or *FieldDecodeError per dropped line.
func (s *Snapshot) Skipped() []error {
	if s == nil {
		return nil
	}
	return slices.Clone(s.skipped)
}

// ParsedAt is when the dump was parsed, the zero time for a nil snapshot.
func (s *Snapshot) ParsedAt() time.Time {
	if s == nil {
		return time.Time{}
	}
	return s.parsedAt
}

// Equal compares the records of two snapshots. Parse time and skipped lines
// are not part of the comparison.
func (s *Snapshot) Equal(o *Snapshot) bool {
	if s == nil || o == nil {
		return s == o
	}
	return slices.Equal(s.peers, o.peers) && slices.Equal(s.interfaces, o.interfaces)
}
