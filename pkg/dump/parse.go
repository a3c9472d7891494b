package dump

import (
	"bytes"
	"errors"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// Field counts of the two line shapes. wg does not tag its lines, the column
// count is the only thing telling an interface line from a peer line.
const (
	interfaceFields = 5
	peerFields      = 9
)

const (
	noneToken  = "(none)"
	fwmarkOff  = "off"
	fieldSplit = "\t"
)

// Peer line columns.
const (
	peerInterface = iota
	peerPublicKey
	peerPresharedKey
	peerEndpoint
	peerAllowedIPs
	peerLatestHandshake
	peerTransferRx
	peerTransferTx
	peerKeepalive
)

// Interface line columns.
const (
	ifaceName = iota
	ifacePrivateKey
	ifacePublicKey
	ifaceListenPort
	ifaceFwmark
)

// Parse converts the output of `wg show all dump` into a Snapshot.
//
// Lines that match neither shape or carry an undecodable field are dropped
// and reported through Snapshot.Skipped. An error is returned only when the
// first line is not valid text.
func Parse(raw []byte) (*Snapshot, error) {
	return ParseAt(raw, time.Now())
}

// ParseAt is Parse with an explicit parse time.
func ParseAt(raw []byte, now time.Time) (*Snapshot, error) {
	snap := &Snapshot{parsedAt: now}
	if len(raw) == 0 {
		return snap, nil
	}

	seenPeers := make(map[[2]string]struct{})
	seenIfaces := make(map[string]struct{})

	for i, b := range bytes.Split(raw, []byte{'\n'}) {
		lineNo := i + 1
		if !utf8.Valid(b) {
			if i == 0 {
				return nil, &ParseError{Line: lineNo, Reason: "first line is not valid UTF-8", Err: ErrUndecodableInput}
			}
			snap.skip(&ParseError{Line: lineNo, Reason: "line is not valid UTF-8", Err: ErrUndecodableInput})
			continue
		}
		line := strings.Trim(string(b), " \r")
		if line == "" {
			continue
		}

		fields := strings.Split(line, fieldSplit)
		switch len(fields) {
		case interfaceFields:
			rec, err := parseInterface(lineNo, fields)
			if err != nil {
				snap.skip(err)
				continue
			}
			if _, dup := seenIfaces[rec.Interface]; dup {
				snap.skip(&ParseError{Line: lineNo, Fields: len(fields), Reason: "duplicate interface " + rec.Interface})
				continue
			}
			seenIfaces[rec.Interface] = struct{}{}
			snap.interfaces = append(snap.interfaces, rec)
		case peerFields:
			rec, err := parsePeer(lineNo, fields)
			if err != nil {
				snap.skip(err)
				continue
			}
			key := [2]string{rec.Interface, rec.PublicKey}
			if _, dup := seenPeers[key]; dup {
				snap.skip(&ParseError{Line: lineNo, Fields: len(fields), Reason: "duplicate peer on " + rec.Interface})
				continue
			}
			seenPeers[key] = struct{}{}
			snap.peers = append(snap.peers, rec)
		default:
			snap.skip(&ParseError{Line: lineNo, Fields: len(fields), Reason: "field count matches neither interface nor peer shape"})
		}
	}
	return snap, nil
}

func (s *Snapshot) skip(err error) { s.skipped = append(s.skipped, err) }

func parsePeer(lineNo int, fields []string) (PeerRecord, error) {
	for i, f := range fields {
		if f == noneToken {
			fields[i] = ""
		}
	}
	hs, err := parseHandshake(fields[peerLatestHandshake])
	if err != nil {
		return PeerRecord{}, &FieldDecodeError{Line: lineNo, Field: "latest-handshake", Value: fields[peerLatestHandshake], Err: err}
	}
	rx, err := parseCounter(fields[peerTransferRx])
	if err != nil {
		return PeerRecord{}, &FieldDecodeError{Line: lineNo, Field: "transfer-rx", Value: fields[peerTransferRx], Err: err}
	}
	tx, err := parseCounter(fields[peerTransferTx])
	if err != nil {
		return PeerRecord{}, &FieldDecodeError{Line: lineNo, Field: "transfer-tx", Value: fields[peerTransferTx], Err: err}
	}
	return PeerRecord{
		Interface:       fields[peerInterface],
		PublicKey:       fields[peerPublicKey],
		Endpoint:        fields[peerEndpoint],
		AllowedIPs:      fields[peerAllowedIPs],
		LatestHandshake: hs,
		TransferRx:      rx,
		TransferTx:      tx,
	}, nil
}

func parseInterface(lineNo int, fields []string) (InterfaceRecord, error) {
	// wg prints (none) for an interface without a key; a key that does not
	// decode is treated the same way rather than dropping the interface.
	priv, _ := ParsePrivateKey(fields[ifacePrivateKey])

	port, err := parsePort(fields[ifaceListenPort])
	if err != nil {
		return InterfaceRecord{}, &FieldDecodeError{Line: lineNo, Field: "listen-port", Value: fields[ifaceListenPort], Err: err}
	}
	mark, err := parseFwmark(fields[ifaceFwmark])
	if err != nil {
		return InterfaceRecord{}, &FieldDecodeError{Line: lineNo, Field: "fwmark", Value: fields[ifaceFwmark], Err: err}
	}
	return InterfaceRecord{
		Interface:  fields[ifaceName],
		PrivateKey: priv,
		PublicKey:  fields[ifacePublicKey],
		ListenPort: port,
		Fwmark:     mark,
	}, nil
}

var errNegative = errors.New("negative value")

func parseHandshake(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, err
	}
	if v < 0 {
		return 0, errNegative
	}
	return v, nil
}

func parseCounter(s string) (uint64, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.ParseUint(s, 10, 64)
}

func parsePort(s string) (uint16, error) {
	if s == "" || s == noneToken {
		return 0, nil
	}
	v, err := strconv.ParseUint(s, 10, 16)
	return uint16(v), err
}

func parseFwmark(s string) (uint32, error) {
	if s == "" || s == noneToken || s == fwmarkOff {
		return 0, nil
	}
	v, err := strconv.ParseUint(s, 0, 32)
	return uint32(v), err
}
