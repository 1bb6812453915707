package models

import (
	"bytes"
	"encoding/base32"
	"encoding/binary"
	"fmt"
	"strings"
)

// Principal is an opaque identity of a user or a unit. Unit principals are
// the base URL the unit is reachable on.
type Principal string

const Anonymous Principal = "2vxsx-fae"

const (
	KindAttendee = "eae"
	KindEvent    = "evt"
	KindGroup    = "grp"
)

func (p Principal) String() string { return string(p) }

func (p Principal) IsAnonymous() bool { return p == "" || p == Anonymous }

var identifierEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// Identifier names a record by the unit that minted it, a per-unit counter
// and a kind tag.
type Identifier struct {
	Unit    Principal
	Counter uint64
	Kind    string
}

// Encode renders the identifier as lowercase base32 of
// kind(str) + unit(str) + counter(uint64).
func (id Identifier) Encode() Principal {
	var buf bytes.Buffer
	_ = writeString(&buf, id.Kind)
	_ = writeString(&buf, string(id.Unit))
	_ = binary.Write(&buf, byteOrder, id.Counter)
	return Principal(strings.ToLower(identifierEncoding.EncodeToString(buf.Bytes())))
}

func DecodeIdentifier(p Principal) (Identifier, error) {
	raw, err := identifierEncoding.DecodeString(strings.ToUpper(string(p)))
	if err != nil {
		return Identifier{}, fmt.Errorf("decode identifier %q: %w", p, err)
	}
	r := bytes.NewReader(raw)
	kind, err := readString(r)
	if err != nil {
		return Identifier{}, fmt.Errorf("decode identifier kind: %w", err)
	}
	unit, err := readString(r)
	if err != nil {
		return Identifier{}, fmt.Errorf("decode identifier unit: %w", err)
	}
	var counter uint64
	if err := binary.Read(r, byteOrder, &counter); err != nil {
		return Identifier{}, fmt.Errorf("decode identifier counter: %w", err)
	}
	if r.Len() != 0 {
		return Identifier{}, fmt.Errorf("decode identifier %q: trailing bytes", p)
	}
	return Identifier{Unit: Principal(unit), Counter: counter, Kind: kind}, nil
}
