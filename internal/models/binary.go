package models

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

var byteOrder = binary.LittleEndian

const storeSnapshotVersion uint32 = 1

// writeString writes a uint16 length-prefixed UTF-8 string.
func writeString(w io.Writer, s string) error {
	if len(s) > math.MaxUint16 {
		return fmt.Errorf("string too long: %d bytes", len(s))
	}
	if err := binary.Write(w, byteOrder, uint16(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

// readString reads a uint16 length-prefixed UTF-8 string.
func readString(r io.Reader) (string, error) {
	var length uint16
	if err := binary.Read(r, byteOrder, &length); err != nil {
		return "", err
	}
	buf := make([]byte, length)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

func writeBool(w io.Writer, b bool) error {
	var v uint8
	if b {
		v = 1
	}
	return binary.Write(w, byteOrder, v)
}

func readBool(r io.Reader) (bool, error) {
	var v uint8
	if err := binary.Read(r, byteOrder, &v); err != nil {
		return false, err
	}
	return v == 1, nil
}

// writeAttendee writes an attendee record.
// Format: principal + joined count(uint32) + for each: event group updated(uint64) created(uint64)
// + invites count(uint32) + for each: event group type updated created.
func writeAttendee(w io.Writer, a Attendee) error {
	if err := writeString(w, string(a.Principal)); err != nil {
		return err
	}
	if err := binary.Write(w, byteOrder, uint32(len(a.Joined))); err != nil {
		return err
	}
	for event, j := range a.Joined {
		if err := writeString(w, string(event)); err != nil {
			return err
		}
		if err := writeString(w, string(j.GroupIdentifier)); err != nil {
			return err
		}
		if err := binary.Write(w, byteOrder, j.UpdatedAt); err != nil {
			return err
		}
		if err := binary.Write(w, byteOrder, j.CreatedAt); err != nil {
			return err
		}
	}
	if err := binary.Write(w, byteOrder, uint32(len(a.Invites))); err != nil {
		return err
	}
	for event, inv := range a.Invites {
		if err := writeString(w, string(event)); err != nil {
			return err
		}
		if err := writeString(w, string(inv.GroupIdentifier)); err != nil {
			return err
		}
		if err := writeString(w, string(inv.InviteType)); err != nil {
			return err
		}
		if err := binary.Write(w, byteOrder, inv.UpdatedAt); err != nil {
			return err
		}
		if err := binary.Write(w, byteOrder, inv.CreatedAt); err != nil {
			return err
		}
	}
	return nil
}

func readAttendee(r io.Reader) (Attendee, error) {
	principal, err := readString(r)
	if err != nil {
		return Attendee{}, err
	}
	a := NewAttendee(Principal(principal))

	var joined uint32
	if err := binary.Read(r, byteOrder, &joined); err != nil {
		return Attendee{}, err
	}
	for i := uint32(0); i < joined; i++ {
		event, err := readString(r)
		if err != nil {
			return Attendee{}, err
		}
		group, err := readString(r)
		if err != nil {
			return Attendee{}, err
		}
		var j Join
		j.GroupIdentifier = Principal(group)
		if err := binary.Read(r, byteOrder, &j.UpdatedAt); err != nil {
			return Attendee{}, err
		}
		if err := binary.Read(r, byteOrder, &j.CreatedAt); err != nil {
			return Attendee{}, err
		}
		a.Joined[Principal(event)] = j
	}

	var invites uint32
	if err := binary.Read(r, byteOrder, &invites); err != nil {
		return Attendee{}, err
	}
	for i := uint32(0); i < invites; i++ {
		event, err := readString(r)
		if err != nil {
			return Attendee{}, err
		}
		group, err := readString(r)
		if err != nil {
			return Attendee{}, err
		}
		kind, err := readString(r)
		if err != nil {
			return Attendee{}, err
		}
		inv := Invite{GroupIdentifier: Principal(group), InviteType: InviteType(kind)}
		if err := binary.Read(r, byteOrder, &inv.UpdatedAt); err != nil {
			return Attendee{}, err
		}
		if err := binary.Read(r, byteOrder, &inv.CreatedAt); err != nil {
			return Attendee{}, err
		}
		a.Invites[Principal(event)] = inv
	}
	return a, nil
}

// writeStoreMeta writes shard metadata.
func writeStoreMeta(w io.Writer, m StoreMeta) error {
	for _, s := range []string{m.Name, string(m.Self), string(m.Parent)} {
		if err := writeString(w, s); err != nil {
			return err
		}
	}
	if err := binary.Write(w, byteOrder, uint32(m.Identifier)); err != nil {
		return err
	}
	if err := binary.Write(w, byteOrder, uint32(m.Capacity)); err != nil {
		return err
	}
	if err := binary.Write(w, byteOrder, m.Seq); err != nil {
		return err
	}
	if err := writeBool(w, m.IsAvailable); err != nil {
		return err
	}
	if err := writeBool(w, m.Installed); err != nil {
		return err
	}
	if err := writeString(w, string(m.Version.Kind)); err != nil {
		return err
	}
	if err := binary.Write(w, byteOrder, m.Version.Number); err != nil {
		return err
	}
	return writeString(w, m.ImageHash)
}

func readStoreMeta(r io.Reader) (StoreMeta, error) {
	var m StoreMeta
	name, err := readString(r)
	if err != nil {
		return m, err
	}
	self, err := readString(r)
	if err != nil {
		return m, err
	}
	parent, err := readString(r)
	if err != nil {
		return m, err
	}
	m.Name, m.Self, m.Parent = name, Principal(self), Principal(parent)

	var identifier, capacity uint32
	if err := binary.Read(r, byteOrder, &identifier); err != nil {
		return m, err
	}
	if err := binary.Read(r, byteOrder, &capacity); err != nil {
		return m, err
	}
	m.Identifier, m.Capacity = int(identifier), int(capacity)
	if err := binary.Read(r, byteOrder, &m.Seq); err != nil {
		return m, err
	}
	if m.IsAvailable, err = readBool(r); err != nil {
		return m, err
	}
	if m.Installed, err = readBool(r); err != nil {
		return m, err
	}
	kind, err := readString(r)
	if err != nil {
		return m, err
	}
	m.Version.Kind = WasmVersionKind(kind)
	if err := binary.Read(r, byteOrder, &m.Version.Number); err != nil {
		return m, err
	}
	if m.ImageHash, err = readString(r); err != nil {
		return m, err
	}
	return m, nil
}
