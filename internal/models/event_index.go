package models

import "github.com/RoaringBitmap/roaring/v2/roaring64"

// EventIndex maps an event identifier to the set of entry sequence numbers
// that reference it. The store keeps one for joins and one for invites.
// Not safe for concurrent use; the owning store serializes access.
type EventIndex struct {
	events map[Principal]*roaring64.Bitmap
}

func NewEventIndex() *EventIndex {
	return &EventIndex{events: make(map[Principal]*roaring64.Bitmap)}
}

func (ix *EventIndex) Add(event Principal, seq uint64) {
	bm, ok := ix.events[event]
	if !ok {
		bm = roaring64.New()
		ix.events[event] = bm
	}
	bm.Add(seq)
}

func (ix *EventIndex) Remove(event Principal, seq uint64) {
	bm, ok := ix.events[event]
	if !ok {
		return
	}
	bm.Remove(seq)
	if bm.IsEmpty() {
		delete(ix.events, event)
	}
}

// Members returns the sequence numbers for event in ascending order.
func (ix *EventIndex) Members(event Principal) []uint64 {
	bm, ok := ix.events[event]
	if !ok {
		return nil
	}
	return bm.ToArray()
}

func (ix *EventIndex) Count(event Principal) int {
	bm, ok := ix.events[event]
	if !ok {
		return 0
	}
	return int(bm.GetCardinality())
}

// Reindex moves seq from the events in before to the events in after.
func (ix *EventIndex) Reindex(seq uint64, before, after []Principal) {
	for _, e := range before {
		ix.Remove(e, seq)
	}
	for _, e := range after {
		ix.Add(e, seq)
	}
}

func joinedKeys(a Attendee) []Principal {
	keys := make([]Principal, 0, len(a.Joined))
	for k := range a.Joined {
		keys = append(keys, k)
	}
	return keys
}

func inviteKeys(a Attendee) []Principal {
	keys := make([]Principal, 0, len(a.Invites))
	for k := range a.Invites {
		keys = append(keys, k)
	}
	return keys
}
