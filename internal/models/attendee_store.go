package models

import (
	"encoding/binary"
	"fmt"
	"io"
	"sort"
	"sync"
)

// StoreMeta describes the shard the store lives on.
type StoreMeta struct {
	Name        string      `json:"name"`
	Self        Principal   `json:"self"`
	Parent      Principal   `json:"parent"`
	Identifier  int         `json:"identifier"`
	Capacity    int         `json:"capacity"`
	Seq         uint64      `json:"seq"`
	IsAvailable bool        `json:"is_available"`
	Installed   bool        `json:"installed"`
	Version     WasmVersion `json:"wasm_version"`
	ImageHash   string      `json:"image_hash"`
}

type storedEntry struct {
	seq      uint64
	attendee Attendee
}

// AttendeeStore is the per-shard record map plus shard metadata.
// All returned attendees are copies.
type AttendeeStore struct {
	mu      sync.RWMutex
	meta    StoreMeta
	entries map[Principal]*storedEntry
	bySeq   map[uint64]Principal
	joined  *EventIndex
	invited *EventIndex
}

// NewAttendeeStore creates an uninstalled store. capacity <= 0 means unbounded.
func NewAttendeeStore(self Principal, capacity int) *AttendeeStore {
	return &AttendeeStore{
		meta: StoreMeta{
			Self:     self,
			Capacity: max(capacity, 0),
			Version:  NoVersion(),
		},
		entries: make(map[Principal]*storedEntry),
		bySeq:   make(map[uint64]Principal),
		joined:  NewEventIndex(),
		invited: NewEventIndex(),
	}
}

func (s *AttendeeStore) Meta() StoreMeta {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.meta
}

// Install records the init arguments handed over by the coordinator.
func (s *AttendeeStore) Install(args InitArgs, version WasmVersion, imageHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.meta.Installed {
		return NewApiError(KindBadRequest, TagAlreadyInstalled, "Shard already has code installed", "store.Install")
	}
	s.meta.Parent = args.Parent
	s.meta.Name = args.Name
	s.meta.Identifier = args.Identifier
	if args.Capacity > 0 {
		s.meta.Capacity = args.Capacity
	}
	s.meta.Version = version
	s.meta.ImageHash = imageHash
	s.meta.Installed = true
	s.meta.IsAvailable = true
	return nil
}

func (s *AttendeeStore) Upgrade(version WasmVersion, imageHash string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.meta.Version = version
	s.meta.ImageHash = imageHash
}

// Seal stops the store from taking new records.
func (s *AttendeeStore) Seal() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.meta.IsAvailable = false
}

func (s *AttendeeStore) IsFull() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isFull()
}

func (s *AttendeeStore) isFull() bool {
	return s.meta.Capacity > 0 && len(s.entries) >= s.meta.Capacity
}

func (s *AttendeeStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Add inserts a new record and returns its identifier. It never overwrites and
// fails with CanisterAtCapacity when the shard is full or sealed.
func (s *AttendeeStore) Add(a Attendee, kind string) (Principal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.acceptsNew(); err != nil {
		return "", err
	}
	return s.insert(a, kind), nil
}

// Merge folds a into the principal's record regardless of capacity, inserting
// it when absent. Joined and Invites merge key by key and a join clears the
// matching invite. Used for entries forwarded by the coordinator, which
// already decided this shard owns them.
func (s *AttendeeStore) Merge(a Attendee, kind string) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, e := s.findByPrincipal(a.Principal)
	if e == nil {
		id = s.insert(a, kind)
		return Entry{ID: id, Attendee: s.entries[id].attendee.Clone()}, true
	}
	next := e.attendee.Clone()
	for event, inv := range a.Invites {
		if _, joined := next.Joined[event]; !joined {
			next.Invites[event] = inv
		}
	}
	for event, j := range a.Joined {
		next.Joined[event] = j
		delete(next.Invites, event)
	}
	s.replace(e, next)
	return Entry{ID: id, Attendee: e.attendee.Clone()}, false
}

func (s *AttendeeStore) acceptsNew() error {
	if s.isFull() || (s.meta.Installed && !s.meta.IsAvailable) {
		return NewApiError(KindCanisterAtCapacity, TagAtCapacity, "Shard reached its entry capacity", "store.Add")
	}
	return nil
}

func (s *AttendeeStore) insert(a Attendee, kind string) Principal {
	s.meta.Seq++
	seq := s.meta.Seq
	id := Identifier{Unit: s.meta.Self, Counter: seq, Kind: kind}.Encode()
	rec := a.Clone()
	s.entries[id] = &storedEntry{seq: seq, attendee: rec}
	s.bySeq[seq] = id
	s.joined.Reindex(seq, nil, joinedKeys(rec))
	s.invited.Reindex(seq, nil, inviteKeys(rec))
	return id
}

// Update replaces the record at id.
func (s *AttendeeStore) Update(id Principal, a Attendee) (Attendee, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return Attendee{}, NewApiError(KindNotFound, TagEntryNotFound, "Entry not found", "store.Update", string(id))
	}
	s.replace(e, a)
	return e.attendee.Clone(), nil
}

func (s *AttendeeStore) replace(e *storedEntry, a Attendee) {
	rec := a.Clone()
	seq := e.seq
	s.joined.Reindex(seq, joinedKeys(e.attendee), joinedKeys(rec))
	s.invited.Reindex(seq, inviteKeys(e.attendee), inviteKeys(rec))
	e.attendee = rec
}

// Upsert runs fn against the principal's current record (nil when absent)
// under the write lock and stores the result. A new record is only created
// when the shard accepts new entries; otherwise the computed record is
// returned together with a CanisterAtCapacity error so it can be forwarded.
func (s *AttendeeStore) Upsert(principal Principal, kind string, fn func(current *Attendee) (Attendee, error)) (Entry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, e := s.findByPrincipal(principal)
	if e != nil {
		current := e.attendee.Clone()
		next, err := fn(&current)
		if err != nil {
			return Entry{}, false, err
		}
		s.replace(e, next)
		return Entry{ID: id, Attendee: e.attendee.Clone()}, false, nil
	}

	next, err := fn(nil)
	if err != nil {
		return Entry{}, false, err
	}
	if err := s.acceptsNew(); err != nil {
		return Entry{Attendee: next.Clone()}, false, err
	}
	id = s.insert(next, kind)
	return Entry{ID: id, Attendee: next.Clone()}, true, nil
}

func (s *AttendeeStore) Get(id Principal) (Attendee, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[id]
	if !ok {
		return Attendee{}, false
	}
	return e.attendee.Clone(), true
}

// Scan returns every entry in insertion order.
func (s *AttendeeStore) Scan() []Entry {
	return s.FindBy(func(Attendee) bool { return true })
}

// FindBy is a linear scan over all records.
func (s *AttendeeStore) FindBy(pred func(Attendee) bool) []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seqs := make([]uint64, 0, len(s.bySeq))
	for seq := range s.bySeq {
		seqs = append(seqs, seq)
	}
	sort.Slice(seqs, func(i, j int) bool { return seqs[i] < seqs[j] })

	var out []Entry
	for _, seq := range seqs {
		id := s.bySeq[seq]
		e := s.entries[id]
		if pred(e.attendee) {
			out = append(out, Entry{ID: id, Attendee: e.attendee.Clone()})
		}
	}
	return out
}

func (s *AttendeeStore) FindByPrincipal(p Principal) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, e := s.findByPrincipal(p)
	if e == nil {
		return Entry{}, false
	}
	return Entry{ID: id, Attendee: e.attendee.Clone()}, true
}

func (s *AttendeeStore) findByPrincipal(p Principal) (Principal, *storedEntry) {
	for id, e := range s.entries {
		if e.attendee.Principal == p {
			return id, e
		}
	}
	return "", nil
}

// JoinedTo returns the entries that joined event, ordered by sequence.
func (s *AttendeeStore) JoinedTo(event Principal) []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collect(s.joined.Members(event))
}

// InvitedTo returns the entries holding an invite for event, ordered by sequence.
func (s *AttendeeStore) InvitedTo(event Principal) []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collect(s.invited.Members(event))
}

func (s *AttendeeStore) collect(seqs []uint64) []Entry {
	out := make([]Entry, 0, len(seqs))
	for _, seq := range seqs {
		id, ok := s.bySeq[seq]
		if !ok {
			continue
		}
		out = append(out, Entry{ID: id, Attendee: s.entries[id].attendee.Clone()})
	}
	return out
}

func (s *AttendeeStore) JoinedCount(event Principal) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.joined.Count(event)
}

func (s *AttendeeStore) InvitedCount(event Principal) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.invited.Count(event)
}

// WriteBinaryTo writes metadata and all records in binary format.
// Format: version(uint32) meta count(uint32) + for each: id seq(uint64) attendee
func (s *AttendeeStore) WriteBinaryTo(w io.Writer) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := binary.Write(w, byteOrder, storeSnapshotVersion); err != nil {
		return err
	}
	if err := writeStoreMeta(w, s.meta); err != nil {
		return err
	}
	if err := binary.Write(w, byteOrder, uint32(len(s.entries))); err != nil {
		return err
	}
	for id, e := range s.entries {
		if err := writeString(w, string(id)); err != nil {
			return err
		}
		if err := binary.Write(w, byteOrder, e.seq); err != nil {
			return err
		}
		if err := writeAttendee(w, e.attendee); err != nil {
			return err
		}
	}
	return nil
}

// ReadBinaryFrom replaces the store contents and rebuilds the event indexes.
func (s *AttendeeStore) ReadBinaryFrom(r io.Reader) error {
	var version uint32
	if err := binary.Read(r, byteOrder, &version); err != nil {
		return err
	}
	if version != storeSnapshotVersion {
		return fmt.Errorf("unsupported store snapshot version %d", version)
	}
	meta, err := readStoreMeta(r)
	if err != nil {
		return err
	}
	var count uint32
	if err := binary.Read(r, byteOrder, &count); err != nil {
		return err
	}

	entries := make(map[Principal]*storedEntry, count)
	bySeq := make(map[uint64]Principal, count)
	joined, invited := NewEventIndex(), NewEventIndex()
	for i := uint32(0); i < count; i++ {
		id, err := readString(r)
		if err != nil {
			return err
		}
		var seq uint64
		if err := binary.Read(r, byteOrder, &seq); err != nil {
			return err
		}
		a, err := readAttendee(r)
		if err != nil {
			return err
		}
		entries[Principal(id)] = &storedEntry{seq: seq, attendee: a}
		bySeq[seq] = Principal(id)
		joined.Reindex(seq, nil, joinedKeys(a))
		invited.Reindex(seq, nil, inviteKeys(a))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// Self comes from configuration, not from the snapshot.
	if s.meta.Self != "" {
		meta.Self = s.meta.Self
	}
	s.meta = meta
	s.entries = entries
	s.bySeq = bySeq
	s.joined = joined
	s.invited = invited
	return nil
}
