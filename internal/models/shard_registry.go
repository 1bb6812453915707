package models

import (
	"sort"
	"sync"
)

// ScalableData is the persisted coordinator state.
type ScalableData struct {
	Name       string                    `json:"name"`
	Shards     map[Principal]ShardRecord `json:"canisters"`
	Parent     Principal                 `json:"parent"`
	ChildImage CodeImage                 `json:"child_wasm_data"`
	UpdatedAt  uint64                    `json:"updated_at"`
	CreatedAt  uint64                    `json:"created_at"`
}

// ShardRegistry guards ScalableData. Reads return copies so callers can hold
// records across remote calls without racing the registry.
type ShardRegistry struct {
	mu   sync.RWMutex
	data ScalableData
}

func NewShardRegistry(name string, self Principal, now uint64) *ShardRegistry {
	return &ShardRegistry{
		data: ScalableData{
			Name:      name,
			Shards:    make(map[Principal]ShardRecord),
			Parent:    self,
			UpdatedAt: now,
			CreatedAt: now,
		},
	}
}

func (r *ShardRegistry) Name() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.data.Name
}

func (r *ShardRegistry) Self() Principal {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.data.Parent
}

func (r *ShardRegistry) Get(id Principal) (ShardRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.data.Shards[id]
	return rec.clone(), ok
}

func (r *ShardRegistry) Put(rec ShardRecord, now uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data.Shards[rec.Principal] = rec.clone()
	r.data.UpdatedAt = now
}

func (r *ShardRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.data.Shards)
}

// All returns every shard ordered by principal.
func (r *ShardRegistry) All() []ShardRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ShardRecord, 0, len(r.data.Shards))
	for _, rec := range r.data.Shards {
		out = append(out, rec.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Principal < out[j].Principal })
	return out
}

// Available returns the first available installed shard that is not excluding.
func (r *ShardRegistry) Available(excluding Principal) (ShardRecord, bool) {
	for _, rec := range r.All() {
		if rec.Principal == excluding || !rec.IsAvailable {
			continue
		}
		return rec, true
	}
	return ShardRecord{}, false
}

func (r *ShardRegistry) ChildImage() CodeImage {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.data.ChildImage
}

func (r *ShardRegistry) SetChildImage(image CodeImage, now uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.data.ChildImage.CreatedAt != 0 {
		image.CreatedAt = r.data.ChildImage.CreatedAt
	} else {
		image.CreatedAt = now
	}
	image.UpdatedAt = now
	r.data.ChildImage = image
	r.data.UpdatedAt = now
}

// Snapshot returns a deep copy of the registry state.
func (r *ShardRegistry) Snapshot() ScalableData {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := r.data
	out.Shards = make(map[Principal]ShardRecord, len(r.data.Shards))
	for k, v := range r.data.Shards {
		out.Shards[k] = v.clone()
	}
	out.ChildImage.Bytes = append([]byte(nil), r.data.ChildImage.Bytes...)
	return out
}

// Restore replaces the registry state. The configured self principal wins
// over the persisted one.
func (r *ShardRegistry) Restore(data ScalableData) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if data.Shards == nil {
		data.Shards = make(map[Principal]ShardRecord)
	}
	if r.data.Parent != "" {
		data.Parent = r.data.Parent
	}
	if r.data.Name != "" && data.Name == "" {
		data.Name = r.data.Name
	}
	r.data = data
}
