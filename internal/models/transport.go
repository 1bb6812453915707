package models

// Request and reply bodies exchanged between units.

type ChunkRequest struct {
	EventIdentifier  Principal `json:"event_identifier"`
	Chunk            int       `json:"chunk"`
	MaxBytesPerChunk int       `json:"max_bytes_per_chunk"`
}

type AddEntryRequest struct {
	Attendee       Attendee `json:"attendee"`
	IdempotencyKey string   `json:"idempotency_key"`
}

type AddEntryResponse struct {
	ID Principal `json:"id"`
}

// SpawnRequest is sent by a full shard. LastEntryID is its sequence counter
// at the time it filled up.
type SpawnRequest struct {
	LastEntryID    uint64   `json:"last_entry_id"`
	Attendee       Attendee `json:"attendee"`
	IdempotencyKey string   `json:"idempotency_key"`
}

type ShardStatus struct {
	Principal   Principal   `json:"principal"`
	Name        string      `json:"name"`
	Parent      Principal   `json:"parent"`
	Installed   bool        `json:"installed"`
	IsAvailable bool        `json:"is_available"`
	Entries     int         `json:"entries"`
	Capacity    int         `json:"capacity"`
	Seq         uint64      `json:"seq"`
	WasmVersion WasmVersion `json:"wasm_version"`
	ImageHash   string      `json:"image_hash"`
}

type InstallRequest struct {
	Image   []byte      `json:"image"`
	Version WasmVersion `json:"wasm_version"`
	Args    InitArgs    `json:"args"`
}

type UpgradeRequest struct {
	Image   []byte      `json:"image"`
	Version WasmVersion `json:"wasm_version"`
}

// EventPrivacy is the event service's answer to a privacy and owner lookup.
type EventPrivacy struct {
	Owner   Principal `json:"owner"`
	Privacy Privacy   `json:"privacy"`
}

type AttendeeCountUpdate struct {
	EventIdentifier Principal `json:"event_identifier"`
	Shard           Principal `json:"shard"`
	Count           int       `json:"count"`
}

type PermissionAction string

const (
	ActionRead   PermissionAction = "read"
	ActionWrite  PermissionAction = "write"
	ActionEdit   PermissionAction = "edit"
	ActionDelete PermissionAction = "delete"
)

const ResourceAttendee = "attendee"

type PermissionRequest struct {
	Caller   Principal        `json:"caller"`
	Group    Principal        `json:"group_identifier"`
	Member   Principal        `json:"member_identifier"`
	Action   PermissionAction `json:"action"`
	Resource string           `json:"resource"`
}

// PermissionResponse carries the principal the member identifier resolves to
// and whether its roles grant the action.
type PermissionResponse struct {
	Principal Principal `json:"principal"`
	Allowed   bool      `json:"allowed"`
}

// EventRequest covers the user-facing shard writes. Fields not used by an
// operation are left empty.
type EventRequest struct {
	EventIdentifier  Principal `json:"event_identifier"`
	GroupIdentifier  Principal `json:"group_identifier,omitempty"`
	MemberIdentifier Principal `json:"member_identifier,omitempty"`
	Attendee         Principal `json:"attendee_principal,omitempty"`
}

type EventsRequest struct {
	EventIdentifiers []Principal `json:"event_identifiers"`
}

type AddOwnerRequest struct {
	User            Principal `json:"user_principal"`
	EventIdentifier Principal `json:"event_identifier"`
	GroupIdentifier Principal `json:"group_identifier"`
}

type ChildImageRequest struct {
	Image   []byte      `json:"image"`
	Version WasmVersion `json:"wasm_version"`
}
