package models

import "strconv"

type CanisterType string

const (
	CanisterTypeEmpty         CanisterType = "Empty"
	CanisterTypeScalableChild CanisterType = "ScalableChild"
)

type WasmVersionKind string

const (
	WasmVersionNone   WasmVersionKind = "None"
	WasmVersionNumber WasmVersionKind = "Version"
	WasmVersionCustom WasmVersionKind = "Custom"
)

// WasmVersion is the code version installed on a shard.
type WasmVersion struct {
	Kind   WasmVersionKind `json:"kind"`
	Number uint64          `json:"number,omitempty"`
}

func NoVersion() WasmVersion { return WasmVersion{Kind: WasmVersionNone} }

func Version(n uint64) WasmVersion { return WasmVersion{Kind: WasmVersionNumber, Number: n} }

func (v WasmVersion) Equal(o WasmVersion) bool {
	if v.Kind == "" {
		v.Kind = WasmVersionNone
	}
	if o.Kind == "" {
		o.Kind = WasmVersionNone
	}
	return v.Kind == o.Kind && v.Number == o.Number
}

func (v WasmVersion) String() string {
	if v.Kind == WasmVersionNumber {
		return "v" + strconv.FormatUint(v.Number, 10)
	}
	if v.Kind == "" {
		return string(WasmVersionNone)
	}
	return string(v.Kind)
}

// EntryRange is the logical entry counter interval a shard stores. End is nil
// while the shard still takes new entries.
type EntryRange struct {
	Start uint64  `json:"start"`
	End   *uint64 `json:"end,omitempty"`
}

func (r EntryRange) IsClosed() bool { return r.End != nil }

func ClosedRange(start, end uint64) EntryRange {
	return EntryRange{Start: start, End: &end}
}

type ShardRecord struct {
	Principal    Principal    `json:"principal"`
	WasmVersion  WasmVersion  `json:"wasm_version"`
	CanisterType CanisterType `json:"canister_type"`
	IsAvailable  bool         `json:"is_available"`
	EntryRange   EntryRange   `json:"entry_range"`
}

func (r ShardRecord) clone() ShardRecord {
	if r.EntryRange.End != nil {
		end := *r.EntryRange.End
		r.EntryRange.End = &end
	}
	return r
}

// CodeImage is the pending child code installed on new and upgraded shards.
type CodeImage struct {
	Label     string      `json:"label"`
	Bytes     []byte      `json:"bytes"`
	Version   WasmVersion `json:"wasm_version"`
	UpdatedAt uint64      `json:"updated_at"`
	CreatedAt uint64      `json:"created_at"`
}

// InitArgs are handed to a shard when code is installed on it.
type InitArgs struct {
	Parent     Principal `json:"parent"`
	Name       string    `json:"name"`
	Identifier int       `json:"identifier"`
	Capacity   int       `json:"capacity"`
}

// SpawnResult reports where an overflow entry ended up.
type SpawnResult struct {
	Shard   Principal `json:"shard"`
	EntryID Principal `json:"entry_id"`
}
