package models

import (
	json "github.com/goccy/go-json"
)

// Encode serializes a record or projection for transport between units.
func Encode(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, WrapApiError(KindSerializeError, TagSerializeFailed, "models.Encode", err)
	}
	return data, nil
}

func Decode[T any](data []byte) (T, error) {
	var out T
	if err := json.Unmarshal(data, &out); err != nil {
		return out, WrapApiError(KindDeserializeError, TagDeserializeFailed, "models.Decode", err)
	}
	return out, nil
}

// DecodeAttendee also restores nil maps so a decoded record is always writable.
func DecodeAttendee(data []byte) (Attendee, error) {
	a, err := Decode[Attendee](data)
	if err != nil {
		return a, err
	}
	if a.Joined == nil {
		a.Joined = make(map[Principal]Join)
	}
	if a.Invites == nil {
		a.Invites = make(map[Principal]Invite)
	}
	return a, nil
}
