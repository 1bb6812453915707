package models

import (
	"errors"
	"fmt"
	"strings"
)

type ErrorKind string

const (
	KindNotFound           ErrorKind = "NotFound"
	KindBadRequest         ErrorKind = "BadRequest"
	KindUnauthorized       ErrorKind = "Unauthorized"
	KindRemoteCallFailed   ErrorKind = "RemoteCallFailed"
	KindCanisterAtCapacity ErrorKind = "CanisterAtCapacity"
	KindSerializeError     ErrorKind = "SerializeError"
	KindDeserializeError   ErrorKind = "DeserializeError"
	KindUnexpected         ErrorKind = "Unexpected"
)

const (
	TagAlreadyJoined      = "ALREADY_JOINED"
	TagPendingInvite      = "PENDING_INVITE"
	TagUnsupported        = "UNSUPPORTED"
	TagInvalidType        = "INVALID_TYPE"
	TagNoInviteFound      = "NO_INVITE_FOUND"
	TagAttendeeNotFound   = "ATTENDEE_NOT_FOUND"
	TagEntryNotFound      = "ENTRY_NOT_FOUND"
	TagPrincipalMismatch  = "PRINCIPAL_MISMATCH"
	TagNoPermission       = "NO_PERMISSION"
	TagUnauthorized       = "UNAUTHORIZED"
	TagRemoteCallFailed   = "INTER_CANISTER_CALL_FAILED"
	TagAtCapacity         = "CANISTER_AT_CAPACITY"
	TagNotInstalled       = "CANISTER_NOT_INSTALLED"
	TagAlreadyInstalled   = "CANISTER_ALREADY_INSTALLED"
	TagInvalidIdentifier  = "INVALID_IDENTIFIER"
	TagNoWasmSpecified    = "NO_WASM_SPECIFIED"
	TagUnknownCanister    = "UNKNOWN_CANISTER"
	TagCanisterNotCreated = "CANISTER_NOT_CREATED"
	TagInstallFailed      = "CANISTER_INSTALL_FAILED"
	TagFailedToStoreData  = "FAILED_TO_STORE_DATA"
	TagNoChildren         = "NO_CHILDREN"
	TagUpToDate           = "CANISTER_UP_TO_DATE"
	TagUpgradeFailed      = "UPGRADE_FAILED"
	TagNoneAvailable      = "NO_AVAILABLE_CANISTER"
	TagSerializeFailed    = "SERIALIZE_FAILED"
	TagDeserializeFailed  = "DESERIALIZE_FAILED"
	TagUnexpected         = "UNEXPECTED"
)

// ApiError is the typed error value every operation resolves to. It travels
// over the wire as JSON between units.
type ApiError struct {
	Kind     ErrorKind `json:"kind"`
	Tag      string    `json:"tag"`
	Message  string    `json:"message"`
	Location string    `json:"location"`
	Inputs   []string  `json:"inputs,omitempty"`
	// Redirect is set on CanisterAtCapacity and names the shard taking new entries.
	Redirect Principal `json:"redirect,omitempty"`

	cause error
}

func NewApiError(kind ErrorKind, tag, message, location string, inputs ...string) *ApiError {
	return &ApiError{
		Kind:     kind,
		Tag:      tag,
		Message:  message,
		Location: location,
		Inputs:   inputs,
	}
}

// WrapApiError keeps cause reachable through errors.Unwrap.
func WrapApiError(kind ErrorKind, tag, location string, cause error, inputs ...string) *ApiError {
	e := NewApiError(kind, tag, cause.Error(), location, inputs...)
	e.cause = cause
	return e
}

func (e *ApiError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s(%s): %s", e.Kind, e.Tag, e.Message)
	if e.Location != "" {
		sb.WriteString(" at ")
		sb.WriteString(e.Location)
	}
	if len(e.Inputs) > 0 {
		fmt.Fprintf(&sb, " %v", e.Inputs)
	}
	return sb.String()
}

func (e *ApiError) Unwrap() error { return e.cause }

func AsApiError(err error) (*ApiError, bool) {
	var apiErr *ApiError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

func HasTag(err error, tag string) bool {
	apiErr, ok := AsApiError(err)
	return ok && apiErr.Tag == tag
}

func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	if apiErr, ok := AsApiError(err); ok {
		return apiErr.Kind
	}
	return KindUnexpected
}
