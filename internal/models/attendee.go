package models

type InviteType string

const (
	InviteTypeNone         InviteType = "None"
	InviteTypeOwnerRequest InviteType = "OwnerRequest"
	InviteTypeUserRequest  InviteType = "UserRequest"
)

type Privacy string

const (
	PrivacyPublic     Privacy = "Public"
	PrivacyPrivate    Privacy = "Private"
	PrivacyInviteOnly Privacy = "InviteOnly"
	PrivacyGated      Privacy = "Gated"
)

type Join struct {
	GroupIdentifier Principal `json:"group_identifier"`
	UpdatedAt       uint64    `json:"updated_at"`
	CreatedAt       uint64    `json:"created_at"`
}

type Invite struct {
	GroupIdentifier Principal  `json:"group_identifier"`
	InviteType      InviteType `json:"invite_type"`
	UpdatedAt       uint64     `json:"updated_at"`
	CreatedAt       uint64     `json:"created_at"`
}

// Attendee holds one principal's joins and invites keyed by event identifier.
type Attendee struct {
	Principal Principal            `json:"principal"`
	Joined    map[Principal]Join   `json:"joined"`
	Invites   map[Principal]Invite `json:"invites"`
}

func NewAttendee(principal Principal) Attendee {
	return Attendee{
		Principal: principal,
		Joined:    make(map[Principal]Join),
		Invites:   make(map[Principal]Invite),
	}
}

// Clone returns a deep copy so callers can mutate maps without touching
// stored state.
func (a Attendee) Clone() Attendee {
	out := Attendee{
		Principal: a.Principal,
		Joined:    make(map[Principal]Join, len(a.Joined)),
		Invites:   make(map[Principal]Invite, len(a.Invites)),
	}
	for k, v := range a.Joined {
		out.Joined[k] = v
	}
	for k, v := range a.Invites {
		out.Invites[k] = v
	}
	return out
}

func (a Attendee) HasJoined(event Principal) bool {
	_, ok := a.Joined[event]
	return ok
}

func (a Attendee) InviteFor(event Principal) (Invite, bool) {
	inv, ok := a.Invites[event]
	return inv, ok
}

type JoinedAttendeeResponse struct {
	EventIdentifier    Principal `json:"event_identifier"`
	GroupIdentifier    Principal `json:"group_identifier"`
	AttendeeIdentifier Principal `json:"attendee_identifier"`
	Principal          Principal `json:"principal"`
}

type InviteAttendeeResponse struct {
	EventIdentifier    Principal  `json:"event_identifier"`
	GroupIdentifier    Principal  `json:"group_identifier"`
	AttendeeIdentifier Principal  `json:"attendee_identifier"`
	Principal          Principal  `json:"principal"`
	InviteType         InviteType `json:"invite_type"`
}

// Entry is a stored attendee together with its identifier.
type Entry struct {
	ID       Principal `json:"id"`
	Attendee Attendee  `json:"attendee"`
}

func (e Entry) JoinedResponse(event Principal) JoinedAttendeeResponse {
	return JoinedAttendeeResponse{
		EventIdentifier:    event,
		GroupIdentifier:    e.Attendee.Joined[event].GroupIdentifier,
		AttendeeIdentifier: e.ID,
		Principal:          e.Attendee.Principal,
	}
}

func (e Entry) InviteResponse(event Principal) InviteAttendeeResponse {
	resp := InviteAttendeeResponse{
		EventIdentifier:    event,
		AttendeeIdentifier: e.ID,
		Principal:          e.Attendee.Principal,
		InviteType:         InviteTypeNone,
	}
	if inv, ok := e.Attendee.Invites[event]; ok {
		resp.GroupIdentifier = inv.GroupIdentifier
		resp.InviteType = inv.InviteType
	}
	return resp
}

// EventCount pairs an event identifier with a number of attendees or invites.
type EventCount struct {
	EventIdentifier Principal `json:"event_identifier"`
	Count           int       `json:"count"`
}
