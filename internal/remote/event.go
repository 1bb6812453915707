package remote

import (
	"attendees/internal/models"
	"context"
	"net/url"

	"golang.org/x/sync/singleflight"
)

const (
	eventPrivacyPath = "/events/privacy"
	eventCountPath   = "/events/attendee-count"
)

type EventClientInterface interface {
	GetPrivacyAndOwner(ctx context.Context, event, group models.Principal) (models.EventPrivacy, error)
	UpdateAttendeeCount(ctx context.Context, event models.Principal, count int) error
}

// EventClient talks to the event service that minted an event identifier.
type EventClient struct {
	client ClientInterface
	group  singleflight.Group
}

func NewEventClient(client ClientInterface) EventClientInterface {
	return &EventClient{client: client}
}

// eventUnit resolves the base URL of the service owning an event.
func eventUnit(event models.Principal) (models.Principal, error) {
	id, err := models.DecodeIdentifier(event)
	if err != nil {
		return "", models.WrapApiError(models.KindBadRequest, models.TagInvalidIdentifier, "remote.eventUnit", err, string(event))
	}
	if id.Kind != models.KindEvent {
		return "", models.NewApiError(models.KindBadRequest, models.TagInvalidIdentifier, "Identifier is not an event", "remote.eventUnit", string(event), id.Kind)
	}
	return id.Unit, nil
}

// GetPrivacyAndOwner shares one in-flight lookup between concurrent joins of
// the same event.
func (e *EventClient) GetPrivacyAndOwner(ctx context.Context, event, group models.Principal) (models.EventPrivacy, error) {
	unit, err := eventUnit(event)
	if err != nil {
		return models.EventPrivacy{}, err
	}
	v, err, _ := e.group.Do(string(event)+"|"+string(group), func() (any, error) {
		var out models.EventPrivacy
		q := url.Values{"event": {string(event)}, "group": {string(group)}}
		if err := e.client.GetJSON(ctx, unit, eventPrivacyPath, q, &out); err != nil {
			return nil, err
		}
		return out, nil
	})
	if err != nil {
		return models.EventPrivacy{}, err
	}
	return v.(models.EventPrivacy), nil
}

func (e *EventClient) UpdateAttendeeCount(ctx context.Context, event models.Principal, count int) error {
	unit, err := eventUnit(event)
	if err != nil {
		return err
	}
	body := models.AttendeeCountUpdate{EventIdentifier: event, Shard: e.client.Self(), Count: count}
	return e.client.PostJSON(ctx, unit, eventCountPath, body, nil)
}
