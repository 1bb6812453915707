package controllers

import (
	"attendees/internal/models"
	"attendees/internal/providers"
	"attendees/internal/services"
	"context"
	"net/http"
)

// ShardController exposes a shard's attendee store over HTTP.
type ShardController struct {
	logger  providers.Logger
	service services.AttendeeServiceInterface
}

func NewShardController(logger providers.Logger, service services.AttendeeServiceInterface) *ShardController {
	return &ShardController{
		logger:  logger,
		service: service,
	}
}

type eventWrite func(ctx context.Context, caller models.Principal, req models.EventRequest) (any, error)

// handleEvent decodes an EventRequest and runs op on behalf of the caller.
func (sc *ShardController) handleEvent(status int, op eventWrite) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req models.EventRequest
		if !decode(w, r, maxRequestBodySize, &req) {
			return
		}
		result, err := op(r.Context(), caller(r), req)
		if err != nil {
			writeError(w, sc.logger, providers.TypePost, err)
			return
		}
		if result == nil {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		writeJSON(w, status, result)
	}
}

func (sc *ShardController) JoinEvent(w http.ResponseWriter, r *http.Request) {
	sc.handleEvent(http.StatusCreated, func(ctx context.Context, c models.Principal, req models.EventRequest) (any, error) {
		return sc.service.JoinEvent(ctx, c, req.EventIdentifier, req.GroupIdentifier)
	})(w, r)
}

func (sc *ShardController) InviteToEvent(w http.ResponseWriter, r *http.Request) {
	sc.handleEvent(http.StatusCreated, func(ctx context.Context, c models.Principal, req models.EventRequest) (any, error) {
		return sc.service.InviteToEvent(ctx, c, req.EventIdentifier, req.Attendee, req.MemberIdentifier, req.GroupIdentifier)
	})(w, r)
}

func (sc *ShardController) AcceptUserRequest(w http.ResponseWriter, r *http.Request) {
	sc.handleEvent(http.StatusOK, func(ctx context.Context, c models.Principal, req models.EventRequest) (any, error) {
		return sc.service.AcceptUserRequestEventInvite(ctx, c, req.Attendee, req.EventIdentifier, req.MemberIdentifier, req.GroupIdentifier)
	})(w, r)
}

func (sc *ShardController) AcceptOwnerRequest(w http.ResponseWriter, r *http.Request) {
	sc.handleEvent(http.StatusOK, func(ctx context.Context, c models.Principal, req models.EventRequest) (any, error) {
		return sc.service.AcceptOwnerRequestEventInvite(ctx, c, req.EventIdentifier)
	})(w, r)
}

func (sc *ShardController) LeaveEvent(w http.ResponseWriter, r *http.Request) {
	sc.handleEvent(http.StatusNoContent, func(_ context.Context, c models.Principal, req models.EventRequest) (any, error) {
		return nil, sc.service.LeaveEvent(c, req.EventIdentifier)
	})(w, r)
}

func (sc *ShardController) RemoveInvite(w http.ResponseWriter, r *http.Request) {
	sc.handleEvent(http.StatusNoContent, func(_ context.Context, c models.Principal, req models.EventRequest) (any, error) {
		return nil, sc.service.RemoveInvite(c, req.EventIdentifier)
	})(w, r)
}

func (sc *ShardController) RemoveAttendee(w http.ResponseWriter, r *http.Request) {
	sc.handleEvent(http.StatusNoContent, func(ctx context.Context, c models.Principal, req models.EventRequest) (any, error) {
		return nil, sc.service.RemoveAttendeeFromEvent(ctx, c, req.Attendee, req.EventIdentifier, req.GroupIdentifier, req.MemberIdentifier)
	})(w, r)
}

func (sc *ShardController) RemoveAttendeeInvite(w http.ResponseWriter, r *http.Request) {
	sc.handleEvent(http.StatusNoContent, func(ctx context.Context, c models.Principal, req models.EventRequest) (any, error) {
		return nil, sc.service.RemoveAttendeeInviteFromEvent(ctx, c, req.Attendee, req.EventIdentifier, req.GroupIdentifier, req.MemberIdentifier)
	})(w, r)
}

func (sc *ShardController) GetEventInvites(w http.ResponseWriter, r *http.Request) {
	sc.handleEvent(http.StatusOK, func(ctx context.Context, c models.Principal, req models.EventRequest) (any, error) {
		return sc.service.GetEventInvites(ctx, c, req.EventIdentifier, req.GroupIdentifier, req.MemberIdentifier)
	})(w, r)
}

func (sc *ShardController) AddOwnerAsAttendee(w http.ResponseWriter, r *http.Request) {
	var req models.AddOwnerRequest
	if !decode(w, r, maxRequestBodySize, &req) {
		return
	}
	if err := sc.service.AddOwnerAsAttendee(r.Context(), caller(r), req.User, req.EventIdentifier, req.GroupIdentifier); err != nil {
		writeError(w, sc.logger, providers.TypePost, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (sc *ShardController) GetEventAttendees(w http.ResponseWriter, r *http.Request) {
	event := models.Principal(r.URL.Query().Get("event"))
	writeJSON(w, http.StatusOK, sc.service.GetEventAttendees(event))
}

func (sc *ShardController) GetEventAttendeesCount(w http.ResponseWriter, r *http.Request) {
	var req models.EventsRequest
	if !decode(w, r, maxRequestBodySize, &req) {
		return
	}
	writeJSON(w, http.StatusOK, sc.service.GetEventAttendeesCount(req.EventIdentifiers))
}

func (sc *ShardController) GetEventInvitesCount(w http.ResponseWriter, r *http.Request) {
	var req models.EventsRequest
	if !decode(w, r, maxRequestBodySize, &req) {
		return
	}
	writeJSON(w, http.StatusOK, sc.service.GetEventInvitesCount(req.EventIdentifiers))
}

func (sc *ShardController) GetSelf(w http.ResponseWriter, r *http.Request) {
	entry, err := sc.service.GetSelf(caller(r))
	if err != nil {
		writeError(w, sc.logger, providers.TypeGet, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (sc *ShardController) GetAttending(w http.ResponseWriter, r *http.Request) {
	principal := models.Principal(r.URL.Query().Get("principal"))
	data, err := sc.service.GetAttendingFromPrincipal(principal)
	if err != nil {
		writeError(w, sc.logger, providers.TypeGet, err)
		return
	}
	writeJSON(w, http.StatusOK, data)
}

func (sc *ShardController) JoinedChunk(w http.ResponseWriter, r *http.Request) {
	var req models.ChunkRequest
	if !decode(w, r, maxRequestBodySize, &req) {
		return
	}
	chunk, err := sc.service.JoinedChunk(caller(r), req.EventIdentifier, req.Chunk, req.MaxBytesPerChunk)
	if err != nil {
		writeError(w, sc.logger, providers.TypePost, err)
		return
	}
	writeJSON(w, http.StatusOK, chunk)
}

func (sc *ShardController) InvitesChunk(w http.ResponseWriter, r *http.Request) {
	var req models.ChunkRequest
	if !decode(w, r, maxRequestBodySize, &req) {
		return
	}
	chunk, err := sc.service.InvitesChunk(caller(r), req.EventIdentifier, req.Chunk, req.MaxBytesPerChunk)
	if err != nil {
		writeError(w, sc.logger, providers.TypePost, err)
		return
	}
	writeJSON(w, http.StatusOK, chunk)
}

func (sc *ShardController) AddEntryByParent(w http.ResponseWriter, r *http.Request) {
	var req models.AddEntryRequest
	if !decode(w, r, maxRequestBodySize, &req) {
		return
	}
	id, err := sc.service.AddEntryByParent(caller(r), req)
	if err != nil {
		writeError(w, sc.logger, providers.TypePost, err)
		return
	}
	writeJSON(w, http.StatusCreated, models.AddEntryResponse{ID: id})
}

func (sc *ShardController) Status(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, sc.service.Status())
}

func (sc *ShardController) Install(w http.ResponseWriter, r *http.Request) {
	var req models.InstallRequest
	if !decode(w, r, maxInstallBodySize, &req) {
		return
	}
	if err := sc.service.Install(caller(r), req); err != nil {
		writeError(w, sc.logger, providers.TypePost, err)
		return
	}
	writeJSON(w, http.StatusOK, sc.service.Status())
}

func (sc *ShardController) Upgrade(w http.ResponseWriter, r *http.Request) {
	var req models.UpgradeRequest
	if !decode(w, r, maxInstallBodySize, &req) {
		return
	}
	if err := sc.service.Upgrade(caller(r), req); err != nil {
		writeError(w, sc.logger, providers.TypePost, err)
		return
	}
	writeJSON(w, http.StatusOK, sc.service.Status())
}
