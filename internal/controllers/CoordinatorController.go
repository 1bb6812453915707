package controllers

import (
	"attendees/internal/models"
	"attendees/internal/providers"
	"attendees/internal/services"
	"net/http"
)

type CoordinatorController struct {
	logger  providers.Logger
	service services.ScalableServiceInterface
}

func NewCoordinatorController(logger providers.Logger, service services.ScalableServiceInterface) *CoordinatorController {
	return &CoordinatorController{
		logger:  logger,
		service: service,
	}
}

// pageQuery reads the event and paging parameters shared by the fan-out reads.
// The event may be passed as event or, for older clients, as group.
func pageQuery(w http.ResponseWriter, r *http.Request) (models.Principal, int, int, bool) {
	q := r.URL.Query()
	event := q.Get("event")
	if event == "" {
		event = q.Get("group")
	}
	limit, ok := intQuery(w, r, "limit")
	if !ok {
		return "", 0, 0, false
	}
	page, ok := intQuery(w, r, "page")
	if !ok {
		return "", 0, 0, false
	}
	return models.Principal(event), limit, page, true
}

func (cc *CoordinatorController) GetMembers(w http.ResponseWriter, r *http.Request) {
	event, limit, page, ok := pageQuery(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, cc.service.GetMembers(r.Context(), event, limit, page))
}

func (cc *CoordinatorController) GetInvites(w http.ResponseWriter, r *http.Request) {
	event, limit, page, ok := pageQuery(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, cc.service.GetInvites(r.Context(), event, limit, page))
}

func (cc *CoordinatorController) GetShards(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, cc.service.GetShards())
}

func (cc *CoordinatorController) GetAvailableShard(w http.ResponseWriter, r *http.Request) {
	record, err := cc.service.GetAvailableShard(caller(r))
	if err != nil {
		writeError(w, cc.logger, providers.TypeGet, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (cc *CoordinatorController) SpawnAndSeal(w http.ResponseWriter, r *http.Request) {
	var req models.SpawnRequest
	if !decode(w, r, maxRequestBodySize, &req) {
		return
	}
	result, err := cc.service.SpawnAndSeal(r.Context(), caller(r), req)
	if err != nil {
		writeError(w, cc.logger, providers.TypePost, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Upgrade upgrades the shard named by the id parameter, or every shard when it is absent.
func (cc *CoordinatorController) Upgrade(w http.ResponseWriter, r *http.Request) {
	if id := r.URL.Query().Get("id"); id != "" {
		record, err := cc.service.UpgradeShard(r.Context(), caller(r), models.Principal(id))
		if err != nil {
			writeError(w, cc.logger, providers.TypePost, err)
			return
		}
		writeJSON(w, http.StatusOK, record)
		return
	}

	records, err := cc.service.UpgradeAll(r.Context(), caller(r))
	if err != nil {
		writeError(w, cc.logger, providers.TypePost, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (cc *CoordinatorController) GetWasmVersion(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, cc.service.GetLatestWasmVersion())
}

func (cc *CoordinatorController) SetChildImage(w http.ResponseWriter, r *http.Request) {
	var req models.ChildImageRequest
	if !decode(w, r, maxInstallBodySize, &req) {
		return
	}
	if err := cc.service.SetChildImage(caller(r), req.Image, req.Version); err != nil {
		writeError(w, cc.logger, providers.TypePost, err)
		return
	}
	cc.logger.Infof(providers.TypeApp, "Child image set to %s by %s", req.Version, caller(r))
	writeJSON(w, http.StatusOK, cc.service.GetLatestWasmVersion())
}
