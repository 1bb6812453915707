package controllers

import (
	"attendees/internal/models"
	"attendees/internal/providers"
	"net/http"
	"strconv"

	json "github.com/goccy/go-json"
)

const maxRequestBodySize = 1 << 20 // 1 MB

// maxInstallBodySize bounds install, upgrade and image upload bodies.
const maxInstallBodySize = 64 << 20

func caller(r *http.Request) models.Principal {
	return models.Principal(r.Header.Get(providers.CallerHeader))
}

func statusFor(kind models.ErrorKind) int {
	switch kind {
	case models.KindNotFound:
		return http.StatusNotFound
	case models.KindBadRequest:
		return http.StatusBadRequest
	case models.KindUnauthorized:
		return http.StatusUnauthorized
	case models.KindCanisterAtCapacity:
		return http.StatusConflict
	case models.KindRemoteCallFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	gson, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(gson)
}

func writeError(w http.ResponseWriter, logger providers.Logger, logType providers.TypeEnum, err error) {
	apiErr, ok := models.AsApiError(err)
	if !ok {
		apiErr = models.WrapApiError(models.KindUnexpected, models.TagUnexpected, "controllers", err)
	}
	status := statusFor(apiErr.Kind)
	if status >= http.StatusInternalServerError {
		logger.Errorf(logType, "Request failed: %s", apiErr.Error())
	} else {
		logger.Debugf(logType, "Request rejected: %s", apiErr.Error())
	}
	writeJSON(w, status, apiErr)
}

// decode reads a JSON body into v, answering 400 on failure.
func decode(w http.ResponseWriter, r *http.Request, limit int64, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return false
	}
	return true
}

// intQuery parses an optional non-negative integer query value, answering 400
// when it is malformed or negative.
func intQuery(w http.ResponseWriter, r *http.Request, key string) (int, bool) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return 0, false
	}
	return v, true
}
