package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/koustreak/cloudbox/internal/errs"
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Kind     string   `json:"kind"`
	Message  string   `json:"message"`
	Provider string   `json:"provider,omitempty"`
	Code     string   `json:"code,omitempty"`
	Missing  []string `json:"missing,omitempty"`
}

// StatusFor maps an error kind to the HTTP status the API answers with.
func StatusFor(err error) int {
	switch errs.KindOf(err) {
	case errs.KindNotFound:
		return http.StatusNotFound
	case errs.KindPermission:
		return http.StatusForbidden
	case errs.KindAuthentication:
		return http.StatusUnauthorized
	case errs.KindResolution, errs.KindMalformedRequest:
		return http.StatusBadRequest
	case errs.KindUnsupported:
		return http.StatusNotImplemented
	case errs.KindTransport:
		return http.StatusBadGateway
	case errs.KindConflict:
		return http.StatusConflict
	case errs.KindThrottled:
		return http.StatusTooManyRequests
	}
	return http.StatusInternalServerError
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	detail := errorDetail{Kind: errs.KindOf(err).String(), Message: err.Error()}

	var pe *errs.ProviderError
	var re *errs.ResolutionError
	switch {
	case errors.As(err, &pe):
		detail.Provider = pe.Provider
		detail.Code = pe.Code
		if pe.Message != "" {
			detail.Message = pe.Message
		}
	case errors.As(err, &re):
		detail.Provider = re.Provider
		detail.Missing = re.Missing
	}

	fields := map[string]interface{}{
		"box":    chi.URLParam(r, "box"),
		"path":   r.URL.Path,
		"status": status,
	}
	if status >= http.StatusInternalServerError {
		s.log.ErrorWith("request failed", err, fields)
	} else {
		s.log.WarnWith("request rejected", err, fields)
	}
	writeJSON(w, status, errorBody{Error: detail})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
