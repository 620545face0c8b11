package api

import (
	"encoding/json"
	"net/http"

	"github.com/vamosnene/vamosnene/internal/debuglog"
)

// Error codes returned in the "error" field of failed responses.
const (
	codeNotFound         = "not_found"
	codeUnauthorized     = "unauthorized"
	codeInvalidEmail     = "invalid_email"
	codeInvalidJob       = "invalid_job"
	codeMethodNotAllowed = "method_not_allowed"
	codeServerError      = "server_error"
)

// writeOK writes {"ok":true} merged with the fields of payload, which must
// encode to a JSON object or be nil.
func writeOK(w http.ResponseWriter, payload any) {
	body := map[string]json.RawMessage{}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err == nil {
			err = json.Unmarshal(raw, &body)
		}
		if err != nil {
			debuglog.WithError(err).Error("encoding response")
			writeError(w, http.StatusInternalServerError, codeServerError, nil)
			return
		}
	}
	body["ok"] = json.RawMessage("true")
	writeJSON(w, http.StatusOK, body)
}

// writeError writes {"ok":false,"error":code} plus any extra fields.
func writeError(w http.ResponseWriter, status int, code string, extra map[string]any) {
	body := map[string]any{"ok": false, "error": code}
	for k, v := range extra {
		body[k] = v
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		debuglog.WithError(err).Debug("writing response")
	}
}

// serverError logs err and answers with a generic 500.
func serverError(w http.ResponseWriter, r *http.Request, err error) {
	debuglog.WithFields(debuglog.Fields{"path": r.URL.Path}).WithError(err).Error("request failed")
	writeError(w, http.StatusInternalServerError, codeServerError, nil)
}
