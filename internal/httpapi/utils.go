package httpapi

import (
	"encoding/json"
	"net/http"

	"roaming/internal/errs"
	"roaming/internal/logging"

	"github.com/sirupsen/logrus"
)

const maxBodyBytes = 1 << 20

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	defer body.Close()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errs.Wrap(errs.CodeInvalidInput, "invalid json", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func statusOf(err error) int {
	switch errs.CodeOf(err) {
	case errs.CodeNotFound:
		return http.StatusNotFound
	case errs.CodeInvalidInput:
		return http.StatusBadRequest
	case errs.CodeConflict:
		return http.StatusConflict
	case errs.CodeNetwork, errs.CodeRemote:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeError answers with the error's code and message. Internal failures are
// logged and their message is not echoed.
func writeError(w http.ResponseWriter, logger logrus.FieldLogger, funcName string, err error) {
	status := statusOf(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		logging.LogError(logger, "httpapi", funcName, "request failed", nil, err)
		msg = "internal error"
	}
	writeJSON(w, status, map[string]any{"code": string(errs.CodeOf(err)), "error": msg})
}
