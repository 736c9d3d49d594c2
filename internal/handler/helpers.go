package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/deskdata/deskdata/internal/config"
	"github.com/deskdata/deskdata/internal/model"
	"github.com/deskdata/deskdata/internal/query"
	"github.com/deskdata/deskdata/internal/retrieval"
	"github.com/deskdata/deskdata/internal/service"
	"github.com/deskdata/deskdata/internal/tenantdb"
)

// writeJSON serializes v as JSON and writes it to the response with the given
// HTTP status code. The Content-Type header is set to application/json.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a structured error response using the standard error
// envelope. The optional ctx map provides additional context fields.
func writeError(w http.ResponseWriter, code int, message string, ctx ...map[string]interface{}) {
	var ctxMap map[string]interface{}
	if len(ctx) > 0 {
		ctxMap = ctx[0]
	}
	writeJSON(w, code, model.ErrorResponse{
		Error: model.ErrorDetail{
			Code:    code,
			Message: message,
			Context: ctxMap,
		},
	})
}

// readJSON decodes the request body as JSON into v. The body is closed after
// decoding regardless of success or failure.
func readJSON(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

// queryInt extracts an integer query parameter, returning defaultVal if the
// parameter is missing or cannot be parsed.
func queryInt(r *http.Request, key string, defaultVal int) int {
	val := r.URL.Query().Get(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}

// queryBool extracts a boolean query parameter. Returns false if the parameter
// is missing or not "true"/"1".
func queryBool(r *http.Request, key string) bool {
	val := r.URL.Query().Get(key)
	return val == "true" || val == "1"
}

// writeTenantError maps a failure from the query layer, retrieval or the
// tenant service onto an HTTP status and the error envelope. The tenant
// and kind travel in the context map; the statement text never does.
func writeTenantError(w http.ResponseWriter, err error, fallbackMsg string) {
	status, msg := classifyError(err, fallbackMsg)

	var terr *tenantdb.Error
	if errors.As(err, &terr) {
		writeError(w, status, msg, map[string]interface{}{
			"tenant": terr.TenantID,
			"kind":   terr.Kind.String(),
		})
		return
	}
	writeError(w, status, msg)
}

// classifyError returns (httpStatus, cleanMessage) for err.
func classifyError(err error, fallbackMsg string) (int, string) {
	if errors.Is(err, query.ErrInvalidIdentifier) {
		return http.StatusBadRequest, fallbackMsg + ": " + err.Error()
	}

	var terr *tenantdb.Error
	if errors.As(err, &terr) {
		return classifyTenantError(terr, fallbackMsg)
	}

	switch {
	case errors.Is(err, retrieval.ErrInvalidQuestion),
		errors.Is(err, service.ErrTenantRequired),
		errors.Is(err, model.ErrIncompleteConfig),
		errors.Is(err, model.ErrUnsupportedProvider):
		return http.StatusBadRequest, fallbackMsg + ": " + err.Error()
	case errors.Is(err, config.ErrNotFound):
		return http.StatusNotFound, fallbackMsg + ": not found"
	default:
		return http.StatusInternalServerError, fallbackMsg + ": " + err.Error()
	}
}

// classifyTenantError maps a *tenantdb.Error. Unusable stored configs are
// 422; backend failures are 502 unless the message names a cause.
func classifyTenantError(terr *tenantdb.Error, fallbackMsg string) (int, string) {
	msg := fallbackMsg + ": " + terr.Kind.String() + ": " + terr.Err.Error()
	switch terr.Kind {
	case tenantdb.KindConfiguration, tenantdb.KindUnsupportedProvider:
		return http.StatusUnprocessableEntity, msg
	case tenantdb.KindConnection:
		return http.StatusBadGateway, msg
	}

	lower := strings.ToLower(terr.Err.Error())
	switch {
	// Table/relation not found → 404
	case strings.Contains(lower, "relation") && strings.Contains(lower, "does not exist"),
		strings.Contains(lower, "doesn't exist"):
		return http.StatusNotFound, msg
	case strings.Contains(lower, "permission denied"):
		return http.StatusForbidden, msg
	case strings.Contains(lower, "syntax error"):
		return http.StatusBadRequest, msg
	default:
		return http.StatusBadGateway, msg
	}
}
