package rpc

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/stustapay/stustapayd/internal/errs"
)

// maxBodySize bounds request payloads; order and config bodies are
// small, the limit only guards against runaway clients.
const maxBodySize = 1 << 20

// WriteJSON renders v with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	// Encoding failures after the header is out can only be logged by
	// the caller; the typical cause is a closed connection.
	_ = json.NewEncoder(w).Encode(v)
}

// WriteList renders a collection and announces its size via
// Content-Range, which the admin frontend uses for pagination.
func WriteList(w http.ResponseWriter, items interface{}, count int) {
	w.Header().Set("Content-Range", strconv.Itoa(count))
	WriteJSON(w, http.StatusOK, items)
}

// WriteError renders any error through the taxonomy: recognised kinds
// keep their stable id, status and details, everything else surfaces
// as Internal without leaking the cause.
func WriteError(w http.ResponseWriter, logger zerolog.Logger, err error) {
	status := errs.HTTPStatusOf(err)
	var svcErr *errs.Error
	if !errors.As(err, &svcErr) {
		svcErr = errs.Internal("internal server error", err)
	}
	if status >= http.StatusInternalServerError {
		logger.Error().Err(err).Msg("request failed")
	}
	WriteJSON(w, status, svcErr)
}

// DecodeJSON binds the request body to v. Unknown fields are rejected
// so typos in terminal payloads fail loudly instead of booking the
// wrong thing.
func DecodeJSON(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodySize))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errs.InvalidArgumentf("invalid request body: %v", err)
	}
	return nil
}

// PathInt64 reads a numeric mux path variable.
func PathInt64(r *http.Request, name string) (int64, error) {
	raw, ok := mux.Vars(r)[name]
	if !ok {
		return 0, errs.InvalidArgumentf("missing path parameter %q", name)
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, errs.InvalidArgumentf("invalid path parameter %q: %v", name, err)
	}
	return id, nil
}

// PathTagUID reads a tag uid path variable. Tags arrive as decimal or
// 0x-prefixed hex, matching how terminals render them.
func PathTagUID(r *http.Request, name string) (uint64, error) {
	raw, ok := mux.Vars(r)[name]
	if !ok {
		return 0, errs.InvalidArgumentf("missing path parameter %q", name)
	}
	uid, err := strconv.ParseUint(raw, 0, 64)
	if err != nil {
		return 0, errs.InvalidArgumentf("invalid tag uid %q: %v", raw, err)
	}
	return uid, nil
}

// QueryInt64 reads an optional numeric query parameter, returning
// fallback when absent.
func QueryInt64(r *http.Request, name string, fallback int64) (int64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, errs.InvalidArgumentf("invalid query parameter %q: %v", name, err)
	}
	return v, nil
}
