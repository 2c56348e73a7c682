package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/helix-tools/ledger-go/ledger"
	"github.com/helix-tools/ledger-go/types"
)

// maxBodyBytes bounds request bodies; batch listings are the largest payloads.
const maxBodyBytes = 1 << 20

func (h *Handler) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		h.logger.Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", time.Since(start)),
			zap.String("caller", r.Header.Get(CallerHeader)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func (h *Handler) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				h.logger.Error("panic serving request",
					zap.String("path", r.URL.Path),
					zap.Any("panic", rec),
				)
				writeError(w, http.StatusInternalServerError, "error", "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func caller(r *http.Request) string {
	return r.Header.Get(CallerHeader)
}

func pathID(r *http.Request, name string) (uint64, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q", name, raw)
	}

	return id, nil
}

// userParam returns the {user} path segment. Identities may contain
// escaped slashes, which chi leaves encoded when routing on RawPath.
// Without a RawPath the segment is already decoded.
func userParam(r *http.Request) string {
	raw := chi.URLParam(r, "user")
	if r.URL.RawPath == "" {
		return raw
	}
	if user, err := url.PathUnescape(raw); err == nil {
		return user
	}

	return raw
}

// decode reads a JSON body into v. An empty body leaves v at its zero value.
func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("invalid json body: %w", err)
	}

	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, types.ErrorResponse{Error: msg, Code: code})
}

func writeBadRequest(w http.ResponseWriter, err error) {
	writeError(w, http.StatusBadRequest, "invalid_input", err.Error())
}

// writeLedgerError maps a ledger error kind onto an HTTP status.
func (h *Handler) writeLedgerError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case ledger.IsNotFound(err):
		status = http.StatusNotFound
	case ledger.IsUnauthorized(err):
		status = http.StatusForbidden
	case ledger.IsInactive(err):
		status = http.StatusConflict
	case ledger.IsInvalidInput(err):
		status = http.StatusBadRequest
	case ledger.IsInsufficientPayment(err):
		status = http.StatusPaymentRequired
	case ledger.IsTransferFailure(err):
		status = http.StatusBadGateway
	}

	if status >= http.StatusInternalServerError {
		h.logger.Error("ledger operation failed", zap.Error(err))
	}
	writeError(w, status, ledger.Code(err), err.Error())
}
