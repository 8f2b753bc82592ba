package http

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/csvleech/leech/internal/codec"
	"github.com/csvleech/leech/internal/engine"
	"github.com/csvleech/leech/internal/errors"
	"github.com/csvleech/leech/internal/sqlemit"
)

// RecordResponse reports the HEAD hash after a recording pass.
type RecordResponse struct {
	HeadHash  string `json:"head_hash"`
	RequestID string `json:"request_id"`
}

// RecordHandler handles POST /v1/record.
type RecordHandler struct {
	engine *engine.Engine
}

// NewRecordHandler creates a new record handler.
func NewRecordHandler(e *engine.Engine) *RecordHandler {
	return &RecordHandler{engine: e}
}

func (h *RecordHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := GetRequestID(r.Context())
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed", requestID)
		return
	}

	head, err := h.engine.Record(r.Context())
	if err != nil {
		writeEngineError(w, err, requestID)
		return
	}

	writeJSON(w, http.StatusOK, RecordResponse{HeadHash: head, RequestID: requestID})
}

// PublishRequest optionally pins the ancestor a patch is built
// against; an empty value falls back to REPORTED, then to genesis.
type PublishRequest struct {
	Ancestor string `json:"ancestor,omitempty"`
}

// PublishResponse carries the encoded patch and, when requested, the
// equivalent SQL transaction text.
type PublishResponse struct {
	Patch     []byte `json:"patch"`
	SQL       string `json:"sql,omitempty"`
	RequestID string `json:"request_id"`
}

// PublishHandler handles POST /v1/publish.
type PublishHandler struct {
	engine  *engine.Engine
	emitSQL bool
}

// NewPublishHandler creates a new publish handler. When emitSQL is
// true, the response also carries the patch's SQL replay text.
func NewPublishHandler(e *engine.Engine, emitSQL bool) *PublishHandler {
	return &PublishHandler{engine: e, emitSQL: emitSQL}
}

func (h *PublishHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := GetRequestID(r.Context())
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed", requestID)
		return
	}

	var req PublishRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err), requestID)
			return
		}
	}

	p, err := h.engine.Publish(r.Context(), req.Ancestor)
	if err != nil {
		writeEngineError(w, err, requestID)
		return
	}

	encoded, err := codec.Encode(p, false)
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("encode patch: %v", err), requestID)
		return
	}

	resp := PublishResponse{Patch: encoded, RequestID: requestID}
	if h.emitSQL {
		sql, err := sqlemit.Emit(p)
		if err != nil {
			writeError(w, http.StatusInternalServerError, fmt.Sprintf("emit SQL: %v", err), requestID)
			return
		}
		resp.SQL = sql
	}

	writeJSON(w, http.StatusOK, resp)
}

// AckRequest carries the previously published patch and whether the
// downstream consumer considers it successfully applied.
type AckRequest struct {
	Patch    []byte `json:"patch"`
	Reported bool   `json:"reported"`
}

// AckHandler handles POST /v1/ack.
type AckHandler struct {
	engine *engine.Engine
}

// NewAckHandler creates a new ack handler.
func NewAckHandler(e *engine.Engine) *AckHandler {
	return &AckHandler{engine: e}
}

func (h *AckHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := GetRequestID(r.Context())
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed", requestID)
		return
	}

	var req AckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err), requestID)
		return
	}
	if len(req.Patch) == 0 {
		writeError(w, http.StatusBadRequest, "patch is required", requestID)
		return
	}

	if err := h.engine.Ack(r.Context(), req.Patch, req.Reported); err != nil {
		writeEngineError(w, err, requestID)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "request_id": requestID})
}

// writeEngineError maps a core error to an HTTP status using its
// category: NotFound to 404, Corrupt/Config/DuplicateKey to 400,
// Conflict to 409,
// everything else to 500.
func writeEngineError(w http.ResponseWriter, err error, requestID string) {
	status := http.StatusInternalServerError
	switch errors.GetCategory(err) {
	case errors.ErrCategoryNotFound:
		status = http.StatusNotFound
	case errors.ErrCategoryCorrupt, errors.ErrCategoryConfig, errors.ErrCategoryDuplicateKey:
		status = http.StatusBadRequest
	case errors.ErrCategoryConflict:
		status = http.StatusConflict
	}
	writeError(w, status, err.Error(), requestID)
}
