// Tabularium - Structured Logging Pipeline with Compliance Controls
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tabularium

package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/tomtom215/tabularium/internal/entry"
	"github.com/tomtom215/tabularium/internal/level"
	"github.com/tomtom215/tabularium/internal/logger"
)

// maxIngestBody caps a single ingest request. Shippers batching more
// than this should split the batch.
const maxIngestBody = 1 << 20

// IngestRequest is the wire form of one remote entry. Message may be
// a literal or a {} placeholder template filled from Args.
type IngestRequest struct {
	Level    string         `json:"level"`
	Category string         `json:"category,omitempty"`
	Message  string         `json:"message"`
	Args     []any          `json:"args,omitempty"`
	Context  *entry.Context `json:"context,omitempty"`
}

// IngestResult reports the outcome for one entry.
type IngestResult struct {
	Accepted bool   `json:"accepted"`
	Category string `json:"category"`
	Level    string `json:"level"`
	Reason   string `json:"reason,omitempty"`
}

// Ingest accepts external entries into the pipeline. The body is
// either a single IngestRequest object or an array of them. Entries
// run through the same stages as in-process logging; a compliance
// veto is reported as accepted=false with HTTP 200 so shippers drop
// the entry instead of retrying it.
func (h *Handler) Ingest(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	if h.registry == nil {
		rw.WriteServiceUnavailable("Registry unavailable")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxIngestBody)
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			rw.WriteError(http.StatusRequestEntityTooLarge, CodePayloadTooLarge, "Request body exceeds 1 MiB")
			return
		}
		rw.WriteBadRequest("Unreadable request body")
		return
	}

	reqs, err := decodeIngestBatch(raw)
	if err != nil {
		rw.WriteBadRequest(err.Error())
		return
	}
	if len(reqs) == 0 {
		rw.WriteBadRequest("Empty batch")
		return
	}

	results := make([]IngestResult, 0, len(reqs))
	accepted := 0
	for i := range reqs {
		res, err := h.ingestOne(&reqs[i])
		if err != nil {
			if errors.Is(err, logger.ErrRegistryShutdown) {
				rw.WriteServiceUnavailable("Pipeline is shutting down")
				return
			}
			rw.WriteErrorDetails(http.StatusBadRequest, CodeValidationFailed, err.Error(), map[string]any{"index": i})
			return
		}
		if res.Accepted {
			accepted++
		}
		results = append(results, res)
	}

	rw.WriteSuccessStatus(http.StatusAccepted, map[string]any{
		"received": len(results),
		"accepted": accepted,
		"results":  results,
	})
}

// decodeIngestBatch accepts both the single-object and array forms.
func decodeIngestBatch(raw []byte) ([]IngestRequest, error) {
	trimmed := firstNonSpace(raw)
	if trimmed == '[' {
		var reqs []IngestRequest
		if err := json.Unmarshal(raw, &reqs); err != nil {
			return nil, errors.New("invalid entry array")
		}
		return reqs, nil
	}

	var req IngestRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, errors.New("invalid entry object")
	}
	return []IngestRequest{req}, nil
}

func firstNonSpace(raw []byte) byte {
	for _, b := range raw {
		switch b {
		case ' ', '\t', '\r', '\n':
			continue
		}
		return b
	}
	return 0
}

// ingestOne validates and dispatches a single entry. A compliance
// veto is a result, not an error.
func (h *Handler) ingestOne(req *IngestRequest) (IngestResult, error) {
	lvl, err := level.Parse(req.Level)
	if err != nil {
		return IngestResult{}, errors.New("unknown level " + req.Level)
	}
	if req.Message == "" {
		return IngestResult{}, errors.New("message is required")
	}

	res := IngestResult{
		Category: req.Category,
		Level:    lvl.String(),
	}

	// Pre-check the compliance gate so vetoed entries are reported
	// instead of silently discarded inside the pipeline.
	if h.compliance != nil && !h.compliance.IsLoggingAllowed(req.Context) {
		res.Reason = "compliance_veto"
		return res, nil
	}

	lg, err := h.registry.GetLogger(req.Category)
	if err != nil {
		return IngestResult{}, err
	}

	lg.Log(lvl, req.Context, req.Message, req.Args...)
	res.Accepted = true
	return res, nil
}
