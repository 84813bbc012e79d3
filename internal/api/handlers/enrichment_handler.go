package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog/log"
	apiContext "portal/internal/api/context"
	"portal/internal/engine/enrichment"
	pkgErrors "portal/internal/pkg/errors"
)

type EnrichmentHandler struct {
	client *enrichment.Client
}

func NewEnrichmentHandler(client *enrichment.Client) *EnrichmentHandler {
	return &EnrichmentHandler{client: client}
}

// GetJob proxies the enrichment service's job detail endpoint with the
// caller's own bearer token.
func (h *EnrichmentHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	token := r.Context().Value(apiContext.Token).(string)
	params := r.Context().Value(apiContext.Params).(httprouter.Params)
	jobID := params.ByName("enrichment_id")

	job, err := h.client.GetJob(r.Context(), token, jobID)
	if err != nil {
		writeEnrichmentError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(job)
}

// StreamLogs re-emits the enrichment service's log stream for one job as
// SSE. The subscription follows the job's correlation id; it closes when the
// upstream completes, the reconnect bound is exhausted, or the client goes
// away.
func (h *EnrichmentHandler) StreamLogs(w http.ResponseWriter, r *http.Request) {
	token := r.Context().Value(apiContext.Token).(string)
	params := r.Context().Value(apiContext.Params).(httprouter.Params)
	jobID := params.ByName("enrichment_id")

	job, err := h.client.GetJob(r.Context(), token, jobID)
	if err != nil {
		writeEnrichmentError(w, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		pkgErrors.WriteError(w, http.StatusInternalServerError, pkgErrors.ErrCodeInternal, "Streaming unsupported", nil)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	if job.CorrelationID == "" {
		// Not processing (or already terminal): nothing to stream.
		fmt.Fprintf(w, ": job %s is not processing\n\n", job.Status)
		flusher.Flush()
		return
	}

	sub := h.client.SubscribeLogs(r.Context(), token, job.CorrelationID, nil)

	// Progress is re-emitted only when it moves past the subscription's
	// zero value, so a stream that never reports progress emits nothing.
	lastProgress := 0
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case entry, open := <-sub.Events():
			if !open {
				h.emitTerminal(w, flusher, r, token, jobID, sub)
				return
			}
			data, err := json.Marshal(entry)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: log\ndata: %s\n\n", data)
			flusher.Flush()

		case <-ticker.C:
			if p := sub.Progress(); p != lastProgress {
				lastProgress = p
				fmt.Fprintf(w, "event: progress\ndata: {\"percent\":%d}\n\n", p)
				flusher.Flush()
			}

		case <-r.Context().Done():
			return
		}
	}
}

// emitTerminal closes out the SSE response once the subscription finishes.
// On completion the job is re-fetched so the complete event carries the
// authoritative status, not the stream's.
func (h *EnrichmentHandler) emitTerminal(w http.ResponseWriter, flusher http.Flusher, r *http.Request, token, jobID string, sub *enrichment.Subscription) {
	switch sub.State() {
	case enrichment.StateCompleted:
		status := "completed"
		if job, err := h.client.GetJob(r.Context(), token, jobID); err == nil {
			status = job.Status
		} else {
			log.Warn().Err(err).Str("job_id", jobID).Msg("job re-fetch after complete failed")
		}
		fmt.Fprintf(w, "event: complete\ndata: {\"status\":%q}\n\n", status)
	case enrichment.StateDisconnected:
		fmt.Fprint(w, ": stream offline\n\n")
	}
	flusher.Flush()
}

func writeEnrichmentError(w http.ResponseWriter, err error) {
	var upErr *enrichment.UpstreamError
	if errors.As(err, &upErr) {
		switch upErr.StatusCode {
		case http.StatusNotFound:
			pkgErrors.WriteError(w, http.StatusNotFound, pkgErrors.ErrCodeNotFound, "Enrichment not found", nil)
		case http.StatusUnauthorized:
			pkgErrors.WriteError(w, http.StatusUnauthorized, pkgErrors.ErrCodeUnauthorized, "Enrichment service rejected the token", nil)
		default:
			pkgErrors.WriteError(w, http.StatusBadGateway, pkgErrors.ErrCodeUpstream, "Enrichment service error", nil)
		}
		return
	}

	log.Error().Err(err).Msg("enrichment request failed")
	pkgErrors.WriteError(w, http.StatusServiceUnavailable, pkgErrors.ErrCodeServiceUnavailable, "Enrichment service unreachable", nil)
}
