package enrichment

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"portal/internal/platform/metrics"
)

type StreamState string

const (
	StateIdle         StreamState = "idle"
	StateConnecting   StreamState = "connecting"
	StateConnected    StreamState = "connected"
	StateCompleted    StreamState = "completed"
	StateDisconnected StreamState = "disconnected"
)

// LogEntry is one line of the enrichment job's log stream, kept in arrival
// order for the duration of a viewing session and never persisted here.
type LogEntry struct {
	Level      string `json:"level"`
	Message    string `json:"message"`
	Step       string `json:"step,omitempty"`
	DurationMs int64  `json:"duration_ms,omitempty"`
	Timestamp  string `json:"timestamp"`
}

type progressEvent struct {
	Percent int `json:"percent"`
}

// Subscription is a single log-stream consumer for one correlation id.
// Entries arrive on Events in emission order; Done closes once the
// subscription reaches a terminal state. Cancelling the subscribe context
// tears the transport down deterministically.
type Subscription struct {
	events   chan LogEntry
	done     chan struct{}
	doneOnce sync.Once

	mu       sync.RWMutex
	state    StreamState
	progress int

	onComplete   func()
	completeOnce sync.Once
}

func (s *Subscription) Events() <-chan LogEntry { return s.events }
func (s *Subscription) Done() <-chan struct{}   { return s.done }

func (s *Subscription) State() StreamState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Progress is the latest percent-complete reported by the stream, tracked
// separately from the log sequence.
func (s *Subscription) Progress() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.progress
}

func (s *Subscription) setState(state StreamState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

func (s *Subscription) setProgress(p int) {
	s.mu.Lock()
	s.progress = p
	s.mu.Unlock()
}

func (s *Subscription) finish(state StreamState) {
	s.setState(state)
	s.doneOnce.Do(func() {
		metrics.StreamSubscriptions.WithLabelValues(string(state)).Inc()
		close(s.done)
		close(s.events)
	})
}

// SubscribeLogs opens the enrichment service's SSE stream for a correlation
// id. An empty correlation id (job not processing, or already terminal)
// yields an immediately-done subscription in the idle state. onComplete
// fires exactly once when the stream emits its complete event; the caller
// re-fetches authoritative job state there.
func (c *Client) SubscribeLogs(ctx context.Context, token, correlationID string, onComplete func()) *Subscription {
	sub := &Subscription{
		events:     make(chan LogEntry, 64),
		done:       make(chan struct{}),
		state:      StateIdle,
		onComplete: onComplete,
	}

	if correlationID == "" {
		sub.finish(StateIdle)
		return sub
	}

	go c.run(ctx, token, correlationID, sub)
	return sub
}

func (c *Client) run(ctx context.Context, token, correlationID string, sub *Subscription) {
	attempts := 0
	for {
		sub.setState(StateConnecting)

		terminal, err := c.consume(ctx, token, correlationID, sub)
		if terminal {
			return
		}
		if ctx.Err() != nil {
			sub.finish(StateDisconnected)
			return
		}

		attempts++
		if attempts > c.maxRetries {
			log.Warn().Str("correlation_id", correlationID).Err(err).
				Msg("log stream reconnect attempts exhausted")
			sub.finish(StateDisconnected)
			return
		}

		select {
		case <-ctx.Done():
			sub.finish(StateDisconnected)
			return
		case <-time.After(c.retryDelay):
		}
	}
}

// consume runs one stream connection. It returns terminal=true when the
// subscription reached a terminal state and the run loop should stop.
func (c *Client) consume(ctx context.Context, token, correlationID string, sub *Subscription) (bool, error) {
	endpoint := fmt.Sprintf("%s/v1/enrichments/logs/stream?correlation_id=%s",
		c.baseURL, url.QueryEscape(correlationID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		sub.finish(StateDisconnected)
		return true, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.streamClient.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("stream endpoint returned %d", resp.StatusCode)
	}

	sub.setState(StateConnected)

	var eventName string
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event:"):
			eventName = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if done := c.dispatch(ctx, sub, eventName, data); done {
				return true, nil
			}
		case line == "":
			eventName = ""
		}
	}

	// EOF or read error: reconnect unless the caller went away.
	return false, scanner.Err()
}

func (c *Client) dispatch(ctx context.Context, sub *Subscription, event, data string) bool {
	switch event {
	case "progress":
		var p progressEvent
		if err := json.Unmarshal([]byte(data), &p); err == nil {
			sub.setProgress(p.Percent)
		}
		return false

	case "complete":
		sub.completeOnce.Do(func() {
			if sub.onComplete != nil {
				sub.onComplete()
			}
		})
		sub.finish(StateCompleted)
		return true

	case "log", "":
		var entry LogEntry
		if err := json.Unmarshal([]byte(data), &entry); err != nil {
			log.Debug().Str("data", data).Msg("skipping malformed log event")
			return false
		}
		select {
		case sub.events <- entry:
		case <-ctx.Done():
			return false
		}
		return false
	}
	return false
}
