// Package client talks to a remote pulsehub over HTTP. It pushes values
// through the ingest API and follows a prefix over the SSE watch stream,
// which makes it usable as a mirroring source.
package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	v1 "pulsehub/pkg/api/v1"
	"pulsehub/pkg/logger"

	"go.uber.org/zap"
)

var ErrUnexpectedStatus = errors.New("unexpected status")

type PulseClient struct {
	addr       string
	apiKey     string
	httpClient *http.Client

	// reconnect when nothing, not even a ping, arrived for this long
	heartbeatTimeout time.Duration
	maxBackoff       time.Duration

	mu     sync.RWMutex
	latest map[string]json.RawMessage
}

func NewPulseClient(addr, apiKey string) *PulseClient {
	return &PulseClient{
		addr:             strings.TrimRight(addr, "/"),
		apiKey:           apiKey,
		httpClient:       &http.Client{Timeout: 0},
		heartbeatTimeout: 45 * time.Second,
		maxBackoff:       30 * time.Second,
		latest:           make(map[string]json.RawMessage),
	}
}

func (c *PulseClient) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.addr+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Pulse-Key", c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// Publish pushes one value to the remote hub and returns the topic id.
func (c *PulseClient) Publish(ctx context.Context, label, units string, value float64) (string, error) {
	body, err := json.Marshal(map[string]any{"label": label, "units": units, "value": value})
	if err != nil {
		return "", err
	}
	req, err := c.newRequest(ctx, http.MethodPost, "/v1/ingest", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: %s", ErrUnexpectedStatus, resp.Status)
	}
	var out struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	return out.ID, nil
}

// Snapshot fetches the current value of every remote topic under prefix.
func (c *PulseClient) Snapshot(ctx context.Context, prefix string) ([]v1.RemoteValue, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/v1/stream/snapshot?prefix="+url.QueryEscape(prefix), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		logger.Error("failed to fetch snapshot", zap.Error(err))
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s", ErrUnexpectedStatus, resp.Status)
	}

	var res struct {
		Data []v1.RemoteValue `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		logger.Error("failed to decode snapshot response", zap.Error(err))
		return nil, err
	}
	for _, rv := range res.Data {
		c.remember(rv)
	}
	return res.Data, nil
}

// Latest returns the last value seen for label by Snapshot or Stream.
func (c *PulseClient) Latest(label string) (json.RawMessage, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.latest[label]
	return v, ok
}

func (c *PulseClient) remember(rv v1.RemoteValue) {
	c.mu.Lock()
	c.latest[rv.Label] = rv.Value
	c.mu.Unlock()
}

// Stream starts with the snapshot of prefix and then follows the watch
// stream, reconnecting with backoff until ctx is done. Values may repeat
// across reconnects.
func (c *PulseClient) Stream(ctx context.Context, prefix string) (<-chan v1.RemoteValue, error) {
	initial, err := c.Snapshot(ctx, prefix)
	if err != nil {
		return nil, err
	}
	out := make(chan v1.RemoteValue, 64)
	go func() {
		defer close(out)
		for _, rv := range initial {
			select {
			case out <- rv:
			case <-ctx.Done():
				return
			}
		}
		c.watchLoop(ctx, prefix, out)
	}()
	return out, nil
}

func (c *PulseClient) watchLoop(ctx context.Context, prefix string, out chan<- v1.RemoteValue) {
	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return
		}
		err := c.watchOnce(ctx, prefix, out, func() { backoff = time.Second })
		if ctx.Err() != nil {
			return
		}
		jitter := time.Duration(rand.Int63n(int64(backoff / 2)))
		logger.Warn("SSE disconnected", zap.String("prefix", prefix), zap.Error(err))
		select {
		case <-time.After(backoff + jitter):
		case <-ctx.Done():
			return
		}
		backoff = min(backoff*2, c.maxBackoff)
	}
}

// watchOnce runs one SSE connection until it breaks.
func (c *PulseClient) watchOnce(ctx context.Context, prefix string, out chan<- v1.RemoteValue, connected func()) error {
	reqCtx, reqCancel := context.WithCancel(ctx)
	defer reqCancel()

	req, err := c.newRequest(reqCtx, http.MethodGet, "/v1/stream/watch?prefix="+url.QueryEscape(prefix), nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: %s", ErrUnexpectedStatus, resp.Status)
	}
	connected()

	// Watchdog for heartbeats
	var lastActivity atomic.Int64
	lastActivity.Store(time.Now().UnixNano())
	go func() {
		ticker := time.NewTicker(c.heartbeatTimeout / 5)
		defer ticker.Stop()
		for {
			select {
			case <-reqCtx.Done():
				return
			case <-ticker.C:
				if time.Since(time.Unix(0, lastActivity.Load())) > c.heartbeatTimeout {
					logger.Warn("sse heartbeat timeout, reconnecting")
					reqCancel()
					return
				}
			}
		}
	}()

	return readEvents(resp.Body, func() { lastActivity.Store(time.Now().UnixNano()) }, func(event string, data []byte) bool {
		if event != "message" {
			return true
		}
		var rv v1.RemoteValue
		if err := json.Unmarshal(data, &rv); err != nil {
			logger.Error("failed to unmarshal datapoint", zap.Error(err))
			return true
		}
		c.remember(rv)
		select {
		case out <- rv:
			return true
		case <-reqCtx.Done():
			return false
		}
	})
}

// readEvents splits an SSE body into events. touch runs for every line;
// handle returning false stops reading.
func readEvents(r io.Reader, touch func(), handle func(event string, data []byte) bool) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var eventType string
	var dataBuffer bytes.Buffer
	for scanner.Scan() {
		touch()
		line := scanner.Text()
		if line == "" {
			if dataBuffer.Len() > 0 || eventType != "" {
				if eventType == "" {
					eventType = "message"
				}
				if !handle(eventType, dataBuffer.Bytes()) {
					return nil
				}
			}
			eventType = ""
			dataBuffer.Reset()
			continue
		}

		switch {
		case strings.HasPrefix(line, "event:"):
			eventType = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			// multiple data lines are joined by newline
			if dataBuffer.Len() > 0 {
				dataBuffer.WriteString("\n")
			}
			dataBuffer.WriteString(strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return io.EOF
}
