package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"pulsehub/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	logger.InitLogger("test")
}

func TestReadEvents(t *testing.T) {
	body := "event:ping\ndata:pong\n\n" +
		"event:message\ndata:{\"label\":\"a\",\n" +
		"data:\"value\":1}\n\n" +
		"data:{\"label\":\"b\",\"value\":2}\n\n"

	type ev struct{ name, data string }
	var got []ev
	touched := 0
	err := readEvents(strings.NewReader(body), func() { touched++ }, func(name string, data []byte) bool {
		got = append(got, ev{name, string(data)})
		return true
	})
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, []ev{
		{"ping", "pong"},
		{"message", "{\"label\":\"a\",\n\"value\":1}"},
		{"message", "{\"label\":\"b\",\"value\":2}"},
	}, got)
	assert.Equal(t, 9, touched)
}

func TestReadEvents_StopsWhenHandlerDeclines(t *testing.T) {
	body := "data:1\n\ndata:2\n\n"
	n := 0
	err := readEvents(strings.NewReader(body), func() {}, func(string, []byte) bool {
		n++
		return false
	})
	assert.NoError(t, err)
	assert.Equal(t, 1, n)
}

func newFakeHub(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/stream/snapshot", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Pulse-Key") != "k" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		assert.Equal(t, "node.", r.URL.Query().Get("prefix"))
		fmt.Fprint(w, `{"data":[{"id":"1","label":"node.cpu","value":0.5}],"total":1}`)
	})
	mux.HandleFunc("/v1/stream/watch", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "event:ping\ndata:pong\n\n")
		fmt.Fprint(w, "event:message\ndata:{\"id\":\"1\",\"label\":\"node.cpu\",\"value\":0.7}\n\n")
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	})
	mux.HandleFunc("/v1/ingest", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "node.mem", body["label"])
		fmt.Fprint(w, `{"id":"abc","label":"node.mem"}`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestStream_SnapshotThenWatch(t *testing.T) {
	srv := newFakeHub(t)
	c := NewPulseClient(srv.URL, "k")

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	ch, err := c.Stream(ctx, "node.")
	require.NoError(t, err)

	first := <-ch
	assert.Equal(t, "node.cpu", first.Label)
	assert.JSONEq(t, "0.5", string(first.Value))

	second := <-ch
	assert.JSONEq(t, "0.7", string(second.Value))

	v, ok := c.Latest("node.cpu")
	require.True(t, ok)
	assert.JSONEq(t, "0.7", string(v))

	cancel()
	for range ch {
	}
}

func TestStream_RejectedKey(t *testing.T) {
	srv := newFakeHub(t)
	c := NewPulseClient(srv.URL, "wrong")
	_, err := c.Stream(context.Background(), "node.")
	assert.ErrorIs(t, err, ErrUnexpectedStatus)
}

func TestPublish(t *testing.T) {
	srv := newFakeHub(t)
	c := NewPulseClient(srv.URL, "k")
	id, err := c.Publish(context.Background(), "node.mem", "bytes", 1024)
	require.NoError(t, err)
	assert.Equal(t, "abc", id)
}
