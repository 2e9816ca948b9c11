package requester

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// countingTransport records every request it sees and replies with a canned
// response.
type countingTransport struct {
	calls    int
	requests []*http.Request
	bodies   []string
	status   int
	body     string
}

func (c *countingTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	c.calls++
	c.requests = append(c.requests, r)
	body := ""
	if r.Body != nil {
		b, _ := io.ReadAll(r.Body)
		body = string(b)
	}
	c.bodies = append(c.bodies, body)

	status := c.status
	if status == 0 {
		status = http.StatusOK
	}
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(c.body)),
		Header:     make(http.Header),
	}, nil
}

// writeKeys populates a keys dir and points SNOWBANKER_KEYS_DIR at it.
func writeKeys(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"alpaca_paper_api.key":    "PAPERKEY",
		"alpaca_paper_secret.key": "PAPERSECRET",
		"alpaca_live_api.key":     "LIVEKEY",
		"alpaca_live_secret.key":  "LIVESECRET",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content+"\n"), 0o600); err != nil {
			t.Fatal(err)
		}
	}
	t.Setenv("SNOWBANKER_KEYS_DIR", dir)
}

func TestRunNoArgsIsUsage(t *testing.T) {
	rt := &countingTransport{}
	err := Run(context.Background(), nil, Options{Transport: rt, Out: io.Discard})
	if !errors.Is(err, ErrUsage) {
		t.Fatalf("expected ErrUsage, got %v", err)
	}
	if rt.calls != 0 {
		t.Errorf("expected no HTTP calls, got %d", rt.calls)
	}
}

func TestRunBadTokenIsUsage(t *testing.T) {
	rt := &countingTransport{}
	err := Run(context.Background(), []string{"prod"}, Options{Transport: rt, Out: io.Discard})
	if !errors.Is(err, ErrUsage) {
		t.Fatalf("expected ErrUsage, got %v", err)
	}
	if rt.calls != 0 {
		t.Errorf("expected no HTTP calls, got %d", rt.calls)
	}
}

func TestRunMissingCredentialsNoNetwork(t *testing.T) {
	t.Setenv("SNOWBANKER_KEYS_DIR", t.TempDir())

	rt := &countingTransport{}
	err := Run(context.Background(), []string{"paper"}, Options{Transport: rt, Out: io.Discard})
	if !errors.Is(err, ErrConfig) {
		t.Fatalf("expected ErrConfig, got %v", err)
	}
	if rt.calls != 0 {
		t.Errorf("expected no HTTP calls before credentials load, got %d", rt.calls)
	}
}

func TestRunDefaults(t *testing.T) {
	writeKeys(t)

	rt := &countingTransport{body: `{"status": "ACTIVE", "cash": "100"}`}
	var out bytes.Buffer
	err := Run(context.Background(), []string{"paper"}, Options{Transport: rt, Out: &out})
	if err != nil {
		t.Fatal(err)
	}

	if rt.calls != 1 {
		t.Fatalf("expected exactly one HTTP call, got %d", rt.calls)
	}
	req := rt.requests[0]
	if req.Method != http.MethodGet {
		t.Errorf("expected default method GET, got %s", req.Method)
	}
	if req.URL.Path != "/v2/account" {
		t.Errorf("expected default endpoint /v2/account, got %s", req.URL.Path)
	}
	if req.URL.Host != "paper-api.alpaca.markets" {
		t.Errorf("expected paper host, got %s", req.URL.Host)
	}
	if req.Header.Get("APCA-API-KEY-ID") != "PAPERKEY" {
		t.Errorf("missing key id header, got %q", req.Header.Get("APCA-API-KEY-ID"))
	}
	if req.Header.Get("APCA-API-SECRET-KEY") != "PAPERSECRET" {
		t.Errorf("missing secret header, got %q", req.Header.Get("APCA-API-SECRET-KEY"))
	}

	// response is pretty-printed with 4-space indentation
	if !strings.Contains(out.String(), "    \"status\": \"ACTIVE\"") {
		t.Errorf("expected indented JSON output, got:\n%s", out.String())
	}
}

func TestRunLiveProfileUsesLiveKeys(t *testing.T) {
	writeKeys(t)

	rt := &countingTransport{body: `{}`}
	err := Run(context.Background(), []string{"l"}, Options{Transport: rt, Out: io.Discard})
	if err != nil {
		t.Fatal(err)
	}
	req := rt.requests[0]
	if req.URL.Host != "api.alpaca.markets" {
		t.Errorf("expected live host, got %s", req.URL.Host)
	}
	if req.Header.Get("APCA-API-KEY-ID") != "LIVEKEY" {
		t.Errorf("expected live key, got %q", req.Header.Get("APCA-API-KEY-ID"))
	}
}

func TestRunExplicitEndpointMethodAndBody(t *testing.T) {
	writeKeys(t)

	rt := &countingTransport{body: `{"id": "o-1"}`}
	args := []string{"p", "/v2/orders", "post", `{"symbol":"VTI"}`}
	err := Run(context.Background(), args, Options{Transport: rt, Out: io.Discard})
	if err != nil {
		t.Fatal(err)
	}

	req := rt.requests[0]
	if req.Method != http.MethodPost {
		t.Errorf("expected method uppercased to POST, got %s", req.Method)
	}
	if req.URL.Path != "/v2/orders" {
		t.Errorf("expected /v2/orders, got %s", req.URL.Path)
	}
	if rt.bodies[0] != `{"symbol":"VTI"}` {
		t.Errorf("expected body forwarded verbatim, got %q", rt.bodies[0])
	}
}

func TestRunNonJSONResponse(t *testing.T) {
	writeKeys(t)

	rt := &countingTransport{body: `<html>not json</html>`}
	err := Run(context.Background(), []string{"paper"}, Options{Transport: rt, Out: io.Discard})
	if !errors.Is(err, ErrResponseFormat) {
		t.Fatalf("expected ErrResponseFormat, got %v", err)
	}
}

func TestRunErrorStatusStillRendered(t *testing.T) {
	writeKeys(t)

	// the requester reports whatever the server said, it does not interpret
	// status codes
	rt := &countingTransport{status: 403, body: `{"message": "forbidden"}`}
	var out bytes.Buffer
	err := Run(context.Background(), []string{"paper"}, Options{Transport: rt, Out: &out})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "forbidden") {
		t.Errorf("expected the error body printed, got:\n%s", out.String())
	}
}

func TestRunStagingFilesRemoved(t *testing.T) {
	writeKeys(t)
	tmp := t.TempDir()
	t.Setenv("TMPDIR", tmp)

	rt := &countingTransport{body: `{"ok": true}`}
	args := []string{"paper", "/v2/orders", "POST", `{"symbol":"VTI"}`}
	if err := Run(context.Background(), args, Options{Transport: rt, Out: io.Discard}); err != nil {
		t.Fatal(err)
	}

	entries, err := os.ReadDir(tmp)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "requester-") {
			t.Errorf("staging file left behind: %s", e.Name())
		}
	}
}

func TestRunStagingFilesRemovedOnFormatError(t *testing.T) {
	writeKeys(t)
	tmp := t.TempDir()
	t.Setenv("TMPDIR", tmp)

	rt := &countingTransport{body: `not json`}
	args := []string{"paper", "/v2/orders", "POST", `{"symbol":"VTI"}`}
	err := Run(context.Background(), args, Options{Transport: rt, Out: io.Discard})
	if !errors.Is(err, ErrResponseFormat) {
		t.Fatalf("expected ErrResponseFormat, got %v", err)
	}

	entries, readErr := os.ReadDir(tmp)
	if readErr != nil {
		t.Fatal(readErr)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "requester-") {
			t.Errorf("staging file left behind: %s", e.Name())
		}
	}
}
