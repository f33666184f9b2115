package output

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/pv/sortmachine-go/internal/sorter"
)

type roundTripFunc func(req *http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func okResponse(req *http.Request, code int, body string) *http.Response {
	return &http.Response{
		StatusCode: code,
		Status:     http.StatusText(code),
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     make(http.Header),
		Request:    req,
	}
}

func TestHTTPClientPostsFrames(t *testing.T) {
	var captured []Frame
	var path, query string

	client := &HTTPClient{
		BaseURL: "http://example.com/render",
		Source:  "sortmachine",
		HTTP: &http.Client{
			Transport: roundTripFunc(func(req *http.Request) (*http.Response, error) {
				path = req.URL.Path
				query = req.URL.RawQuery
				if err := json.NewDecoder(req.Body).Decode(&captured); err != nil {
					return okResponse(req, http.StatusBadRequest, err.Error()), nil
				}
				return okResponse(req, http.StatusOK, "ok"), nil
			}),
		},
	}

	frame := Frame{Seq: 4, Kind: FrameSwap, Algorithm: sorter.NameComb, Swap: &sorter.Swap{A: 2, B: 5}}
	if err := client.Send(context.Background(), frame); err != nil {
		t.Fatalf("Send returned error: %v", err)
	}
	if path != "/render/frames" {
		t.Fatalf("unexpected path %s", path)
	}
	if query != "source=sortmachine" {
		t.Fatalf("unexpected query %s", query)
	}
	if len(captured) != 1 || captured[0].Swap == nil || *captured[0].Swap != (sorter.Swap{A: 2, B: 5}) {
		t.Fatalf("unexpected body: %+v", captured)
	}
	if calls, _ := client.Stats(); calls != 1 {
		t.Fatalf("Stats calls = %d, want 1", calls)
	}
}

func TestHTTPClientSkipsWaitFrames(t *testing.T) {
	client := &HTTPClient{
		BaseURL: "http://example.com",
		HTTP: &http.Client{
			Transport: roundTripFunc(func(req *http.Request) (*http.Response, error) {
				t.Fatalf("wait frame must not be sent")
				return nil, nil
			}),
		},
	}
	if err := client.Send(context.Background(), Frame{Kind: FrameWait, WaitMs: 80}); err != nil {
		t.Fatalf("Send returned error: %v", err)
	}
}

func TestHTTPClientErrorStatus(t *testing.T) {
	client := &HTTPClient{
		BaseURL: "http://example.com",
		HTTP: &http.Client{
			Transport: roundTripFunc(func(req *http.Request) (*http.Response, error) {
				return okResponse(req, http.StatusInternalServerError, "renderer down"), nil
			}),
		},
	}
	err := client.Send(context.Background(), Frame{Kind: FrameReset, Data: []int{0}})
	if err == nil || !strings.Contains(err.Error(), "renderer down") {
		t.Fatalf("expected error with body, got %v", err)
	}
}

func TestHTTPClientRequiresBaseURL(t *testing.T) {
	client := &HTTPClient{}
	if err := client.Send(context.Background(), Frame{Kind: FrameReset}); err == nil {
		t.Fatalf("expected error for empty BaseURL")
	}
}
