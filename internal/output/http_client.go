package output

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// HTTPClient публикует кадры POST-запросом в HTTP API рендерера (/frames).
// Кадры ожидания не отправляются: темп задаёт сам проигрыватель.
type HTTPClient struct {
	BaseURL string
	Source  string
	HTTP    *http.Client
	Logger  *log.Logger

	mu            sync.Mutex
	totalDuration time.Duration
	totalCalls    int64
}

// Send отправляет кадр в /frames.
func (c *HTTPClient) Send(ctx context.Context, frame Frame) error {
	if frame.Kind == FrameWait {
		return nil
	}
	return c.post(ctx, []Frame{frame})
}

func (c *HTTPClient) post(ctx context.Context, frames []Frame) error {
	if c == nil {
		return fmt.Errorf("http client: nil receiver")
	}
	if c.BaseURL == "" {
		return fmt.Errorf("http client: BaseURL is empty")
	}
	httpClient := c.HTTP
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	endpoint, err := joinURL(c.BaseURL, "/frames")
	if err != nil {
		return err
	}
	if c.Source != "" {
		endpoint += "?source=" + url.QueryEscape(c.Source)
	}
	body, err := json.Marshal(frames)
	if err != nil {
		return fmt.Errorf("http client: encode frames: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("http client: new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := httpClient.Do(req)
	if err != nil {
		if c.Logger != nil {
			c.Logger.Printf("renderer error: %v (elapsed %s)", err, time.Since(start))
		}
		return fmt.Errorf("http client: do request: %w", err)
	}
	defer resp.Body.Close()

	elapsed := time.Since(start)
	c.mu.Lock()
	c.totalDuration += elapsed
	c.totalCalls++
	if c.Logger != nil {
		avg := time.Duration(int64(c.totalDuration) / c.totalCalls)
		c.Logger.Printf("POST %s -> %s (%s, avg %s over %d calls)",
			req.URL.String(), resp.Status, elapsed, avg, c.totalCalls)
	}
	c.mu.Unlock()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		if c.Logger != nil {
			c.Logger.Printf("renderer error body: %s", strings.TrimSpace(string(msg)))
		}
		return fmt.Errorf("http client: /frames failed: status=%s body=%s", resp.Status, strings.TrimSpace(string(msg)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// Stats возвращает число запросов и среднюю задержку.
func (c *HTTPClient) Stats() (int64, time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.totalCalls == 0 {
		return 0, 0
	}
	return c.totalCalls, time.Duration(int64(c.totalDuration) / c.totalCalls)
}

func joinURL(base, path string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("http client: parse base URL: %w", err)
	}
	joined, err := url.JoinPath(u.String(), path)
	if err != nil {
		return "", fmt.Errorf("http client: join path: %w", err)
	}
	return joined, nil
}
