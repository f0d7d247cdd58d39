package scansource

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"sync"
	"time"

	"campus-access-backend/config"
)

// gatewayResponse models a reader gateway's poll response.
type gatewayResponse struct {
	Code int `json:"code"`
	Data struct {
		Cursor string        `json:"cursor"`
		Reads  []gatewayRead `json:"reads"`
	} `json:"data"`
}

type gatewayRead struct {
	UID    string `json:"uid"`
	ReadAt string `json:"read_at"`
}

// Hardware polls an NFC reader gateway over HTTP for new tag reads.
type Hardware struct {
	url      string
	headers  map[string]string
	interval time.Duration
	tz       *time.Location
	client   *http.Client
	now      func() time.Time

	mu     sync.Mutex
	cursor string
	loop   loop
}

// NewHardware creates a gateway poller for one reader. Timestamps without an
// offset are read in tz.
func NewHardware(cfg config.ReaderConfig, tz *time.Location) *Hardware {
	var transport http.RoundTripper = &http.Transport{}
	if cfg.HTTPProxy != "" {
		proxyURL, err := url.Parse(cfg.HTTPProxy)
		if err != nil {
			log.Printf("Warning: Invalid proxy URL %q: %v. Reader gateway will not use a proxy.", cfg.HTTPProxy, err)
		} else {
			transport = &http.Transport{Proxy: http.ProxyURL(proxyURL)}
		}
	}
	if tz == nil {
		tz = time.Local
	}
	interval := cfg.PollInterval
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	return &Hardware{
		url:      cfg.GatewayURL,
		headers:  cfg.GatewayHeaders,
		interval: interval,
		tz:       tz,
		client:   &http.Client{Transport: transport, Timeout: 10 * time.Second},
		now:      time.Now,
	}
}

func (h *Hardware) Name() string { return "hardware" }

// Available reports whether the gateway is configured and answers a poll.
func (h *Hardware) Available(ctx context.Context) bool {
	if h.url == "" {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if _, err := h.fetch(ctx, ""); err != nil {
		log.Printf("Reader gateway %s unavailable: %v", h.url, err)
		return false
	}
	return true
}

func (h *Hardware) Start(ctx context.Context, onTag func(Read)) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.loop.running() {
		return ErrRunning
	}
	if h.url == "" {
		return fmt.Errorf("reader gateway url is not configured")
	}
	log.Printf("Polling reader gateway %s every %s", h.url, h.interval)
	h.loop.start(ctx, func(ctx context.Context) {
		timer := time.NewTimer(0)
		defer timer.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-timer.C:
				for _, r := range h.PollOnce(ctx) {
					onTag(r)
				}
				timer.Reset(h.interval)
			}
		}
	})
	return nil
}

func (h *Hardware) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.loop.stop()
}

// PollOnce fetches the reads since the last cursor and advances it. Failed
// polls return nothing and leave the cursor untouched.
func (h *Hardware) PollOnce(ctx context.Context) []Read {
	resp, err := h.fetch(ctx, h.cursor)
	if err != nil {
		if ctx.Err() == nil {
			log.Printf("Error polling reader gateway: %v", err)
		}
		return nil
	}

	reads := make([]Read, 0, len(resp.Data.Reads))
	for _, gr := range resp.Data.Reads {
		if gr.UID == "" {
			continue
		}
		at, err := h.parseTimestamp(gr.ReadAt)
		if err != nil {
			log.Printf("Warning: could not parse read_at for tag %s: %v", gr.UID, err)
			continue
		}
		reads = append(reads, Read{TagUID: gr.UID, At: at})
	}
	if resp.Data.Cursor != "" {
		h.cursor = resp.Data.Cursor
	}
	return reads
}

// parseTimestamp accepts RFC 3339 or the gateway's local "2006-01-02 15:04:05".
// An empty value means the read just happened.
func (h *Hardware) parseTimestamp(ts string) (time.Time, error) {
	if ts == "" {
		return h.now(), nil
	}
	if t, err := time.Parse(time.RFC3339, ts); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation("2006-01-02 15:04:05", ts, h.tz)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse timestamp %q: %w", ts, err)
	}
	return t, nil
}

func (h *Hardware) fetch(ctx context.Context, cursor string) (*gatewayResponse, error) {
	u, err := url.Parse(h.url)
	if err != nil {
		return nil, fmt.Errorf("invalid gateway url: %w", err)
	}
	if cursor != "" {
		q := u.Query()
		q.Set("since", cursor)
		u.RawQuery = q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for key, value := range h.headers {
		req.Header.Set(key, value)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("received non-200 status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	var out gatewayResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if out.Code != 0 {
		return nil, fmt.Errorf("gateway returned error code %d", out.Code)
	}
	return &out, nil
}
