package client

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/copperline/beacon/internal/model"
)

// Stream opens the push channel for a site and returns a channel of event
// windows (each most-recent-first, as sent by the server). The channel is
// closed when the connection drops or ctx is cancelled; the caller decides
// whether to reconnect. Call cancel to close the connection and release the
// reader goroutine.
func (c *Client) Stream(ctx context.Context, siteID, apiKey string, limit int) (<-chan []*model.Event, func(), error) {
	q := url.Values{}
	q.Set("site_id", siteID)
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}

	streamCtx, cancel := context.WithCancel(ctx)
	req, err := http.NewRequestWithContext(streamCtx, http.MethodGet, c.baseURL+"/v1/events/stream?"+q.Encode(), nil)
	if err != nil {
		cancel()
		return nil, nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		cancel()
		return nil, nil, fmt.Errorf("open stream: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		cancel()
		return nil, nil, &apiError{StatusCode: resp.StatusCode, Message: "opening event stream"}
	}

	ch := make(chan []*model.Event, 8)
	go func() {
		defer close(ch)
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := scanner.Text()
			// Keepalive comments and field lines other than data are skipped;
			// each window arrives as a single data line.
			if !strings.HasPrefix(line, "data:") {
				continue
			}
			payload := strings.TrimPrefix(line, "data:")
			var window []*model.Event
			if err := json.Unmarshal([]byte(payload), &window); err != nil {
				continue
			}
			select {
			case ch <- window:
			case <-streamCtx.Done():
				return
			}
		}
	}()

	return ch, cancel, nil
}
