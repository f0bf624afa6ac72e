package rtvi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// Offer is the SmallWebRTC offer request body.
type Offer struct {
	SDP       string `json:"sdp"`
	Type      string `json:"type"`
	PCID      string `json:"pc_id,omitempty"`
	RestartPC bool   `json:"restart_pc,omitempty"`
}

// Answer is the SmallWebRTC offer response body.
type Answer struct {
	SDP  string `json:"sdp"`
	Type string `json:"type"`
	PCID string `json:"pc_id"`
}

// defaultHTTPClient is shared for connection reuse.
var defaultHTTPClient = &http.Client{
	Timeout: 30 * time.Second,
}

// SendOffer posts the local offer to endpoint and returns the server's answer.
func SendOffer(ctx context.Context, hc *http.Client, endpoint string, offer Offer) (*Answer, error) {
	if hc == nil {
		hc = defaultHTTPClient
	}

	body, err := json.Marshal(offer)
	if err != nil {
		return nil, fmt.Errorf("marshal offer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		slog.Error("offer exchange failed", "status", resp.StatusCode, "body", string(data))
		return nil, fmt.Errorf("offer rejected (status %d): %s", resp.StatusCode, data)
	}

	var answer Answer
	if err := json.Unmarshal(data, &answer); err != nil {
		return nil, fmt.Errorf("decode answer: %w", err)
	}
	if answer.SDP == "" {
		return nil, fmt.Errorf("answer has no sdp")
	}
	return &answer, nil
}
