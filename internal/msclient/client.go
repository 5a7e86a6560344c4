// Package msclient is the model store's HTTP client, used by the game
// backend (to mint a session's modelKey at creation time) and the AI
// backend (to fetch, save, and release model weights). Grounded on the
// teacher's own http.Client-with-timeout idiom in internal/kick/service.go.
package msclient

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"tankarena/internal/msstore"
)

// DefaultTimeout is the per-request budget for model saves (§4.3:
// "a synchronous request with a 10s budget").
const DefaultTimeout = 10 * time.Second

// Client talks to a model store over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a model store client against baseURL (e.g. http://localhost:8090).
func New(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: DefaultTimeout},
	}
}

// allocateResponse mirrors the model store's GET /api/rl-allocate response
// shape, grounded on original_source/DeepRL/backend/server.py's allocate
// handler ({"modelKey", "isNew", "copiedFrom"}).
type allocateResponse struct {
	ModelKey   string `json:"modelKey"`
	IsNew      bool   `json:"isNew"`
	CopiedFrom string `json:"copiedFrom,omitempty"`
}

// Allocate implements the gbe.ModelAllocator interface.
func (c *Client) Allocate(mapKey, baseKey string) (modelKey string, isNew bool, err error) {
	key, isNew, _, err := c.AllocateFull(mapKey, baseKey)
	return key, isNew, err
}

// AllocateFull calls GET /api/rl-allocate/{mapKey}?baseKey= and returns the
// allocated modelKey, whether it was freshly minted (vs. reused from the
// free list), and the key it was cloned from, if any (§4.4).
func (c *Client) AllocateFull(mapKey, baseKey string) (modelKey string, isNew bool, clonedFromKey string, err error) {
	url := fmt.Sprintf("%s/api/rl-allocate/%s?baseKey=%s", c.baseURL, mapKey, baseKey)
	resp, err := c.http.Get(url)
	if err != nil {
		return "", false, "", fmt.Errorf("msclient: allocate: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", false, "", fmt.Errorf("msclient: allocate: status %d", resp.StatusCode)
	}
	var out allocateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", false, "", fmt.Errorf("msclient: decode allocate response: %w", err)
	}
	return out.ModelKey, out.IsNew, out.CopiedFrom, nil
}

// Release calls POST /api/rl-release/{mapKey} {modelKey} (§4.4). Failures
// are logged by the caller; there is no retry beyond the current attempt
// (mirrors the MS save failure policy of §7).
func (c *Client) Release(mapKey, modelKey string) error {
	body, _ := json.Marshal(map[string]string{"modelKey": modelKey})
	url := fmt.Sprintf("%s/api/rl-release/%s", c.baseURL, mapKey)
	resp, err := c.http.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("msclient: release: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("msclient: release: status %d", resp.StatusCode)
	}
	return nil
}

// GetModel calls GET /api/rl-model/{modelKey}. A 404 is reported as
// (_, false, nil) rather than an error, matching §4.4's "record or 404".
func (c *Client) GetModel(modelKey string) (msstore.Record, bool, error) {
	resp, err := c.http.Get(fmt.Sprintf("%s/api/rl-model/%s", c.baseURL, modelKey))
	if err != nil {
		return msstore.Record{}, false, fmt.Errorf("msclient: get model: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return msstore.Record{}, false, nil
	}
	if resp.StatusCode != http.StatusOK {
		return msstore.Record{}, false, fmt.Errorf("msclient: get model: status %d", resp.StatusCode)
	}
	var rec msstore.Record
	if err := json.NewDecoder(resp.Body).Decode(&rec); err != nil {
		return msstore.Record{}, false, fmt.Errorf("msclient: decode model: %w", err)
	}
	return rec, true, nil
}

// PutModel calls POST /api/rl-model/{modelKey}, upserting the record.
func (c *Client) PutModel(modelKey string, rec msstore.Record) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("msclient: encode model: %w", err)
	}
	resp, err := c.http.Post(fmt.Sprintf("%s/api/rl-model/%s", c.baseURL, modelKey), "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("msclient: put model: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("msclient: put model: status %d", resp.StatusCode)
	}
	return nil
}
