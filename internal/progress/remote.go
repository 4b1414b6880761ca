package progress

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

const (
	pathProgress = "/api/progress"
	pathSession  = "/api/progress/session"
	pathWizard   = "/api/progress/wizard"

	userIDHeader = "X-User-ID"
)

// RemoteClient talks to the persistence endpoints over HTTP, keyed by the
// opaque user id the auth layer resolved. Reads return nil on any failure
// and writes are fire-and-forget: durability is best-effort by contract.
type RemoteClient struct {
	baseURL string
	userID  string
	client  *http.Client
}

// NewRemoteClient creates a client for one user against the given base URL.
func NewRemoteClient(baseURL, userID string) *RemoteClient {
	return &RemoteClient{
		baseURL: baseURL,
		userID:  userID,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// FetchProgress returns the remote progress record, or nil on any non-2xx
// status or network failure.
func (c *RemoteClient) FetchProgress(ctx context.Context) *ProgressRecord {
	var rec ProgressRecord
	if !c.get(ctx, pathProgress, &rec) {
		return nil
	}
	return &rec
}

// SaveProgress writes the progress record. Failures are logged, never
// propagated.
func (c *RemoteClient) SaveProgress(ctx context.Context, state *State) {
	if state == nil {
		return
	}
	c.put(ctx, pathProgress, state.ToWire())
}

// FetchSession returns the remote session position, or nil on failure.
func (c *RemoteClient) FetchSession(ctx context.Context) *SessionRecord {
	var rec SessionRecord
	if !c.get(ctx, pathSession, &rec) {
		return nil
	}
	return &rec
}

// SaveSession writes the session position; empty ids persist as nulls.
func (c *RemoteClient) SaveSession(ctx context.Context, activeScenarioID, currentStepID string) {
	c.put(ctx, pathSession, NewSessionRecord(activeScenarioID, currentStepID))
}

// FetchWizard returns the remote wizard blob, or nil on failure.
func (c *RemoteClient) FetchWizard(ctx context.Context) *WizardRecord {
	var rec WizardRecord
	if !c.get(ctx, pathWizard, &rec) {
		return nil
	}
	return &rec
}

// SaveWizard forwards the opaque wizard blob.
func (c *RemoteClient) SaveWizard(ctx context.Context, blob json.RawMessage) {
	c.put(ctx, pathWizard, &WizardRecord{WizardData: blob})
}

func (c *RemoteClient) get(ctx context.Context, path string, out any) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return false
	}
	req.Header.Set(userIDHeader, c.userID)

	resp, err := c.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return false
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return false
	}
	return json.Unmarshal(body, out) == nil
}

func (c *RemoteClient) put(ctx context.Context, path string, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		slog.Warn("remote save failed", "path", path, "error", err)
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		slog.Warn("remote save failed", "path", path, "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(userIDHeader, c.userID)

	resp, err := c.client.Do(req)
	if err != nil {
		slog.Warn("remote save failed", "path", path, "error", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		slog.Warn("remote save failed", "path", path, "error", fmt.Errorf("status %d", resp.StatusCode))
	}
}
