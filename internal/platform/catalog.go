package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"race-timing-ingest/internal/model"
)

// PullChipIndex fetches the participant directory for a race so a field
// device can resolve chips while disconnected. The snapshot is read-only for
// the session; a stale copy is acceptable because re-resolution is cheap.
func (c *Client) PullChipIndex(ctx context.Context, raceID int64) ([]model.ChipIndexEntry, error) {
	c.log.Info().Int64("race_id", raceID).Msg("Pulling chip index")

	url := fmt.Sprintf("%s%s?race_id=%d", c.cfg.PlatformAPI.BaseURL, c.cfg.PlatformAPI.ChipIndexEndpoint, raceID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	token, err := c.authManager.GetToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get auth token: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch chip index: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned status %d: %s", resp.StatusCode, string(body))
	}

	var entries []model.ChipIndexEntry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, fmt.Errorf("failed to decode chip index: %w", err)
	}

	c.log.Debug().Int("count", len(entries)).Msg("Received chip index entries")
	return entries, nil
}
