// Package platform is the HTTP client for the race platform: the event store
// field devices write readings into, the participant directory they pull
// chip assignments from, and the checkpoint-crossing detector the reimport
// trigger re-drives.
package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"race-timing-ingest/internal/config"
	"race-timing-ingest/internal/logger"
	"race-timing-ingest/internal/model"
	apperrors "race-timing-ingest/pkg/errors"
)

type Client struct {
	cfg         *config.Config
	httpClient  *http.Client
	authManager *AuthManager
	log         zerolog.Logger
}

func NewClient(cfg *config.Config) *Client {
	timeout := cfg.PlatformAPI.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		authManager: NewAuthManager(cfg),
		log:         logger.For("platform"),
	}
}

// Online probes the platform health endpoint with a short deadline. Capture
// sessions use it to decide between write-through and local queueing.
func (c *Client) Online(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, c.cfg.PlatformAPI.BaseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// SendReading writes a single captured reading through immediately and
// returns the server-assigned id.
func (c *Client) SendReading(ctx context.Context, reading model.TimingReading) (int64, error) {
	return c.sendSingle(ctx, c.cfg.PlatformAPI.ReadingsEndpoint, reading)
}

// SendStatusEvent writes a single race-status event; status events have
// their own endpoint and are never mixed with timing splits.
func (c *Client) SendStatusEvent(ctx context.Context, event model.TimingReading) (int64, error) {
	return c.sendSingle(ctx, c.cfg.PlatformAPI.StatusEventsEndpoint, event)
}

func (c *Client) sendSingle(ctx context.Context, endpoint string, reading model.TimingReading) (int64, error) {
	payload := model.ReadingRequest{RaceID: c.cfg.Capture.RaceID, Reading: reading}
	var resp model.ReadingResponse
	if err := c.postJSON(ctx, endpoint, payload, &resp); err != nil {
		return 0, err
	}
	return resp.ID, nil
}

// SendReadingBatch submits a device's pending readings as one bulk write,
// original capture timestamps preserved.
func (c *Client) SendReadingBatch(ctx context.Context, readings []model.TimingReading) (*model.BatchResponse, error) {
	return c.sendBatch(ctx, c.cfg.PlatformAPI.ReadingsEndpoint+"/bulk", readings)
}

func (c *Client) SendStatusBatch(ctx context.Context, events []model.TimingReading) (*model.BatchResponse, error) {
	return c.sendBatch(ctx, c.cfg.PlatformAPI.StatusEventsEndpoint+"/bulk", events)
}

func (c *Client) sendBatch(ctx context.Context, endpoint string, readings []model.TimingReading) (*model.BatchResponse, error) {
	if len(readings) == 0 {
		return nil, fmt.Errorf("empty reading batch")
	}

	c.log.Debug().Int("batch_size", len(readings)).Str("endpoint", endpoint).Msg("Sending reading batch")

	batch := model.ReadingBatch{RaceID: c.cfg.Capture.RaceID, Readings: readings}

	attempts := c.cfg.PlatformAPI.RetryAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		var resp model.BatchResponse
		err := c.postJSON(ctx, endpoint, batch, &resp)
		if err == nil {
			return &resp, nil
		}
		lastErr = err
		if !apperrors.IsRetryable(err) {
			return nil, err
		}
		if attempt < attempts {
			c.log.Warn().Err(err).Int("attempt", attempt).Msg("Batch send failed, retrying")
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt) * c.cfg.PlatformAPI.RetryDelay):
			}
		}
	}
	return nil, lastErr
}

// Reprocess asks the checkpoint-crossing detector to re-derive readings from
// the given raw gps samples.
func (c *Client) Reprocess(ctx context.Context, raceID int64, sampleIDs []int64, force bool) (*model.ReimportResult, error) {
	payload := map[string]interface{}{
		"race_id":         raceID,
		"sample_ids":      sampleIDs,
		"force_reprocess": force,
	}

	var result model.ReimportResult
	if err := c.postJSON(ctx, c.cfg.PlatformAPI.ReimportEndpoint, payload, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) postJSON(ctx context.Context, endpoint string, payload interface{}, out interface{}) error {
	token, err := c.authManager.GetToken(ctx)
	if err != nil {
		return apperrors.NewRetryableError(err, "failed to get auth token")
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	url := c.cfg.PlatformAPI.BaseURL + endpoint
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apperrors.NewRetryableError(err, "HTTP request failed")
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
		return nil
	case http.StatusUnauthorized:
		// Token might be expired, retry will refresh it
		return apperrors.NewRetryableError(fmt.Errorf("unauthorized"), "authentication failed")
	case http.StatusConflict:
		return apperrors.NewDuplicateError(fmt.Errorf("HTTP %d", resp.StatusCode))
	case http.StatusBadRequest:
		// Business logic error - don't retry
		return fmt.Errorf("platform rejected request: HTTP %d", resp.StatusCode)
	case http.StatusTooManyRequests, http.StatusServiceUnavailable:
		return apperrors.NewRetryableError(fmt.Errorf("service unavailable"), "platform unavailable")
	default:
		return apperrors.NewRetryableError(fmt.Errorf("HTTP %d", resp.StatusCode), "platform API error")
	}
}
