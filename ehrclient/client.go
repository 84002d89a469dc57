// Copyright 2026 Blaqmann
// SPDX-License-Identifier: Apache-2.0

// Package ehrclient implements the offline engine's RemoteStore contract
// over the ehrstore HTTP API.
package ehrclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/Blaqmann/ehr-system/offline"
)

// TokenFunc supplies the bearer token for each request.
type TokenFunc func(ctx context.Context) (string, error)

// Client talks to an ehrstore server. Requests fail fast on network trouble
// (short timeout) rather than hang; every failure is reported as an
// offline.RemoteError so the engine can classify it.
type Client struct {
	BaseURL string
	Token   TokenFunc
	HTTP    *http.Client
	logger  *slog.Logger
}

// New creates a store client for baseURL.
func New(baseURL string, token TokenFunc, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		BaseURL: baseURL,
		Token:   token,
		HTTP:    &http.Client{Timeout: 10 * time.Second},
		logger:  logger,
	}
}

type wireRecord struct {
	ID         string          `json:"id"`
	PatientID  string          `json:"patientId"`
	RecordType string          `json:"recordType"`
	Payload    json.RawMessage `json:"payload"`
	CreatedAt  time.Time       `json:"createdAt"`
}

// CreateRecord implements offline.RemoteStore.
func (c *Client) CreateRecord(ctx context.Context, patientID string, t offline.RecordType, payload offline.Payload) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", &offline.RemoteError{Op: "encode record payload", Err: err}
	}

	endpoint := fmt.Sprintf("%s/patients/%s/records/%s",
		c.BaseURL, url.PathEscape(patientID), t.String())
	respBody, err := c.do(ctx, http.MethodPost, endpoint, body, http.StatusCreated)
	if err != nil {
		return "", err
	}

	var resp struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return "", &offline.RemoteError{Op: "decode create response", Err: err}
	}
	return resp.ID, nil
}

// ListByPatient implements offline.RemoteStore.
func (c *Client) ListByPatient(ctx context.Context, patientID string, t offline.RecordType) ([]offline.RemoteRecord, error) {
	endpoint := fmt.Sprintf("%s/patients/%s/records/%s",
		c.BaseURL, url.PathEscape(patientID), t.String())
	respBody, err := c.do(ctx, http.MethodGet, endpoint, nil, http.StatusOK)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Records []wireRecord `json:"records"`
	}
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, &offline.RemoteError{Op: "decode list response", Err: err}
	}

	out := make([]offline.RemoteRecord, 0, len(resp.Records))
	for _, rec := range resp.Records {
		rt, err := offline.ParseRecordType(rec.RecordType)
		if err != nil {
			return nil, &offline.RemoteError{Op: "decode record type", Err: err}
		}
		var payload offline.Payload
		if err := json.Unmarshal(rec.Payload, &payload); err != nil {
			return nil, &offline.RemoteError{Op: "decode record payload", Err: err}
		}
		out = append(out, offline.RemoteRecord{
			ID:        rec.ID,
			PatientID: rec.PatientID,
			Type:      rt,
			Payload:   payload,
			CreatedAt: rec.CreatedAt,
		})
	}
	return out, nil
}

// UpdatePatientField implements offline.RemoteStore.
func (c *Client) UpdatePatientField(ctx context.Context, patientID, field string, value any) error {
	body, err := json.Marshal(map[string]any{"field": field, "value": value})
	if err != nil {
		return &offline.RemoteError{Op: "encode patient update", Err: err}
	}

	endpoint := c.BaseURL + "/patients/" + url.PathEscape(patientID)
	_, err = c.do(ctx, http.MethodPatch, endpoint, body, http.StatusNoContent)
	return err
}

// do performs one request and returns the response body. Any transport
// failure or unexpected status is a RemoteError.
func (c *Client) do(ctx context.Context, method, endpoint string, body []byte, wantStatus int) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, &offline.RemoteError{Op: "build request", Err: err}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if c.Token != nil {
		token, err := c.Token(ctx)
		if err != nil {
			return nil, &offline.RemoteError{Op: "acquire token", Err: err}
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, &offline.RemoteError{Op: method + " " + endpoint, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &offline.RemoteError{Op: "read response", Err: err}
	}
	if resp.StatusCode != wantStatus {
		return nil, &offline.RemoteError{
			Op:  method + " " + endpoint,
			Err: fmt.Errorf("server returned status %d: %s", resp.StatusCode, string(respBody)),
		}
	}
	return respBody, nil
}
