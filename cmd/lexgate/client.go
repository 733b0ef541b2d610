// Copyright (C) 2025 LexGate Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

// apiClient is a thin JSON client for the scorer server.
type apiClient struct {
	baseURL string
	token   string
	http    *http.Client
}

func newAPIClient() *apiClient {
	base := serverURL
	if base == "" {
		base = os.Getenv("LEXGATE_SERVER_URL")
	}
	if base == "" {
		base = "http://localhost:12310"
	}
	token := apiToken
	if token == "" {
		token = os.Getenv("LEXGATE_API_TOKEN")
	}
	return &apiClient{
		baseURL: strings.TrimRight(base, "/"),
		token:   token,
		// Evaluations wait on the LLM judge; keep this generous.
		http: &http.Client{Timeout: 5 * time.Minute},
	}
}

// do issues one request and decodes the JSON response into out.
func (c *apiClient) do(method, path string, query url.Values, body, out any) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, endpoint, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s (HTTP %d)", apiErr.Error, resp.StatusCode)
		}
		return fmt.Errorf("HTTP %d from %s", resp.StatusCode, endpoint)
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(data, out)
}
