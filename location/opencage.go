package location

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
)

// OpenCage reverse-geocodes through the OpenCage JSON API.
type OpenCage struct {
	baseURL string
	key     string
	client  *http.Client
}

func NewOpenCage(baseURL, key string, client *http.Client) *OpenCage {
	if client == nil {
		client = http.DefaultClient
	}
	return &OpenCage{baseURL: baseURL, key: key, client: client}
}

type openCageResp struct {
	Results []struct {
		Formatted string `json:"formatted"`
	} `json:"results"`
}

func (g *OpenCage) Reverse(ctx context.Context, lat, lng float64) (string, error) {
	q := url.Values{}
	q.Set("q", strconv.FormatFloat(lat, 'f', -1, 64)+","+strconv.FormatFloat(lng, 'f', -1, 64))
	q.Set("key", g.key)
	q.Set("limit", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return "", err
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("geocode request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("geocode status %d: %s", resp.StatusCode, body)
	}

	var out openCageResp
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("geocode decode: %w", err)
	}
	if len(out.Results) == 0 || out.Results[0].Formatted == "" {
		return "", errors.New("geocode: no results")
	}
	return out.Results[0].Formatted, nil
}
