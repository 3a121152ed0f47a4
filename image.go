package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
)

// NasaImage holds the Astronomy Picture of the Day fields the client
// renders. A room created while the upstream API is down carries a nil
// image, and the client falls back to a placeholder pattern.
type NasaImage struct {
	URL         string `json:"url"`
	Title       string `json:"title"`
	Explanation string `json:"explanation"`
	Date        string `json:"date"`
}

// ImageProvider is the picture-of-the-day dependency. One blocking call
// per room creation or restart.
type ImageProvider interface {
	FetchImage(ctx context.Context) (*NasaImage, error)
}

type apodClient struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

func newAPODClient(cfg *Config) *apodClient {
	return &apodClient{
		endpoint: cfg.apodURL,
		apiKey:   cfg.apodKey,
		client: &http.Client{
			Timeout: cfg.apodTimeout,
		},
	}
}

func (a *apodClient) FetchImage(ctx context.Context) (*NasaImage, error) {
	target := a.endpoint + "?api_key=" + url.QueryEscape(a.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("apod: unexpected status %d", resp.StatusCode)
	}

	var image NasaImage
	if err := json.NewDecoder(resp.Body).Decode(&image); err != nil {
		return nil, err
	}
	if image.URL == "" {
		return nil, errors.New("apod: response missing image url")
	}

	return &image, nil
}

// fetchImage wraps a provider call with the degraded-creation policy:
// failures are logged and yield a nil image rather than failing the
// room command.
func fetchImage(cfg *Config, provider ImageProvider) *NasaImage {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.apodTimeout)
	defer cancel()

	image, err := provider.FetchImage(ctx)
	if err != nil {
		logf(cfg, "APOD: Fetch failed, proceeding without image: %v", err)
		return nil
	}

	logf(cfg, "APOD: Fetched %q (%s)", image.Title, image.Date)

	return image
}

var _ ImageProvider = (*apodClient)(nil)

// imageProviderFunc adapts a bare function, mostly for tests.
type imageProviderFunc func(ctx context.Context) (*NasaImage, error)

func (f imageProviderFunc) FetchImage(ctx context.Context) (*NasaImage, error) {
	return f(ctx)
}
