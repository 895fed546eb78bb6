package transcribe

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// name and type forwarded for media fetched by URL
const (
	downloadName        = "input.mp4"
	downloadContentType = "video/mp4"
)

// Download fetches media from a URL into memory. Any non-2xx status is an
// error carrying the status text.
func Download(ctx context.Context, client *http.Client, url string) (Media, error) {
	if strings.TrimSpace(url) == "" {
		return Media{}, ErrNoInput
	}
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Media{}, fmt.Errorf("Failed to download video: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return Media{}, fmt.Errorf("Failed to download video: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Media{}, fmt.Errorf("Failed to download video: %s", statusText(resp))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return Media{}, fmt.Errorf("Failed to download video: %w", err)
	}

	return Media{
		Name:        downloadName,
		ContentType: downloadContentType,
		Body:        bytes.NewReader(data),
	}, nil
}

func statusText(resp *http.Response) string {
	if text := http.StatusText(resp.StatusCode); text != "" {
		return text
	}
	return resp.Status
}
