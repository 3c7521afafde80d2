// Package api talks to the web frontend (upload) and serves the local
// recording catalog over HTTP.
package api

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/OCAP2/mocap/pkg/core"
)

// Client handles communication with the web frontend.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// New creates a new API client.
func New(baseURL, apiKey string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 5 * time.Minute},
	}
}

// Healthcheck checks if the web frontend is reachable.
func (c *Client) Healthcheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthcheck", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("healthcheck request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("healthcheck returned status %d", resp.StatusCode)
	}
	return nil
}

// Upload sends an exported recording, and the session's video when videoPath
// is set, as one multipart request.
func (c *Client) Upload(ctx context.Context, filePath string, meta core.UploadMetadata, videoPath string) error {
	files := []formFile{{field: "file", path: filePath}}
	if videoPath != "" {
		files = append(files, formFile{field: "video", path: videoPath})
	}
	for _, f := range files {
		if _, err := os.Stat(f.path); err != nil {
			return fmt.Errorf("failed to open file: %w", err)
		}
	}

	pr, pw := io.Pipe()
	writer := multipart.NewWriter(pw)

	errCh := make(chan error, 1)
	go func() {
		err := writeForm(writer, c.apiKey, meta, files)
		if closeErr := writer.Close(); err == nil {
			err = closeErr
		}
		pw.CloseWithError(err)
		errCh <- err
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/recordings/add", pr)
	if err != nil {
		_ = pr.Close()
		<-errCh
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		_ = pr.Close()
		<-errCh
		return fmt.Errorf("upload request failed: %w", err)
	}
	defer resp.Body.Close()

	if writeErr := <-errCh; writeErr != nil {
		return writeErr
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("upload returned status %d", resp.StatusCode)
	}
	return nil
}

type formFile struct {
	field string
	path  string
}

func writeForm(w *multipart.Writer, apiKey string, meta core.UploadMetadata, files []formFile) error {
	fields := []struct{ k, v string }{
		{"secret", apiKey},
		{"filename", filepath.Base(files[0].path)},
		{"sessionId", meta.SessionID},
		{"duration", strconv.FormatFloat(meta.Duration, 'f', 3, 64)},
		{"frameCount", strconv.Itoa(meta.FrameCount)},
		{"tag", meta.Tag},
	}
	for _, f := range fields {
		if err := w.WriteField(f.k, f.v); err != nil {
			return fmt.Errorf("failed to write field %s: %w", f.k, err)
		}
	}

	for _, f := range files {
		if err := copyFile(w, f); err != nil {
			return err
		}
	}
	return nil
}

func copyFile(w *multipart.Writer, f formFile) error {
	file, err := os.Open(f.path)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	part, err := w.CreateFormFile(f.field, filepath.Base(f.path))
	if err != nil {
		return fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return fmt.Errorf("failed to copy file: %w", err)
	}
	return nil
}
