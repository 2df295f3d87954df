package gdrive

import (
	"context"
	"fmt"
	"io"

	"google.golang.org/api/drive/v3"
)

// Client implements ports.SourceProvider backed by Google Drive. Keys are
// Drive file IDs, so a task source of gdrive://1AbC... downloads that file.
type Client struct {
	srv *drive.Service
}

func NewClient(srv *drive.Service) *Client {
	return &Client{srv: srv}
}

func (c *Client) Provider() string { return "gdrive" }

func (c *Client) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	if key == "" {
		return nil, fmt.Errorf("gdrive file id is required")
	}

	resp, err := c.srv.Files.Get(key).
		SupportsAllDrives(true).
		Context(ctx).
		Download()
	if err != nil {
		return nil, fmt.Errorf("gdrive download %s: %w", key, err)
	}
	return resp.Body, nil
}

// Name returns the Drive file name of key, which carries the extension the
// bare file ID lacks.
func (c *Client) Name(ctx context.Context, key string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("gdrive file id is required")
	}

	f, err := c.srv.Files.Get(key).
		SupportsAllDrives(true).
		Fields("name").
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("gdrive lookup %s: %w", key, err)
	}
	return f.Name, nil
}
