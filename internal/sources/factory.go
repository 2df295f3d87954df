package sources

import (
	"context"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	drive "google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	"renderfleet/internal/adapters/sources/gdrive"
	"renderfleet/internal/adapters/sources/localfs"
	"renderfleet/internal/adapters/sources/minio"
	"renderfleet/internal/config"
)

// FromConfig builds a Resolver with every provider cfg enables. Local
// references are confined to cfg.SourceRoot when it is set.
func FromConfig(ctx context.Context, cfg config.Config) (*Resolver, error) {
	r := NewResolver(localfs.New(cfg.SourceRoot))

	if cfg.GDrive.Enabled() {
		p, err := newGDriveProvider(ctx, cfg.GDrive)
		if err != nil {
			return nil, err
		}
		r.Register(p)
	}

	if cfg.MinIO.Enabled() {
		p, err := minio.Dial(cfg.MinIO.Endpoint, cfg.MinIO.AccessKey, cfg.MinIO.SecretKey, cfg.MinIO.UseSSL)
		if err != nil {
			return nil, err
		}
		r.Register(p)
	}

	return r, nil
}

func newGDriveProvider(ctx context.Context, gc config.GDriveConfig) (*gdrive.Client, error) {
	conf := &oauth2.Config{
		ClientID:     gc.ClientID,
		ClientSecret: gc.ClientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       []string{drive.DriveReadonlyScope},
	}

	httpClient := conf.Client(ctx, &oauth2.Token{RefreshToken: gc.RefreshToken})

	srv, err := drive.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, err
	}
	return gdrive.NewClient(srv), nil
}
