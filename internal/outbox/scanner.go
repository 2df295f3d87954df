// Package outbox lists the image batches workers publish under
// {root}/image/outbox for operator review.
package outbox

import (
	"context"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"renderfleet/internal/fleetfs"
	"renderfleet/internal/pkg/errors"
	"renderfleet/internal/pkg/logger"
)

var imageExts = map[string]bool{".png": true, ".jpg": true, ".jpeg": true}

// IsImage reports whether name has a reviewable image extension.
func IsImage(name string) bool {
	return imageExts[strings.ToLower(filepath.Ext(name))]
}

// Scanner reads the image outbox. Listings are best effort: unreadable
// directories yield empty results rather than errors.
type Scanner struct {
	dir string
	log *logger.Logger
}

// NewScanner returns a Scanner for layout.
func NewScanner(layout fleetfs.Layout, log *logger.Logger) *Scanner {
	if log == nil {
		log = logger.NewDiscard()
	}
	return &Scanner{dir: layout.ImageOutbox(), log: log.WithComponent("outbox")}
}

// Jobs returns the names of the job directories in the outbox, sorted.
// Hidden entries, plain files and symlinks are excluded.
func (s *Scanner) Jobs(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		s.log.FromContext(ctx).Debug("outbox unreadable", "path", s.dir, "error", err)
		return []string{}, nil
	}

	jobs := make([]string, 0, len(entries))
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".") || !e.IsDir() {
			continue
		}
		jobs = append(jobs, e.Name())
	}
	sort.Strings(jobs)
	return jobs, nil
}

// Images returns the full paths of the png/jpg/jpeg files in jobName,
// sorted lexicographically.
func (s *Scanner) Images(ctx context.Context, jobName string) ([]string, error) {
	const op = "outbox.images"
	if err := fleetfs.ValidSegment(jobName); err != nil {
		return nil, invalid(op, "job_name", err)
	}

	dir := filepath.Join(s.dir, jobName)
	entries, err := os.ReadDir(dir)
	if err != nil {
		s.log.FromContext(ctx).Debug("outbox job unreadable", "path", dir, "error", err)
		return []string{}, nil
	}

	images := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, ".") || !e.Type().IsRegular() || !IsImage(name) {
			continue
		}
		images = append(images, filepath.Join(dir, name))
	}
	sort.Strings(images)
	return images, nil
}

// OpenImage opens one image of jobName. Names that Images would not list
// are reported as not found.
func (s *Scanner) OpenImage(ctx context.Context, jobName, fileName string) (io.ReadCloser, string, int64, error) {
	const op = "outbox.open_image"
	if err := fleetfs.ValidSegment(jobName); err != nil {
		return nil, "", 0, invalid(op, "job_name", err)
	}
	if err := fleetfs.ValidSegment(fileName); err != nil {
		return nil, "", 0, invalid(op, "file_name", err)
	}
	if strings.HasPrefix(fileName, ".") || !IsImage(fileName) {
		return nil, "", 0, errors.NotFound("image", jobName+"/"+fileName)
	}

	path := filepath.Join(s.dir, jobName, fileName)
	info, err := os.Lstat(path)
	if err != nil || !info.Mode().IsRegular() {
		return nil, "", 0, errors.NotFound("image", jobName+"/"+fileName)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, "", 0, errors.WrapWithCode(err, errors.CodeIO, op, "open image")
	}

	contentType := mime.TypeByExtension(strings.ToLower(filepath.Ext(fileName)))
	if contentType == "" {
		contentType, err = sniff(f)
		if err != nil {
			f.Close()
			return nil, "", 0, errors.WrapWithCode(err, errors.CodeIO, op, "read image")
		}
	}

	s.log.FromContext(ctx).Debug("serving outbox image", "path", path, "bytes", info.Size())
	return f, contentType, info.Size(), nil
}

func sniff(f *os.File) (string, error) {
	buf := make([]byte, 512)
	n, err := f.Read(buf)
	if err != nil && err != io.EOF {
		return "", err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return "", err
	}
	return http.DetectContentType(buf[:n]), nil
}

func invalid(op, field string, cause error) error {
	e := errors.ValidationField(field, "invalid "+strings.ReplaceAll(field, "_", " ")+": "+cause.Error())
	e.Op = op
	return e
}
