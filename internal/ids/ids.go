// Package ids generates job identifiers.
package ids

import (
	"fmt"
	"time"
)

const (
	ImagePrefix = "job_img"
	VideoPrefix = "job_vid"
)

// NewID returns prefix_<unix nanos>.
func NewID(prefix string) string {
	return fmt.Sprintf("%s_%d", prefix, time.Now().UnixNano())
}

// ImageJob returns a fresh image job ID.
func ImageJob() string { return NewID(ImagePrefix) }

// VideoJob returns a fresh video job ID.
func VideoJob() string { return NewID(VideoPrefix) }
