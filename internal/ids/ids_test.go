package ids

import (
	"strings"
	"testing"

	"renderfleet/internal/fleetfs"
)

func TestJobIDs(t *testing.T) {
	img, vid := ImageJob(), VideoJob()
	if !strings.HasPrefix(img, "job_img_") || !strings.HasPrefix(vid, "job_vid_") {
		t.Errorf("unexpected ids %q %q", img, vid)
	}
	for _, id := range []string{img, vid} {
		if err := fleetfs.ValidSegment(id); err != nil {
			t.Errorf("generated id %q is not a valid path segment: %v", id, err)
		}
	}
}
