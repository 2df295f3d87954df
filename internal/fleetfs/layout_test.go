package fleetfs

import (
	"path/filepath"
	"testing"
)

func TestNewLayoutRequiresAbsoluteRoot(t *testing.T) {
	if _, err := NewLayout("relative/root"); err == nil {
		t.Fatal("expected error for relative root")
	}
	l, err := NewLayout("/srv/renderfleet/sync/")
	if err != nil {
		t.Fatalf("NewLayout returned error: %v", err)
	}
	if l.Root() != "/srv/renderfleet/sync" {
		t.Errorf("expected cleaned root, got %q", l.Root())
	}
}

func TestLayoutPaths(t *testing.T) {
	l, _ := NewLayout("/sync")

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"image inbox", l.ImageInbox("worker001"), "/sync/image/assigned/worker001/inbox"},
		{"video inbox", l.VideoInbox("worker001"), "/sync/video/assigned/worker001/inbox"},
		{"image job", l.ImageJobFile("worker001", "job_img_1"), "/sync/image/assigned/worker001/inbox/job_img_1.txt"},
		{"video job", l.VideoJobDir("worker002", "job_vid_1"), "/sync/video/assigned/worker002/inbox/job_vid_1"},
		{"image outbox", l.ImageOutbox(), "/sync/image/outbox"},
		{"video outbox", l.Outbox(KindVideo), "/sync/video/outbox"},
		{"heartbeats", l.Heartbeats(), "/sync/heartbeats"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != filepath.FromSlash(tt.want) {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestValidSegment(t *testing.T) {
	tests := []struct {
		name  string
		input string
		ok    bool
	}{
		{"plain", "worker001", true},
		{"dots inside", "clip.v2.png", true},
		{"unicode", "Straße_01.jpg", true},
		{"empty", "", false},
		{"dot", ".", false},
		{"dotdot", "..", false},
		{"traversal", "../etc", false},
		{"slash", "a/b", false},
		{"backslash", `a\b`, false},
		{"nul", "a\x00b", false},
		{"leading space", " job", false},
		{"trailing newline", "job\n", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidSegment(tt.input)
			if (err == nil) != tt.ok {
				t.Errorf("ValidSegment(%q) error = %v, want ok=%v", tt.input, err, tt.ok)
			}
		})
	}
}

func TestReserved(t *testing.T) {
	for _, name := range []string{"prompts.json", "READY", "ready", "Ready", "PROMPTS.json", "Prompts.JSON"} {
		if !Reserved(name) {
			t.Errorf("expected %q to be reserved", name)
		}
	}
	if Reserved("ready.png") {
		t.Error("only the protocol names themselves are reserved")
	}
}
