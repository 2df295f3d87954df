// Package fleetfs describes the shared queue tree that the controller and
// the render workers exchange work through:
//
//	{root}/
//	├── image/assigned/{worker}/inbox/{job}.txt
//	├── image/outbox/{job}/{take}.png
//	├── video/assigned/{worker}/inbox/{job}/{asset...}, prompts.json, READY
//	├── video/outbox/
//	└── heartbeats/{worker}
//
// The controller writes only under assigned/. Workers own outbox/ and
// heartbeats/.
package fleetfs

import (
	"fmt"
	"path/filepath"
	"strings"
)

const (
	// ManifestFile maps asset names to prompts inside a video job directory.
	ManifestFile = "prompts.json"
	// ReadyFile is the zero-byte sentinel written last into a video job
	// directory. Workers must ignore a job directory until it exists.
	ReadyFile = "READY"
	// ImageJobExt is appended to the job ID of an image job file.
	ImageJobExt = ".txt"
)

// Kind selects the image or video half of the tree.
type Kind string

const (
	KindImage Kind = "image"
	KindVideo Kind = "video"
)

// Layout resolves paths under one root. The zero value is not usable.
type Layout struct {
	root string
}

// NewLayout returns a Layout for root, which must be absolute.
func NewLayout(root string) (Layout, error) {
	if !filepath.IsAbs(root) {
		return Layout{}, fmt.Errorf("fleetfs: root must be absolute, got %q", root)
	}
	return Layout{root: filepath.Clean(root)}, nil
}

// Root returns the base of the tree.
func (l Layout) Root() string { return l.root }

// Inbox is {root}/{kind}/assigned/{worker}/inbox.
func (l Layout) Inbox(kind Kind, workerID string) string {
	return filepath.Join(l.root, string(kind), "assigned", workerID, "inbox")
}

// ImageInbox is the inbox image jobs for workerID are written to.
func (l Layout) ImageInbox(workerID string) string { return l.Inbox(KindImage, workerID) }

// VideoInbox is the inbox video job directories for workerID are created in.
func (l Layout) VideoInbox(workerID string) string { return l.Inbox(KindVideo, workerID) }

// ImageJobFile is the prompt file of an image job.
func (l Layout) ImageJobFile(workerID, jobID string) string {
	return filepath.Join(l.ImageInbox(workerID), jobID+ImageJobExt)
}

// VideoJobDir is the directory of a video job.
func (l Layout) VideoJobDir(workerID, jobID string) string {
	return filepath.Join(l.VideoInbox(workerID), jobID)
}

// Outbox is {root}/{kind}/outbox.
func (l Layout) Outbox(kind Kind) string {
	return filepath.Join(l.root, string(kind), "outbox")
}

// ImageOutbox holds one directory per completed image batch.
func (l Layout) ImageOutbox() string { return l.Outbox(KindImage) }

// Heartbeats holds one status file per worker.
func (l Layout) Heartbeats() string {
	return filepath.Join(l.root, "heartbeats")
}

// ValidSegment checks that name can be used as exactly one path element:
// non-empty, not "." or "..", free of separators and NUL, and without
// surrounding whitespace.
func ValidSegment(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("must not be empty")
	case name == "." || name == "..":
		return fmt.Errorf("%q is not allowed", name)
	case strings.ContainsAny(name, `/\`):
		return fmt.Errorf("%q must not contain a path separator", name)
	case strings.ContainsRune(name, 0):
		return fmt.Errorf("%q must not contain NUL", name)
	case strings.TrimSpace(name) != name:
		return fmt.Errorf("%q must not have leading or trailing whitespace", name)
	}
	return nil
}

// Reserved reports names a video asset may not take because the protocol
// writes them itself. Case is ignored.
func Reserved(name string) bool {
	return strings.EqualFold(name, ManifestFile) || strings.EqualFold(name, ReadyFile)
}
