package manifest

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSetLastWriteWins(t *testing.T) {
	m := New()
	m.Set("clip1.png", "slow pan")
	m.Set("clip2.png", "zoom in")
	m.Set("clip1.png", "orbit")

	if m.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", m.Len())
	}
	if p, _ := m.Prompt("clip1.png"); p != "orbit" {
		t.Errorf("expected later prompt to win, got %q", p)
	}
	if got := strings.Join(m.Names(), ","); got != "clip1.png,clip2.png" {
		t.Errorf("unexpected names %s", got)
	}
}

func TestZeroValueUsable(t *testing.T) {
	var m Manifest
	m.Set("a.jpg", "x")
	if m.Len() != 1 {
		t.Fatal("zero manifest should accept entries")
	}

	var empty Manifest
	data, err := empty.Encode()
	if err != nil {
		t.Fatalf("Encode returned error: %v", err)
	}
	if strings.TrimSpace(string(data)) != "{}" {
		t.Errorf("expected empty object, got %q", data)
	}
}

func TestEncodeIsIndentedFlatObject(t *testing.T) {
	m := New()
	m.Set("b.png", `say "hi"`)
	m.Set("a.png", "Cinematic 4k, slow motion")

	data, err := m.Encode()
	if err != nil {
		t.Fatalf("Encode returned error: %v", err)
	}
	if !strings.Contains(string(data), "\n  \"a.png\": ") {
		t.Errorf("expected two-space indented output, got:\n%s", data)
	}

	var decoded map[string]string
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("output is not a flat string map: %v", err)
	}
	if decoded["b.png"] != `say "hi"` {
		t.Errorf("unexpected prompt %q", decoded["b.png"])
	}
}

func TestEncodeRejectsInvalidUTF8(t *testing.T) {
	m := New()
	m.Set("clip.png", "bad \xff bytes")

	_, err := m.Encode()
	var encErr *EncodeError
	if !errors.As(err, &encErr) {
		t.Fatalf("expected EncodeError, got %v", err)
	}
	if encErr.AssetName != "clip.png" {
		t.Errorf("expected failing asset to be named, got %q", encErr.AssetName)
	}
}

func TestReadRoundTrip(t *testing.T) {
	m := New()
	m.Set("shot_01.jpg", "dolly zoom")
	data, err := m.Encode()
	if err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(t.TempDir(), "prompts.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := Read(path)
	if err != nil {
		t.Fatalf("Read returned error: %v", err)
	}
	if p, ok := got.Prompt("shot_01.jpg"); !ok || p != "dolly zoom" {
		t.Errorf("unexpected prompt %q (ok=%v)", p, ok)
	}
	if _, err := Decode([]byte(`["not", "an", "object"]`)); err == nil {
		t.Error("expected decode error for a JSON array")
	}
}
