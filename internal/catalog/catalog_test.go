package catalog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultCatalogIsValid(t *testing.T) {
	cat, err := Default()
	if err != nil {
		t.Fatalf("Default returned error: %v", err)
	}

	if len(cat.Channels) != 4 {
		t.Fatalf("expected 4 required channels, got %d", len(cat.Channels))
	}
	if cat.Channels[0].ID != -1003053807994 {
		t.Fatalf("expected first channel to keep its order, got %d", cat.Channels[0].ID)
	}
	if len(cat.Movies) != 12 {
		t.Fatalf("expected 12 movies, got %d", len(cat.Movies))
	}
	if _, ref, ok := cat.Movies.Lookup("2015"); !ok || !strings.HasPrefix(ref, "BAAC") {
		t.Fatalf("expected 2015 to resolve to a file id, got %q ok=%v", ref, ok)
	}
}

func TestLoadReadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	doc := []byte(`
channels:
  - id: -100
    link: https://t.me/+abc
movies:
  "0001": file-1
`)
	if err := os.WriteFile(path, doc, 0o644); err != nil {
		t.Fatalf("write catalog: %v", err)
	}

	cat, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cat.Movies["0001"] != "file-1" {
		t.Fatalf("expected code 0001 to keep leading zeros, got %v", cat.Movies)
	}
	if cat.Channels[0].Label() != "https://t.me/+abc" {
		t.Fatalf("expected label to fall back to link, got %s", cat.Channels[0].Label())
	}
}

func TestLoadEmptyPathUsesDefault(t *testing.T) {
	cat, err := Load("  ")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if len(cat.Movies) == 0 {
		t.Fatalf("expected built-in movies")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatalf("expected error for missing catalog file")
	}
}

func TestParseRejectsInvalidDocuments(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{name: "malformed", doc: "channels: [", want: "parse catalog"},
		{name: "no channels", doc: "movies: {\"1\": a}", want: "at least one channel"},
		{name: "channel without id", doc: "channels: [{link: x}]\nmovies: {\"1\": a}", want: "has no id"},
		{name: "duplicate channel", doc: "channels: [{id: 1, link: x}, {id: 1, link: y}]\nmovies: {\"1\": a}", want: "listed twice"},
		{name: "channel without link", doc: "channels: [{id: 1}]\nmovies: {\"1\": a}", want: "no invite link"},
		{name: "no movies", doc: "channels: [{id: 1, link: x}]", want: "at least one movie"},
		{name: "padded code", doc: "channels: [{id: 1, link: x}]\nmovies: {\" 1\": a}", want: "surrounding spaces"},
		{name: "empty file ref", doc: "channels: [{id: 1, link: x}]\nmovies: {\"1\": \"\"}", want: "no file reference"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			if err == nil {
				t.Fatalf("expected error containing %q", tt.want)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}
