package i18n

import (
	"strings"
	"testing"
	"testing/fstest"
)

func TestEmbeddedLocalesShareKeys(t *testing.T) {
	uz, err := NewTranslator(LocalesFS, "uz")
	if err != nil {
		t.Fatalf("load uz: %v", err)
	}
	en, err := NewTranslator(LocalesFS, "en")
	if err != nil {
		t.Fatalf("load en: %v", err)
	}

	if len(uz.translations) != len(en.translations) {
		t.Fatalf("expected locales to have the same number of keys, uz=%d en=%d", len(uz.translations), len(en.translations))
	}
	for key := range uz.translations {
		if _, ok := en.translations[key]; !ok {
			t.Fatalf("key %s missing from en locale", key)
		}
	}
}

func TestTFormatsAndFallsBack(t *testing.T) {
	fsys := fstest.MapFS{
		"locales/xx.yaml": &fstest.MapFile{Data: []byte("greet: \"hi %s\"\nplain: hello\n")},
	}

	tr, err := NewTranslator(fsys, "xx")
	if err != nil {
		t.Fatalf("NewTranslator returned error: %v", err)
	}

	if got := tr.T("greet", "Ali"); got != "hi Ali" {
		t.Fatalf("expected formatted text, got %q", got)
	}
	if got := tr.T("plain"); got != "hello" {
		t.Fatalf("expected plain text, got %q", got)
	}
	if got := tr.T("missing_key"); got != "missing_key" {
		t.Fatalf("expected key fallback, got %q", got)
	}
}

func TestNewTranslatorErrors(t *testing.T) {
	if _, err := NewTranslator(LocalesFS, "fr"); err == nil {
		t.Fatalf("expected error for unknown language")
	}

	fsys := fstest.MapFS{
		"locales/bad.yaml": &fstest.MapFile{Data: []byte("- not\n- a map\n")},
	}
	_, err := NewTranslator(fsys, "bad")
	if err == nil || !strings.Contains(err.Error(), "parse translation file") {
		t.Fatalf("expected parse error, got %v", err)
	}
}
