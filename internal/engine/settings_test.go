package engine_test

import (
	"reflect"
	"testing"

	"github.com/adverant/nexus/ocr-worker/internal/config"
	"github.com/adverant/nexus/ocr-worker/internal/engine"
)

func TestEngineModeValue(t *testing.T) {
	tests := map[string]string{
		config.EngineModeTesseractOnly: "0",
		config.EngineModeLSTMOnly:      "1",
		config.EngineModeCombined:      "2",
		config.EngineModeDefault:       "3",
		"bogus":                        "3",
	}
	for mode, want := range tests {
		if got := engine.EngineModeValue(mode); got != want {
			t.Errorf("EngineModeValue(%q) = %q, want %q", mode, got, want)
		}
	}
}

func TestSettingsFor(t *testing.T) {
	cfg := config.Default()

	fra := engine.SettingsFor(cfg, "fra+eng")
	if fra.Whitelist != engine.FrenchWhitelist {
		t.Errorf("French tag should get the accented whitelist, got %q", fra.Whitelist)
	}
	if fra.PageSegMode != 6 || fra.EngineMode != "2" || fra.DPI != 300 || !fra.PreserveInterwordSpaces {
		t.Errorf("unexpected settings %+v", fra)
	}

	if eng := engine.SettingsFor(cfg, "eng"); eng.Whitelist != "" {
		t.Errorf("English tag should have no whitelist, got %q", eng.Whitelist)
	}

	cfg.Whitelist = "0123456789"
	if got := engine.SettingsFor(cfg, "fra").Whitelist; got != "0123456789" {
		t.Errorf("explicit whitelist must win, got %q", got)
	}
}

func TestSplitLanguages(t *testing.T) {
	tests := []struct {
		tag  string
		want []string
	}{
		{"fra+eng", []string{"fra", "eng"}},
		{"eng", []string{"eng"}},
		{" deu + +spa ", []string{"deu", "spa"}},
		{"", nil},
	}
	for _, tt := range tests {
		if got := engine.SplitLanguages(tt.tag); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("SplitLanguages(%q) = %v, want %v", tt.tag, got, tt.want)
		}
	}
	if !engine.HasLanguage("fra+eng", "eng") || engine.HasLanguage("fra+eng", "deu") {
		t.Error("HasLanguage mismatch")
	}
}

func TestCatalog(t *testing.T) {
	langs := engine.Catalog([]string{"eng", "jpn", "osd"})
	if len(langs) != 10 {
		t.Fatalf("catalog size = %d, want 10", len(langs))
	}
	available := map[string]bool{}
	for _, l := range langs {
		available[l.Code] = l.Available
		if l.Description != l.Name+" language pack" {
			t.Errorf("description = %q", l.Description)
		}
	}
	if !available["eng"] || !available["jpn"] || available["fra"] {
		t.Errorf("availability = %v", available)
	}
	if got := engine.Missing("fra+eng", []string{"eng"}); !reflect.DeepEqual(got, []string{"fra"}) {
		t.Errorf("Missing() = %v", got)
	}
}
