package engine

import (
	"github.com/adverant/nexus/ocr-worker/internal/config"
)

// FrenchWhitelist extends the ASCII alphanumerics with the accented Latin
// letters and the punctuation common in French invoices.
const FrenchWhitelist = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789.,€$-/:" +
	"àáâãäåæçèéêëìíîïñòóôõöøùúûüýÀÁÂÃÄÅÆÇÈÉÊËÌÍÎÏÑÒÓÔÕÖØÙÚÛÜÝ"

// Settings is the per-instance engine configuration.
type Settings struct {
	PageSegMode int
	// EngineMode is the engine's numeric mode value ("0".."3")
	EngineMode string
	Whitelist  string
	Blacklist  string
	DPI        int

	PreserveInterwordSpaces bool
}

// EngineModeValue maps a configured engine mode name to the engine's
// numeric value. Unknown names map to the default mode.
func EngineModeValue(mode string) string {
	switch mode {
	case config.EngineModeTesseractOnly:
		return "0"
	case config.EngineModeLSTMOnly:
		return "1"
	case config.EngineModeCombined:
		return "2"
	}
	return "3"
}

// SettingsFor derives engine settings from cfg for the given language tag.
func SettingsFor(cfg config.Config, language string) Settings {
	s := Settings{
		PageSegMode:             cfg.PageSegMode,
		EngineMode:              EngineModeValue(cfg.EngineMode),
		Whitelist:               cfg.Whitelist,
		Blacklist:               cfg.Blacklist,
		DPI:                     cfg.TargetDPI,
		PreserveInterwordSpaces: true,
	}
	if s.Whitelist == "" && HasLanguage(language, "fra") {
		s.Whitelist = FrenchWhitelist
	}
	return s
}
