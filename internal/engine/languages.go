package engine

import (
	"strings"
)

// LanguageInfo describes one catalog language.
type LanguageInfo struct {
	Code        string `json:"code"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Available   bool   `json:"available"`
}

var catalog = []LanguageInfo{
	{Code: "eng", Name: "English"},
	{Code: "fra", Name: "French"},
	{Code: "deu", Name: "German"},
	{Code: "spa", Name: "Spanish"},
	{Code: "ita", Name: "Italian"},
	{Code: "por", Name: "Portuguese"},
	{Code: "rus", Name: "Russian"},
	{Code: "ara", Name: "Arabic"},
	{Code: "chi_sim", Name: "Chinese Simplified"},
	{Code: "jpn", Name: "Japanese"},
}

// Catalog returns the known languages with Available resolved against the
// installed language codes.
func Catalog(installed []string) []LanguageInfo {
	have := make(map[string]bool, len(installed))
	for _, code := range installed {
		have[code] = true
	}

	out := make([]LanguageInfo, len(catalog))
	for i, l := range catalog {
		l.Description = l.Name + " language pack"
		l.Available = have[l.Code]
		out[i] = l
	}
	return out
}

// SplitLanguages splits a "fra+eng" style tag into its codes, dropping
// empty parts.
func SplitLanguages(tag string) []string {
	var out []string
	for _, part := range strings.Split(tag, "+") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// HasLanguage reports whether tag includes code.
func HasLanguage(tag, code string) bool {
	for _, l := range SplitLanguages(tag) {
		if l == code {
			return true
		}
	}
	return false
}

// Missing returns the codes of tag that are not installed.
func Missing(tag string, installed []string) []string {
	have := make(map[string]bool, len(installed))
	for _, code := range installed {
		have[code] = true
	}
	var missing []string
	for _, l := range SplitLanguages(tag) {
		if !have[l] {
			missing = append(missing, l)
		}
	}
	return missing
}
