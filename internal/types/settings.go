package types

import "strings"

type Language string

const (
	LangEnglish    Language = "en"
	LangIndonesian Language = "id"
)

// DefaultLanguage is used when no valid language is persisted.
const DefaultLanguage = LangEnglish

func (l Language) Valid() bool {
	return l == LangEnglish || l == LangIndonesian
}

// ModelType selects which backend model variant handles a request.
type ModelType string

const (
	ModelV3Pro ModelType = "gemini-3-pro-preview"
	ModelV3    ModelType = "gemini-3-flash-preview"
	ModelV2    ModelType = "gemini-flash-latest"
)

// DefaultModel is used when no valid model is persisted.
const DefaultModel = ModelV3

// Models lists the selectable models, strongest first.
var Models = []ModelType{ModelV3Pro, ModelV3, ModelV2}

func (m ModelType) Valid() bool {
	for _, known := range Models {
		if m == known {
			return true
		}
	}
	return false
}

// Label returns the product name shown to users for the model.
func (m ModelType) Label() string {
	switch m {
	case ModelV3Pro:
		return "Gen2 V3 Pro"
	case ModelV3:
		return "Gen2 V3"
	case ModelV2:
		return "Gen2 V2"
	default:
		return "Gen2"
	}
}

// ParseModel accepts a model identifier, its label, or a short alias
// (pro, v3, v2). The second result is false when nothing matches.
func ParseModel(s string) (ModelType, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "pro", "v3pro", "v3-pro":
		return ModelV3Pro, true
	case "v3", "flash":
		return ModelV3, true
	case "v2", "latest":
		return ModelV2, true
	}
	for _, m := range Models {
		if s == string(m) || s == strings.ToLower(m.Label()) {
			return m, true
		}
	}
	return "", false
}

type AppSettings struct {
	Language Language  `json:"language"`
	Model    ModelType `json:"model"`
}

// DefaultSettings returns the settings used on first start.
func DefaultSettings() AppSettings {
	return AppSettings{Language: DefaultLanguage, Model: DefaultModel}
}
