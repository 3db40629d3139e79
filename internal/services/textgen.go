package services

// TextProviderConfig names the credentials available for script generation.
type TextProviderConfig struct {
	OpenAIKey   string
	OpenAIModel string
	GeminiKey   string
	GeminiModel string
}

// SelectTextProvider picks the script provider once at startup: OpenAI when
// keyed, then Gemini, else nil (fallback scripts only).
func SelectTextProvider(cfg TextProviderConfig) TextProvider {
	switch {
	case cfg.OpenAIKey != "":
		return NewOpenAITextProvider(cfg.OpenAIKey, cfg.OpenAIModel)
	case cfg.GeminiKey != "":
		return NewGeminiTextProvider(cfg.GeminiKey, cfg.GeminiModel)
	default:
		return nil
	}
}
