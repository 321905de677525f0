package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeAPI()
	c.normalizeTools()
	c.normalizeTranscription()
	c.normalizeTranslation()
	c.normalizeSynthesis()
	if err := c.normalizeComposite(); err != nil {
		return err
	}
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.MediaDir, err = expandPath(c.Paths.MediaDir); err != nil {
		return fmt.Errorf("paths.media_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	c.Paths.APIToken = envFallback(c.Paths.APIToken, "ECHVID_API_TOKEN")
	return nil
}

func (c *Config) normalizeAPI() {
	c.API.JWTSecret = envFallback(c.API.JWTSecret, "ECHVID_JWT_SECRET")
	origins := make([]string, 0, len(c.API.AllowedOrigins))
	for _, origin := range c.API.AllowedOrigins {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	c.API.AllowedOrigins = origins
	if c.API.TokenTTLHours <= 0 {
		c.API.TokenTTLHours = defaultTokenTTLHours
	}
	if c.API.BcryptCost == 0 {
		c.API.BcryptCost = defaultBcryptCost
	}
}

func (c *Config) normalizeTools() {
	c.Tools.FFmpeg = defaultIfBlank(c.Tools.FFmpeg, defaultFFmpeg)
	c.Tools.FFprobe = defaultIfBlank(c.Tools.FFprobe, defaultFFprobe)
	c.Tools.YTDLP = defaultIfBlank(c.Tools.YTDLP, defaultYTDLP)
}

func (c *Config) normalizeTranscription() {
	c.Transcription.Provider = strings.ToLower(defaultIfBlank(c.Transcription.Provider, defaultTranscriptionProvider))
	c.Transcription.BaseURL = strings.TrimRight(defaultIfBlank(c.Transcription.BaseURL, defaultTranscriptionBaseURL), "/")
	c.Transcription.Model = defaultIfBlank(c.Transcription.Model, defaultTranscriptionModel)
	c.Transcription.APIKey = envFallback(c.Transcription.APIKey, "WHISPER_API_KEY", "OPENAI_API_KEY")
}

func (c *Config) normalizeTranslation() {
	c.Translation.Provider = strings.ToLower(defaultIfBlank(c.Translation.Provider, defaultTranslationProvider))
	switch c.Translation.Provider {
	case "google":
		c.Translation.APIKey = envFallback(c.Translation.APIKey, "GOOGLE_API_KEY")
	case "deepl":
		c.Translation.APIKey = envFallback(c.Translation.APIKey, "DEEPL_API_KEY")
	case "openai":
		c.Translation.APIKey = envFallback(c.Translation.APIKey, "OPENAI_API_KEY")
	case "gemini":
		c.Translation.APIKey = envFallback(c.Translation.APIKey, "GEMINI_API_KEY", "GOOGLE_API_KEY")
	}
	c.Translation.BaseURL = defaultIfBlank(c.Translation.BaseURL, translationBaseURLs[c.Translation.Provider])
	c.Translation.Model = defaultIfBlank(c.Translation.Model, translationModels[c.Translation.Provider])
	if c.Translation.SegmentChars == 0 {
		c.Translation.SegmentChars = defaultSegmentChars
	}
	if c.Translation.TimeoutSeconds == 0 {
		c.Translation.TimeoutSeconds = defaultServiceTimeoutSeconds
	}
}

func (c *Config) normalizeSynthesis() {
	c.Synthesis.Provider = strings.ToLower(defaultIfBlank(c.Synthesis.Provider, defaultSynthesisProvider))
	c.Synthesis.BaseURL = strings.TrimRight(defaultIfBlank(c.Synthesis.BaseURL, defaultSynthesisBaseURL), "/")
	c.Synthesis.APIKey = envFallback(c.Synthesis.APIKey, "GOOGLE_TTS_API_KEY", "GOOGLE_API_KEY")
	c.Synthesis.DefaultGender = strings.ToUpper(defaultIfBlank(c.Synthesis.DefaultGender, defaultSynthesisGender))
	if c.Synthesis.MaxInputChars == 0 {
		c.Synthesis.MaxInputChars = defaultSynthesisMaxInput
	}
	if c.Synthesis.TimeoutSeconds == 0 {
		c.Synthesis.TimeoutSeconds = defaultServiceTimeoutSeconds
	}
}

func (c *Config) normalizeComposite() error {
	c.Composite.VideoCodec = defaultIfBlank(c.Composite.VideoCodec, "libx264")
	c.Composite.AudioCodec = defaultIfBlank(c.Composite.AudioCodec, "aac")
	c.Composite.FontColor = defaultIfBlank(c.Composite.FontColor, defaultFontColor)
	c.Composite.WatermarkText = defaultIfBlank(c.Composite.WatermarkText, defaultWatermarkText)
	if strings.TrimSpace(c.Composite.FontFile) != "" {
		var err error
		if c.Composite.FontFile, err = expandPath(strings.TrimSpace(c.Composite.FontFile)); err != nil {
			return fmt.Errorf("composite.font_file: %w", err)
		}
	}
	return nil
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format != "json" {
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func defaultIfBlank(value, fallback string) string {
	if trimmed := strings.TrimSpace(value); trimmed != "" {
		return trimmed
	}
	return fallback
}

// envFallback returns value, or the first non-empty environment variable.
func envFallback(value string, keys ...string) string {
	if trimmed := strings.TrimSpace(value); trimmed != "" {
		return trimmed
	}
	for _, key := range keys {
		if env, ok := os.LookupEnv(key); ok && strings.TrimSpace(env) != "" {
			return strings.TrimSpace(env)
		}
	}
	return ""
}
