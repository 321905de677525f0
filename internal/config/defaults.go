package config

const (
	defaultConfigPath             = "~/.config/echvid/config.toml"
	defaultMediaDir               = "~/.local/share/echvid/media"
	defaultLogDir                 = "~/.local/share/echvid/logs"
	defaultStateDir               = "~/.local/share/echvid"
	defaultAPIBind                = "127.0.0.1:7480"
	defaultTokenTTLHours          = 24
	defaultMaxUploadMB            = 2048
	defaultBcryptCost             = 12
	defaultWorkerCount            = 2
	defaultHeartbeatInterval      = 15
	defaultHeartbeatTimeout       = 120
	defaultMaxAttempts            = 3
	defaultRetryBackoffSeconds    = 30
	defaultRetryBackoffMaxSeconds = 600
	defaultFFmpeg                 = "ffmpeg"
	defaultFFprobe                = "ffprobe"
	defaultYTDLP                  = "yt-dlp"
	defaultTranscriptionProvider  = "whisper"
	defaultTranscriptionBaseURL   = "https://api.openai.com/v1"
	defaultTranscriptionModel     = "whisper-1"
	defaultTranslationProvider    = "google"
	defaultSegmentChars           = 4000
	defaultThrottleMS             = 1000
	defaultSynthesisProvider      = "google"
	defaultSynthesisBaseURL       = "https://texttospeech.googleapis.com/v1"
	defaultSynthesisMaxInput      = 4500
	defaultSynthesisGender        = "NEUTRAL"
	defaultServiceTimeoutSeconds  = 120
	defaultCueSeconds             = 2.0
	defaultFontSize               = 24
	defaultFontColor              = "white"
	defaultWatermarkText          = "ECHVID FREE VERSION"
	defaultWatermarkFontSize      = 40
	defaultWatermarkOpacity       = 0.6
	defaultLogFormat              = "console"
	defaultLogLevel               = "info"
)

// translationBaseURLs holds the endpoint used when translation.base_url is blank.
var translationBaseURLs = map[string]string{
	"google": "https://translation.googleapis.com/language/translate/v2",
	"deepl":  "https://api-free.deepl.com/v2/translate",
	"openai": "https://api.openai.com/v1/chat/completions",
}

var translationModels = map[string]string{
	"openai": "gpt-4o-mini",
	"gemini": "gemini-1.5-flash",
}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			MediaDir: defaultMediaDir,
			LogDir:   defaultLogDir,
			StateDir: defaultStateDir,
			APIBind:  defaultAPIBind,
		},
		API: API{
			TokenTTLHours: defaultTokenTTLHours,
			MaxUploadMB:   defaultMaxUploadMB,
			BcryptCost:    defaultBcryptCost,
		},
		Workflow: Workflow{
			WorkerCount:            defaultWorkerCount,
			QueuePollInterval:      5,
			ErrorRetryInterval:     10,
			HeartbeatInterval:      defaultHeartbeatInterval,
			HeartbeatTimeout:       defaultHeartbeatTimeout,
			MaxAttempts:            defaultMaxAttempts,
			RetryBackoffSeconds:    defaultRetryBackoffSeconds,
			RetryBackoffMaxSeconds: defaultRetryBackoffMaxSeconds,
		},
		Tools: Tools{
			FFmpeg:  defaultFFmpeg,
			FFprobe: defaultFFprobe,
			YTDLP:   defaultYTDLP,
		},
		Transcription: Transcription{
			Provider:       defaultTranscriptionProvider,
			BaseURL:        defaultTranscriptionBaseURL,
			Model:          defaultTranscriptionModel,
			TimeoutSeconds: 600,
		},
		Translation: Translation{
			Provider:       defaultTranslationProvider,
			SegmentChars:   defaultSegmentChars,
			ThrottleMS:     defaultThrottleMS,
			TimeoutSeconds: defaultServiceTimeoutSeconds,
		},
		Synthesis: Synthesis{
			Provider:       defaultSynthesisProvider,
			BaseURL:        defaultSynthesisBaseURL,
			MaxInputChars:  defaultSynthesisMaxInput,
			DefaultGender:  defaultSynthesisGender,
			TimeoutSeconds: defaultServiceTimeoutSeconds,
		},
		Composite: Composite{
			VideoCodec:        "libx264",
			AudioCodec:        "aac",
			CueSeconds:        defaultCueSeconds,
			FontSize:          defaultFontSize,
			FontColor:         defaultFontColor,
			WatermarkText:     defaultWatermarkText,
			WatermarkFontSize: defaultWatermarkFontSize,
			WatermarkOpacity:  defaultWatermarkOpacity,
		},
		Notifications: Notifications{
			RequestTimeout: 10,
			JobSucceeded:   true,
			JobFailed:      true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
