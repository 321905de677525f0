package config

import (
	"errors"
	"fmt"
	"strings"
)

var (
	translationProviders = map[string]bool{"google": true, "deepl": true, "openai": true, "gemini": true, "echo": true}
	synthesisGenders     = map[string]bool{"NEUTRAL": true, "MALE": true, "FEMALE": true}
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validateServices(); err != nil {
		return err
	}
	if err := c.validateComposite(); err != nil {
		return err
	}
	if c.API.BcryptCost < 4 || c.API.BcryptCost > 31 {
		return errors.New("api.bcrypt_cost must be between 4 and 31")
	}
	if c.API.MaxUploadMB < 0 {
		return errors.New("api.max_upload_mb must be >= 0")
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if err := ensurePositiveMap(map[string]int{
		"workflow.worker_count":              c.Workflow.WorkerCount,
		"workflow.queue_poll_interval":       c.Workflow.QueuePollInterval,
		"workflow.error_retry_interval":      c.Workflow.ErrorRetryInterval,
		"workflow.max_attempts":              c.Workflow.MaxAttempts,
		"workflow.retry_backoff_seconds":     c.Workflow.RetryBackoffSeconds,
		"workflow.retry_backoff_max_seconds": c.Workflow.RetryBackoffMaxSeconds,
		"notifications.request_timeout":      c.Notifications.RequestTimeout,
	}); err != nil {
		return err
	}
	if c.Workflow.HeartbeatInterval <= 0 {
		return errors.New("workflow.heartbeat_interval must be positive")
	}
	if c.Workflow.HeartbeatTimeout <= c.Workflow.HeartbeatInterval {
		return errors.New("workflow.heartbeat_timeout must be greater than workflow.heartbeat_interval")
	}
	if c.Workflow.RetryBackoffMaxSeconds < c.Workflow.RetryBackoffSeconds {
		return errors.New("workflow.retry_backoff_max_seconds must be >= workflow.retry_backoff_seconds")
	}
	return nil
}

func (c *Config) validateServices() error {
	if c.Transcription.Provider != "whisper" {
		return fmt.Errorf("transcription.provider: unsupported value %q", c.Transcription.Provider)
	}
	if !translationProviders[c.Translation.Provider] {
		return fmt.Errorf("translation.provider: unsupported value %q", c.Translation.Provider)
	}
	if c.Synthesis.Provider != "google" {
		return fmt.Errorf("synthesis.provider: unsupported value %q", c.Synthesis.Provider)
	}
	if !synthesisGenders[c.Synthesis.DefaultGender] {
		return fmt.Errorf("synthesis.default_gender must be one of NEUTRAL, MALE, FEMALE (got %q)", c.Synthesis.DefaultGender)
	}
	return ensurePositiveMap(map[string]int{
		"translation.segment_chars":     c.Translation.SegmentChars,
		"translation.timeout_seconds":   c.Translation.TimeoutSeconds,
		"transcription.timeout_seconds": c.Transcription.TimeoutSeconds,
		"synthesis.max_input_chars":     c.Synthesis.MaxInputChars,
		"synthesis.timeout_seconds":     c.Synthesis.TimeoutSeconds,
	})
}

func (c *Config) validateComposite() error {
	if c.Composite.CueSeconds <= 0 {
		return errors.New("composite.cue_seconds must be positive")
	}
	if c.Composite.FontSize <= 0 || c.Composite.WatermarkFontSize <= 0 {
		return errors.New("composite font sizes must be positive")
	}
	if c.Composite.WatermarkOpacity <= 0 || c.Composite.WatermarkOpacity > 1 {
		return errors.New("composite.watermark_opacity must be in (0, 1]")
	}
	if strings.ContainsAny(c.Composite.WatermarkText, "'\n") {
		return errors.New("composite.watermark_text must not contain quotes or newlines")
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
