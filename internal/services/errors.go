package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrStorage       = errors.New("storage error")
	ErrAcquisition   = errors.New("acquisition error")
	ErrNoAudio       = errors.New("no audio stream")
	ErrTranscription = errors.New("transcription error")
	ErrTranslation   = errors.New("translation error")
	ErrSynthesis     = errors.New("synthesis error")
	ErrComposition   = errors.New("composition error")
	ErrValidation    = errors.New("validation error")
	ErrConfiguration = errors.New("configuration error")
	ErrNotFound      = errors.New("not found")
	ErrCanceled      = errors.New("job canceled")
	ErrTransient     = errors.New("transient failure")
)

// kindNames is ordered so the most specific marker wins when several are
// present in one chain.
var kindNames = []struct {
	marker error
	name   string
}{
	{ErrNoAudio, "NoAudioError"},
	{ErrStorage, "StorageError"},
	{ErrAcquisition, "AcquisitionError"},
	{ErrTranscription, "TranscriptionError"},
	{ErrTranslation, "TranslationError"},
	{ErrSynthesis, "SynthesisError"},
	{ErrComposition, "CompositionError"},
	{ErrValidation, "ValidationError"},
	{ErrConfiguration, "ConfigurationError"},
	{ErrNotFound, "NotFoundError"},
	{ErrCanceled, "CanceledError"},
}

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one of the
// exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }

func (e *transientError) Unwrap() error { return e.err }

func (e *transientError) Is(target error) bool { return target == ErrTransient }

// Transient marks err as safe to redeliver. The message is left untouched.
func Transient(err error) error {
	if err == nil || errors.Is(err, ErrTransient) {
		return err
	}
	return &transientError{err: err}
}

// IsTransient reports whether the failure may succeed on a later attempt.
func IsTransient(err error) bool {
	return err != nil && errors.Is(err, ErrTransient)
}

// Kind returns the taxonomy name for err, e.g. "TranslationError".
func Kind(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range kindNames {
		if errors.Is(err, k.marker) {
			return k.name
		}
	}
	if errors.Is(err, ErrTransient) {
		return "TransientError"
	}
	return "InternalError"
}

// ErrorDetails is the persisted and logged view of a stage failure.
type ErrorDetails struct {
	Kind      string
	Message   string
	Transient bool
}

// Details splits err into its kind and a human readable message with the
// marker prefix removed.
func Details(err error) ErrorDetails {
	if err == nil {
		return ErrorDetails{}
	}
	msg := strings.TrimSpace(err.Error())
	for _, k := range kindNames {
		if errors.Is(err, k.marker) {
			msg = strings.TrimPrefix(msg, k.marker.Error()+": ")
			break
		}
	}
	return ErrorDetails{
		Kind:      Kind(err),
		Message:   msg,
		Transient: IsTransient(err),
	}
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
