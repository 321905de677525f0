package workflow

import (
	"errors"
	"io"

	"echvid/internal/queue"
	"echvid/internal/stage"
)

// StageSet bundles the concrete stage handlers the manager sequences.
type StageSet struct {
	Extract    stage.Handler
	Transcribe stage.Handler
	Translate  stage.Handler
	Synthesize stage.Handler
	Composite  stage.Handler
}

// Close releases every handler that holds a connection.
func (s StageSet) Close() error {
	var errs []error
	for _, h := range []stage.Handler{s.Extract, s.Transcribe, s.Translate, s.Synthesize, s.Composite} {
		if closer, ok := h.(io.Closer); ok {
			errs = append(errs, closer.Close())
		}
	}
	return errors.Join(errs...)
}

type pipelineStage struct {
	name             string
	handler          stage.Handler
	processingStatus queue.Status
	doneStatus       queue.Status
	label            string
}

func (s StageSet) pipeline() []pipelineStage {
	return []pipelineStage{
		{name: "extract", handler: s.Extract, processingStatus: queue.StatusExtracting, doneStatus: queue.StatusExtracted, label: "Extracting audio"},
		{name: "transcribe", handler: s.Transcribe, processingStatus: queue.StatusTranscribing, doneStatus: queue.StatusTranscribed, label: "Transcribing"},
		{name: "translate", handler: s.Translate, processingStatus: queue.StatusTranslating, doneStatus: queue.StatusTranslated, label: "Translating"},
		{name: "synthesize", handler: s.Synthesize, processingStatus: queue.StatusSynthesizing, doneStatus: queue.StatusSynthesized, label: "Synthesizing speech"},
		{name: "composite", handler: s.Composite, processingStatus: queue.StatusCompositing, doneStatus: queue.StatusSucceeded, label: "Compositing video"},
	}
}

func (s pipelineStage) final() bool {
	return s.doneStatus == queue.StatusSucceeded
}
