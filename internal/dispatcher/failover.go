package dispatcher

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/local/medgateway/internal/ai"
	"github.com/local/medgateway/internal/document"
	mpkg "github.com/local/medgateway/internal/metrics"
)

// Chat forwards message to the text backend. Only the timeout message is
// rewritten; every other outcome passes through unchanged.
func (d *Dispatcher) Chat(ctx context.Context, message string) ai.Outcome {
	if message == "" {
		return ai.UserInput(MsgEmptyMessage)
	}
	log.Info().Str("user_message", preview(message)).Msg("chat request")
	return timeoutAs(d.callText(ctx, ChatPrompt(message), d.chatTimeout), MsgChatTimeout)
}

// SummarizeDocument extracts the document's text, caps it and asks the text
// backend for a summary.
func (d *Dispatcher) SummarizeDocument(ctx context.Context, data []byte) ai.Outcome {
	if len(data) == 0 {
		return ai.UserInput(MsgNoPDF)
	}

	text, err := d.extractor.Extract(data)
	if err != nil {
		log.Error().Err(err).Int("bytes", len(data)).Msg("document extraction failed")
		return ai.Transport(MsgPDFError+err.Error(), err)
	}
	if document.IsBlank(text) {
		log.Info().Int("bytes", len(data)).Msg("document has no extractable text")
		return ai.UserInput(MsgNoTextInPDF)
	}

	capped := document.Truncate(text, d.maxChars)
	if len(capped) != len(text) {
		log.Debug().Int("max_chars", d.maxChars).Msg("document text truncated")
	}
	return d.callText(ctx, SummaryPrompt(capped), d.textTimeout)
}

// AnalyzeImage tries vision first and degrades to a text-only description
// built from aux. Decoding is only attempted when vision is available.
func (d *Dispatcher) AnalyzeImage(ctx context.Context, data []byte, task, aux string) ai.Outcome {
	log.Info().Str("task", task).Msg("image analysis request")

	if !d.visionAvailable() {
		log.Info().Msg("vision unavailable, using text backend for image description")
		mpkg.IncFallback("unavailable")
		return d.describe(ctx, aux)
	}

	if len(data) == 0 {
		return ai.UserInput(MsgNoImage)
	}
	img, err := d.decode(data)
	if err != nil {
		log.Warn().Err(err).Msg("image decode failed")
		return ai.UserInput(MsgImageOpenError + err.Error())
	}

	start := time.Now()
	out := d.vision.Analyze(ctx, img, task, aux)
	mpkg.ObserveBackend("vision", string(DomainImage), classify(out), time.Since(start))
	if out.OK() {
		return out
	}

	reason := classify(out)
	log.Info().
		Err(out.Err).
		Str("reason", reason).
		Msg("vision analysis failed, falling back to text backend")
	mpkg.IncFallback(reason)
	return d.describe(ctx, aux)
}

// describe is the degraded image path: a text-only prompt from aux, no pixels.
func (d *Dispatcher) describe(ctx context.Context, aux string) ai.Outcome {
	return timeoutAs(d.callText(ctx, ImageDescriptionPrompt(aux), d.textTimeout), MsgImageTimeout)
}

// timeoutAs replaces the text backend's document-oriented timeout message.
func timeoutAs(out ai.Outcome, msg string) ai.Outcome {
	if out.IsSoft() && ai.IsTimeout(out.Err) {
		out.Message = msg
	}
	return out
}

func (d *Dispatcher) callText(ctx context.Context, p PromptContext, limit time.Duration) ai.Outcome {
	if d.text == nil {
		return ai.Transport("text backend not configured", nil)
	}
	prompt := p.String()
	mpkg.ObservePayload(string(p.Domain()), len([]rune(prompt)))

	start := time.Now()
	out := d.text.Generate(ctx, prompt, limit)
	dur := time.Since(start)
	result := classify(out)
	mpkg.ObserveBackend("text", string(p.Domain()), result, dur)

	switch {
	case out.OK():
		log.Info().
			Str("domain", string(p.Domain())).
			Dur("duration", dur).
			Str("response", preview(out.Text)).
			Msg("text backend answered")
	case out.IsSoft():
		log.Warn().
			Err(out.Err).
			Str("domain", string(p.Domain())).
			Str("result", result).
			Dur("duration", dur).
			Msg("text backend soft failure")
	}
	return out
}
