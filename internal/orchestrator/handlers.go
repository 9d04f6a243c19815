package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/local/medgateway/internal/ai"
	"github.com/local/medgateway/internal/dispatcher"
	"github.com/local/medgateway/internal/filetype"
	"github.com/local/medgateway/internal/logger"
	"github.com/local/medgateway/internal/metrics"
	"github.com/local/medgateway/internal/statuscheck"
)

const (
	msgInternal = "Erreur interne du serveur."
	msgTooLarge = "Fichier trop volumineux."
)

// Service is the dispatch layer the handlers delegate to.
type Service interface {
	Chat(ctx context.Context, message string) ai.Outcome
	SummarizeDocument(ctx context.Context, data []byte) ai.Outcome
	AnalyzeImage(ctx context.Context, data []byte, task, aux string) ai.Outcome
}

type VisionFlag interface {
	IsVisionAvailable() bool
}

type StatusChecker interface {
	Summary(ctx context.Context) statuscheck.Summary
}

type Dependencies struct {
	Service       Service
	Capabilities  VisionFlag
	Status        StatusChecker
	Detector      *filetype.Detector
	MaxUploadSize int64
}

type Orchestrator struct {
	deps Dependencies
}

func New(deps Dependencies) *Orchestrator {
	if deps.Detector == nil {
		deps.Detector = filetype.New()
	}
	if deps.MaxUploadSize <= 0 {
		deps.MaxUploadSize = 32 << 20
	}
	return &Orchestrator{deps: deps}
}

func (o *Orchestrator) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", o.handleHealth)
	mux.HandleFunc("POST /chat", o.handleChat)
	mux.HandleFunc("POST /analyze-pdf", o.handleAnalyzePDF)
	mux.HandleFunc("POST /analyze-image", o.handleAnalyzeImage)
	mux.Handle("GET /metrics", metrics.Handler())
}

// Handler returns the routes wrapped in the middleware stack.
func (o *Orchestrator) Handler() http.Handler {
	mux := http.NewServeMux()
	o.RegisterRoutes(mux)
	return Chain(mux)
}

type healthResp struct {
	Status          string               `json:"status"`
	VisionAvailable bool                 `json:"visionAvailable"`
	Backends        *statuscheck.Summary `json:"backends,omitempty"`
}

func (o *Orchestrator) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResp{Status: "ok"}
	if o.deps.Capabilities != nil {
		resp.VisionAvailable = o.deps.Capabilities.IsVisionAvailable()
	}
	if o.deps.Status != nil {
		s := o.deps.Status.Summary(r.Context())
		resp.Backends = &s
	}
	writeJSON(w, http.StatusOK, resp)
}

type chatReq struct {
	Message string `json:"message"`
}

func (o *Orchestrator) handleChat(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	var req chatReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Ctx(r.Context()).Debug().Err(err).Msg("chat body not decodable")
	}
	o.respond(w, r, "response", o.deps.Service.Chat(r.Context(), req.Message))
}

func (o *Orchestrator) handleAnalyzePDF(w http.ResponseWriter, r *http.Request) {
	form, err := o.parseForm(w, r)
	if err != nil {
		o.writeFormError(w, r, err, dispatcher.MsgNoPDF)
		return
	}
	data, filename, err := readFile(form, "pdf")
	if err != nil {
		writeError(w, http.StatusInternalServerError, dispatcher.MsgPDFError+err.Error())
		return
	}
	if data != nil {
		info := o.deps.Detector.DetectBytes(data, filename)
		logger.Ctx(r.Context()).Info().
			Str("file", filename).
			Str("mime", info.MIMEType).
			Int("bytes", len(data)).
			Msg("pdf analysis request")
	}
	o.respond(w, r, "summary", o.deps.Service.SummarizeDocument(r.Context(), data))
}

func (o *Orchestrator) handleAnalyzeImage(w http.ResponseWriter, r *http.Request) {
	form, err := o.parseForm(w, r)
	if err != nil {
		o.writeFormError(w, r, err, "")
		return
	}
	task := formValue(form, "task_prompt", dispatcher.DefaultTaskPrompt)
	aux := formValue(form, "text_input", dispatcher.DefaultTextInput)

	data, filename, err := readFile(form, "image")
	if err != nil {
		writeError(w, http.StatusBadRequest, dispatcher.MsgImageOpenError+err.Error())
		return
	}
	if data != nil {
		info := o.deps.Detector.DetectBytes(data, filename)
		logger.Ctx(r.Context()).Info().
			Str("file", filename).
			Str("mime", info.MIMEType).
			Bool("ext_mismatch", info.ExtensionMismatch).
			Int("bytes", len(data)).
			Msg("image upload received")
	}
	o.respond(w, r, "result", o.deps.Service.AnalyzeImage(r.Context(), data, task, aux))
}

// respond maps an outcome onto the response contract: success and soft
// failures are 200 under key, user input errors 400, anything else 500.
func (o *Orchestrator) respond(w http.ResponseWriter, r *http.Request, key string, out ai.Outcome) {
	switch {
	case out.OK(), out.IsSoft():
		writeJSON(w, http.StatusOK, map[string]any{key: out.Payload()})
		return
	}

	var userErr *ai.UserInputError
	if errors.As(out.Err, &userErr) {
		writeError(w, http.StatusBadRequest, userErr.Message)
		return
	}
	logger.Ctx(r.Context()).Error().Err(out.Err).Str("path", r.URL.Path).Msg("request failed")
	var tErr *ai.TransportError
	if errors.As(out.Err, &tErr) && tErr.Message != "" {
		writeError(w, http.StatusInternalServerError, tErr.Message)
		return
	}
	writeError(w, http.StatusInternalServerError, msgInternal)
}

// parseForm accepts multipart and urlencoded bodies. A body of another type
// yields an empty form, so the field checks report the missing file.
func (o *Orchestrator) parseForm(w http.ResponseWriter, r *http.Request) (*multipart.Form, error) {
	r.Body = http.MaxBytesReader(w, r.Body, o.deps.MaxUploadSize)
	err := r.ParseMultipartForm(o.deps.MaxUploadSize)
	switch {
	case err == nil:
		return r.MultipartForm, nil
	case errors.Is(err, http.ErrNotMultipart):
		if perr := r.ParseForm(); perr != nil {
			return nil, perr
		}
		return &multipart.Form{Value: r.PostForm}, nil
	default:
		return nil, err
	}
}

func (o *Orchestrator) writeFormError(w http.ResponseWriter, r *http.Request, err error, missingMsg string) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeError(w, http.StatusRequestEntityTooLarge, msgTooLarge)
		return
	}
	logger.Ctx(r.Context()).Warn().Err(err).Msg("malformed form body")
	if missingMsg == "" {
		missingMsg = err.Error()
	}
	writeError(w, http.StatusBadRequest, missingMsg)
}

// readFile returns nil data when the field is absent.
func readFile(form *multipart.Form, field string) ([]byte, string, error) {
	if form == nil || len(form.File[field]) == 0 {
		return nil, "", nil
	}
	hdr := form.File[field][0]
	f, err := hdr.Open()
	if err != nil {
		return nil, hdr.Filename, err
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, hdr.Filename, err
	}
	if data == nil {
		data = []byte{}
	}
	return data, hdr.Filename, nil
}

// formValue returns def only when the field is absent; an empty value is kept.
func formValue(form *multipart.Form, key, def string) string {
	if form == nil {
		return def
	}
	if v, ok := form.Value[key]; ok && len(v) > 0 {
		return v[0]
	}
	return def
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}
