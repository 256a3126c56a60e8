package api

import (
	"io"
	"net/http"
	"strconv"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"

	"github.com/book-expert/voice-assistant/internal/asr"
	"github.com/book-expert/voice-assistant/internal/core"
	"github.com/book-expert/voice-assistant/internal/fileutil"
	"github.com/book-expert/voice-assistant/internal/llm"
	"github.com/book-expert/voice-assistant/internal/tts"
)

// Request defaults.
const (
	defaultTemperature = 0.7
	defaultMultiplier  = 1.0
	maxUploadBytes     = 32 << 20
	audioContentType   = "audio/mpeg"
	statusRunning      = "running"
	statusReady        = "ready"
)

type chatRequest struct {
	Temperature *float64      `json:"temperature"`
	Provider    string        `json:"provider"`
	APIKey      string        `json:"api_key"`
	Model       string        `json:"model"`
	Messages    []llm.Message `json:"messages"`
}

// providerConfig fills the temperature and model defaults.
func (req chatRequest) providerConfig() llm.ProviderConfig {
	cfg := llm.ProviderConfig{
		Provider:    req.Provider,
		Credential:  req.APIKey,
		Model:       req.Model,
		Temperature: defaultTemperature,
	}
	if req.Temperature != nil {
		cfg.Temperature = *req.Temperature
	}

	if cfg.Model == "" {
		cfg.Model = llm.DefaultModel(cfg.Provider)
	}

	return cfg
}

type chatResponse struct {
	Response  string `json:"response"`
	Timestamp string `json:"timestamp"`
}

type speechRequest struct {
	Rate   *float64 `json:"rate"`
	Volume *float64 `json:"volume"`
	Text   string   `json:"text"`
	Engine string   `json:"engine"`
	Voice  string   `json:"voice"`
}

type previewResponse struct {
	OriginalText   string `json:"original_text"`
	CleanedText    string `json:"cleaned_text"`
	Timestamp      string `json:"timestamp"`
	OriginalLength int    `json:"original_length"`
	CleanedLength  int    `json:"cleaned_length"`
}

type recognitionResponse struct {
	Text      string `json:"text"`
	Engine    string `json:"engine"`
	Language  string `json:"language"`
	Timestamp string `json:"timestamp"`
}

type assistantHandler struct {
	deps Dependencies
}

// Routes registers the chat, speech and informational endpoints.
func (h *assistantHandler) Routes(r chi.Router) {
	r.Post("/chat", h.Chat)
	r.Post("/chat/test", h.TestConnection)
	r.Post("/tts", h.Speak)
	r.Post("/tts/preview", h.Preview)
	r.Post("/asr", h.Recognize)
	r.Get("/services/info", h.ServicesInfo)
	r.Get("/status", h.Status)
	r.Get("/history", h.History)
	r.Post("/history", h.HistoryAck)
	r.Delete("/history", h.HistoryAck)
}

// Chat handles POST /api/chat.
func (h *assistantHandler) Chat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest

	decodeErr := decodeJSON(w, r, &req)
	if decodeErr != nil {
		WriteError(w, http.StatusBadRequest, decodeErr.Error())

		return
	}

	cfg := req.providerConfig()

	validation := h.deps.Chat.Validate(cfg)
	if !validation.Valid() {
		writeConfigError(w, validation)

		return
	}

	if len(req.Messages) == 0 {
		WriteError(w, http.StatusBadRequest, "messages cannot be empty")

		return
	}

	if h.deps.Gate != nil {
		contents := make([]string, 0, len(req.Messages))
		for _, message := range req.Messages {
			contents = append(contents, message.Content)
		}

		gateErr := h.deps.Gate.CheckChat(contents)
		if gateErr != nil {
			WriteServiceError(w, gateErr)

			return
		}
	}

	reply, err := h.deps.Chat.Call(r.Context(), cfg, req.Messages)
	if err != nil {
		WriteServiceError(w, err)

		return
	}

	WriteJSON(w, http.StatusOK, chatResponse{Response: reply, Timestamp: timestamp()})
}

// TestConnection handles POST /api/chat/test. Provider failures are reported
// in the body with an error code rather than as an HTTP error.
func (h *assistantHandler) TestConnection(w http.ResponseWriter, r *http.Request) {
	var req chatRequest

	decodeErr := decodeJSON(w, r, &req)
	if decodeErr != nil {
		WriteError(w, http.StatusBadRequest, decodeErr.Error())

		return
	}

	cfg := req.providerConfig()

	validation := h.deps.Chat.Validate(cfg)
	if !validation.Valid() {
		writeConfigError(w, validation)

		return
	}

	WriteJSON(w, http.StatusOK, h.deps.Chat.TestConnection(r.Context(), cfg))
}

// Speak handles POST /api/tts. The artifact is removed once streamed.
func (h *assistantHandler) Speak(w http.ResponseWriter, r *http.Request) {
	var req speechRequest

	decodeErr := decodeJSON(w, r, &req)
	if decodeErr != nil {
		WriteError(w, http.StatusBadRequest, decodeErr.Error())

		return
	}

	synthesis := core.SynthesisRequest{
		Text:   req.Text,
		Engine: req.Engine,
		Voice:  req.Voice,
		Rate:   valueOr(req.Rate, defaultMultiplier),
		Volume: valueOr(req.Volume, defaultMultiplier),
	}
	if synthesis.Engine == "" {
		synthesis.Engine = h.deps.DefaultEngine
	}

	if synthesis.Engine == "" {
		synthesis.Engine = string(tts.EngineEdge)
	}

	result, err := h.deps.Speech.Synthesize(r.Context(), synthesis)
	if err != nil {
		WriteServiceError(w, err)

		return
	}

	if result.Empty || result.Artifact == nil {
		w.WriteHeader(http.StatusNoContent)

		return
	}

	artifact := result.Artifact
	defer func() {
		removeErr := artifact.Remove()
		if removeErr != nil {
			h.deps.Log.Warn("Failed to remove audio artifact %s: %v", artifact.Path, removeErr)
		}
	}()

	file, openErr := artifact.Open()
	if openErr != nil {
		WriteError(w, http.StatusInternalServerError, "failed to open synthesized audio")

		return
	}
	defer file.Close()

	w.Header().Set("Content-Type", audioContentType)
	w.Header().Set("Content-Length", strconv.FormatInt(artifact.Size, 10))
	w.WriteHeader(http.StatusOK)

	_, copyErr := io.Copy(w, file)
	if copyErr != nil {
		h.deps.Log.Warn("Audio stream interrupted after headers: %v", copyErr)
	}
}

// Preview handles POST /api/tts/preview.
func (h *assistantHandler) Preview(w http.ResponseWriter, r *http.Request) {
	var req speechRequest

	decodeErr := decodeJSON(w, r, &req)
	if decodeErr != nil {
		WriteError(w, http.StatusBadRequest, decodeErr.Error())

		return
	}

	cleaned := h.deps.Speech.Preview(req.Text)

	WriteJSON(w, http.StatusOK, previewResponse{
		OriginalText:   req.Text,
		CleanedText:    cleaned,
		OriginalLength: utf8.RuneCountInString(req.Text),
		CleanedLength:  utf8.RuneCountInString(cleaned),
		Timestamp:      timestamp(),
	})
}

// Recognize handles POST /api/asr.
func (h *assistantHandler) Recognize(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	parseErr := r.ParseMultipartForm(maxUploadBytes)
	if parseErr != nil {
		WriteError(w, http.StatusBadRequest, "invalid multipart form: "+parseErr.Error())

		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	req := core.RecognitionRequest{
		Engine:     r.FormValue("engine"),
		Language:   r.FormValue("language"),
		Credential: r.FormValue("api_key"),
	}
	if req.Engine == "" {
		req.Engine = string(asr.EngineBrowser)
	}

	if req.Language == "" {
		req.Language = asr.DefaultLanguage
	}

	validation := h.deps.Recognition.Validate(req.Engine, req.Language, req.Credential)
	if !validation.Valid() {
		writeConfigError(w, validation)

		return
	}

	file, header, fileErr := r.FormFile("audio")
	if fileErr != nil {
		WriteError(w, http.StatusBadRequest, "no audio file provided")

		return
	}
	defer file.Close()

	if !fileutil.IsValidAudioFile(header.Filename) {
		h.deps.Log.Warn("Audio upload with unexpected name %q (%s)", header.Filename, fileutil.FormatFileSize(header.Size))
	}

	audio, readErr := io.ReadAll(file)
	if readErr != nil {
		WriteError(w, http.StatusBadRequest, "failed to read audio file")

		return
	}

	req.Audio = audio
	req.Filename = header.Filename

	text, err := h.deps.Recognition.Recognize(r.Context(), req)
	if err != nil {
		WriteServiceError(w, err)

		return
	}

	WriteJSON(w, http.StatusOK, recognitionResponse{
		Text:      text,
		Engine:    req.Engine,
		Language:  req.Language,
		Timestamp: timestamp(),
	})
}

// ServicesInfo handles GET /api/services/info.
func (h *assistantHandler) ServicesInfo(w http.ResponseWriter, _ *http.Request) {
	models := make(map[string][]string)
	for _, provider := range llm.Providers() {
		models[provider] = llm.Models(provider)
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"llm": map[string]any{
			"providers": llm.Providers(),
			"models":    models,
		},
		"tts": map[string]any{
			"engines": tts.Engines(),
			"voices":  tts.Voices(string(tts.EngineEdge)),
		},
		"asr": map[string]any{
			"engines":   asr.Engines(),
			"languages": asr.Languages(),
		},
	})
}

// Status handles GET /api/status.
func (h *assistantHandler) Status(w http.ResponseWriter, _ *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]any{
		"status":    statusRunning,
		"timestamp": timestamp(),
		"version":   h.deps.Version,
		"services": map[string]string{
			"llm": statusReady,
			"tts": statusReady,
			"asr": statusReady,
		},
	})
}

// History handles GET /api/history. Conversations are kept client-side.
func (h *assistantHandler) History(w http.ResponseWriter, _ *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]any{"history": []any{}, "timestamp": timestamp()})
}

// HistoryAck handles POST and DELETE /api/history.
func (h *assistantHandler) HistoryAck(w http.ResponseWriter, _ *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]any{"success": true, "timestamp": timestamp()})
}

func valueOr(value *float64, fallback float64) float64 {
	if value == nil {
		return fallback
	}

	return *value
}
