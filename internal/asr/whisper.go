package asr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/book-expert/voice-assistant/internal/core"
	"github.com/book-expert/voice-assistant/internal/fileutil"
)

// Whisper defaults.
const (
	DefaultWhisperURL   = "https://api.openai.com/v1/audio/transcriptions"
	DefaultWhisperModel = "whisper-1"
	defaultUploadName   = "audio.wav"
	maxErrorBodyBytes   = 4096
)

// Error messages.
const (
	errFmtCreateFormFile   = "failed to create form file: %w"
	errFmtCopyAudio        = "failed to copy audio data: %w"
	errFmtWriteField       = "failed to write %s field: %w"
	errFmtCloseWriter      = "failed to close multipart writer: %w"
	errFmtCreateRequest    = "failed to create transcription request: %w"
	errFmtSendRequest      = "failed to send transcription request to %s: %w"
	errFmtDecodeTranscript = "failed to decode transcription response: %w"
)

// HTTP headers.
const (
	headerAuthorization = "Authorization"
	headerContentType   = "Content-Type"
)

// Form field names.
const (
	formFieldFile     = "file"
	formFieldModel    = "model"
	formFieldLanguage = "language"
)

// WhisperClient calls an OpenAI-compatible transcription endpoint.
type WhisperClient struct {
	httpClient *http.Client
	baseURL    string
	model      string
}

// Response represents the response from the transcription endpoint.
type Response struct {
	Text string `json:"text"`
}

// NewWhisperClient creates a client for baseURL bounded by timeout.
func NewWhisperClient(baseURL string, timeout time.Duration) *WhisperClient {
	if baseURL == "" {
		baseURL = DefaultWhisperURL
	}

	return &WhisperClient{
		baseURL: baseURL,
		model:   DefaultWhisperModel,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Transcribe uploads audio and returns the transcript. Non-200 answers are
// returned as *core.StatusError.
func (c *WhisperClient) Transcribe(ctx context.Context, apiKey string, audio []byte, filename, language string) (string, error) {
	body, contentType, err := c.buildForm(audio, filename, language)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, body)
	if err != nil {
		return "", fmt.Errorf(errFmtCreateRequest, err)
	}

	req.Header.Set(headerAuthorization, "Bearer "+apiKey)
	req.Header.Set(headerContentType, contentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf(errFmtSendRequest, c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))

		return "", core.NewStatusError(resp.StatusCode, string(bytes.TrimSpace(errBody)))
	}

	var transcript Response

	decodeErr := json.NewDecoder(resp.Body).Decode(&transcript)
	if decodeErr != nil {
		return "", fmt.Errorf(errFmtDecodeTranscript, decodeErr)
	}

	return transcript.Text, nil
}

// buildForm encodes the upload as multipart/form-data. The language field is
// omitted when empty so the endpoint detects it.
func (c *WhisperClient) buildForm(audio []byte, filename, language string) (*bytes.Buffer, string, error) {
	if filename == "" {
		filename = defaultUploadName
	}

	var buf bytes.Buffer

	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile(formFieldFile, fileutil.SanitizeFilename(filename))
	if err != nil {
		return nil, "", fmt.Errorf(errFmtCreateFormFile, err)
	}

	_, err = part.Write(audio)
	if err != nil {
		return nil, "", fmt.Errorf(errFmtCopyAudio, err)
	}

	fields := [][2]string{{formFieldModel, c.model}, {formFieldLanguage, language}}
	for _, field := range fields {
		if field[1] == "" {
			continue
		}

		fieldErr := writer.WriteField(field[0], field[1])
		if fieldErr != nil {
			return nil, "", fmt.Errorf(errFmtWriteField, field[0], fieldErr)
		}
	}

	closeErr := writer.Close()
	if closeErr != nil {
		return nil, "", fmt.Errorf(errFmtCloseWriter, closeErr)
	}

	return &buf, writer.FormDataContentType(), nil
}
