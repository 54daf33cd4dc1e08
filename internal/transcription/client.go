package transcription

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"voice-diary-go/internal/logger"
	"voice-diary-go/internal/recorder"
)

// DefaultTimeout bounds one upload round trip.
const DefaultTimeout = 60 * time.Second

// ClovaClient uploads audio to the Clova Speech long-sentence recognizer.
type ClovaClient struct {
	endpoint   string
	apiKey     string
	language   string
	httpClient *http.Client
	log        *logger.Logger
}

// ClovaOption configures the ClovaClient.
type ClovaOption func(*ClovaClient)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) ClovaOption {
	return func(cl *ClovaClient) {
		cl.httpClient = c
	}
}

// WithTimeout sets the HTTP request timeout.
func WithTimeout(d time.Duration) ClovaOption {
	return func(cl *ClovaClient) {
		cl.httpClient.Timeout = d
	}
}

// WithLanguage sets the recognition language (default ko-KR).
func WithLanguage(lang string) ClovaOption {
	return func(cl *ClovaClient) {
		if lang != "" {
			cl.language = lang
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) ClovaOption {
	return func(cl *ClovaClient) {
		cl.log = l
	}
}

// NewClovaClient creates a client for the upload endpoint (the full
// ".../recognizer/upload" URL).
func NewClovaClient(endpoint, apiKey string, opts ...ClovaOption) *ClovaClient {
	c := &ClovaClient{
		endpoint:   endpoint,
		apiKey:     apiKey,
		language:   "ko-KR",
		httpClient: &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.log == nil {
		c.log = logger.New()
	}
	c.log = c.log.Component("transcription")
	return c
}

type clovaParams struct {
	Language    string           `json:"language"`
	Completion  string           `json:"completion"`
	FullText    bool             `json:"fullText"`
	Diarization clovaDiarization `json:"diarization"`
}

type clovaDiarization struct {
	Enable bool `json:"enable"`
}

type clovaResponse struct {
	Result  string  `json:"result"`
	Message string  `json:"message"`
	Text    *string `json:"text"`
}

// Transcribe uploads the asset and returns the recognized full text.
func (c *ClovaClient) Transcribe(ctx context.Context, asset recorder.Asset) (string, error) {
	if !asset.Finalized {
		return "", ErrRecordingActive
	}
	log := c.log.WithField("asset_id", asset.ID).WithField("size", asset.Size)
	log.Info("starting transcription")

	body, contentType, err := c.buildForm(asset.Path)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTranscriptionFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, body)
	if err != nil {
		return "", fmt.Errorf("%w: create request: %v", ErrTranscriptionFailed, err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-CLOVASPEECH-API-KEY", c.apiKey)

	var out clovaResponse
	if err := c.doJSON(req, &out); err != nil {
		log.WithError(err).Warn("transcription request failed")
		return "", fmt.Errorf("%w: %v", ErrTranscriptionFailed, err)
	}
	if out.Result != "" && !strings.EqualFold(out.Result, "COMPLETED") {
		return "", fmt.Errorf("%w: result=%s message=%s", ErrTranscriptionFailed, out.Result, out.Message)
	}
	if out.Text == nil {
		return "", fmt.Errorf("%w: response has no text field", ErrTranscriptionFailed)
	}

	text := strings.TrimSpace(*out.Text)
	log.WithField("chars", len([]rune(text))).Info("transcription completed")
	return text, nil
}

func (c *ClovaClient) buildForm(path string) (io.Reader, string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, "", fmt.Errorf("open audio file: %w", err)
	}
	defer file.Close()

	var b bytes.Buffer
	w := multipart.NewWriter(&b)

	part, err := w.CreateFormFile("media", filepath.Base(path))
	if err != nil {
		return nil, "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, "", fmt.Errorf("copy audio data: %w", err)
	}

	params, _ := json.Marshal(clovaParams{
		Language:    c.language,
		Completion:  "sync",
		FullText:    true,
		Diarization: clovaDiarization{Enable: false},
	})
	if err := w.WriteField("params", string(params)); err != nil {
		return nil, "", fmt.Errorf("write params: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart writer: %w", err)
	}
	return &b, w.FormDataContentType(), nil
}

// doJSON performs a single request; the pipeline never retries on its own.
func (c *ClovaClient) doJSON(req *http.Request, target any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return fmt.Errorf("auth error: status %d: %s", resp.StatusCode, string(body))
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("API error: status %d: %s", resp.StatusCode, string(body))
	}
	if len(body) == 0 {
		return fmt.Errorf("empty body")
	}
	if err := json.Unmarshal(body, target); err != nil {
		return fmt.Errorf("json decode error: %v body=%s", err, string(body))
	}
	return nil
}
