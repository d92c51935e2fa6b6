package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/harshraj78/legal-check-ai/config"
	"google.golang.org/api/option"
)

// AnalysisPayload is the structured risk assessment returned by an engine.
type AnalysisPayload struct {
	RiskScore       int      `json:"risk_score"`
	Summary         string   `json:"summary"`
	HighRiskClauses []string `json:"high_risk_clauses"`
}

// Analyzer submits contract text to an analysis engine. Errors are *AnalysisError.
type Analyzer interface {
	Analyze(ctx context.Context, text string) (*AnalysisPayload, error)
}

// wirePayload uses pointers so that absent fields can be told apart from zero values.
type wirePayload struct {
	RiskScore       *int      `json:"risk_score"`
	Summary         *string   `json:"summary"`
	HighRiskClauses *[]string `json:"high_risk_clauses"`
}

// ParseAnalysisPayload decodes data as exactly one AnalysisPayload object.
// Unknown fields, missing fields, trailing data and scores outside [0, 100]
// are rejected with ErrInvalidResponse.
func ParseAnalysisPayload(data []byte) (*AnalysisPayload, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var w wirePayload
	if err := dec.Decode(&w); err != nil {
		return nil, invalidResponse(fmt.Errorf("decode: %w", err))
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, invalidResponse(errors.New("unexpected data after payload"))
	}

	switch {
	case w.RiskScore == nil:
		return nil, invalidResponse(errors.New("missing risk_score"))
	case w.Summary == nil:
		return nil, invalidResponse(errors.New("missing summary"))
	case w.HighRiskClauses == nil:
		return nil, invalidResponse(errors.New("missing high_risk_clauses"))
	}
	if *w.RiskScore < 0 || *w.RiskScore > 100 {
		return nil, invalidResponse(fmt.Errorf("risk_score %d out of range", *w.RiskScore))
	}

	clauses := *w.HighRiskClauses
	if clauses == nil {
		clauses = []string{}
	}
	return &AnalysisPayload{
		RiskScore:       *w.RiskScore,
		Summary:         *w.Summary,
		HighRiskClauses: clauses,
	}, nil
}

// NewAnalyzer builds the engine selected by cfg.Engine.
func NewAnalyzer(ctx context.Context, cfg *config.AnalysisConfig) (Analyzer, error) {
	switch cfg.Engine {
	case "http":
		return NewHTTPAnalyzer(cfg), nil
	case "gemini":
		return NewGeminiAnalyzer(ctx, &cfg.Gemini)
	case "mock", "":
		return MockAnalyzer{}, nil
	default:
		return nil, fmt.Errorf("unsupported analysis engine %q", cfg.Engine)
	}
}

// HTTPAnalyzer calls a remote analysis service over JSON.
type HTTPAnalyzer struct {
	apiURL     string
	apiToken   string
	httpClient *http.Client
}

type analyzeRequest struct {
	Text string `json:"text"`
}

func NewHTTPAnalyzer(cfg *config.AnalysisConfig) *HTTPAnalyzer {
	return &HTTPAnalyzer{
		apiURL:   strings.TrimRight(cfg.APIURL, "/"),
		apiToken: cfg.APIToken,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// Analyze posts text to {api_url}/analyze. Transport failures and non-2xx
// statuses are ErrEngineUnavailable; a body of the wrong shape is ErrInvalidResponse.
func (a *HTTPAnalyzer) Analyze(ctx context.Context, text string) (*AnalysisPayload, error) {
	jsonData, err := json.Marshal(analyzeRequest{Text: text})
	if err != nil {
		return nil, engineUnavailable(fmt.Errorf("failed to marshal request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.apiURL+"/analyze", bytes.NewReader(jsonData))
	if err != nil {
		return nil, engineUnavailable(fmt.Errorf("failed to create request: %w", err))
	}
	if a.apiToken != "" {
		req.Header.Set("Authorization", "Bearer "+a.apiToken)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, engineUnavailable(fmt.Errorf("failed to send request: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, engineUnavailable(fmt.Errorf("failed to read response: %w", err))
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, engineUnavailable(fmt.Errorf("engine returned status %d: %s", resp.StatusCode, truncate(string(body), 200)))
	}

	return ParseAnalysisPayload(body)
}

const analysisPrompt = `You are a senior legal counsel.

Analyze the following contract and return ONLY valid JSON with this exact structure:

{
  "risk_score": number between 0 and 100,
  "summary": string,
  "high_risk_clauses": array of strings
}

Rules:
- No explanations
- No markdown
- No extra text

Contract text:
%s`

// GeminiAnalyzer asks a Gemini model for the assessment in JSON mode.
type GeminiAnalyzer struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

func NewGeminiAnalyzer(ctx context.Context, cfg *config.GeminiConfig) (*GeminiAnalyzer, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini api key is required")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	model := client.GenerativeModel(cfg.Model)
	model.SetTemperature(0.2)
	model.ResponseMIMEType = "application/json"

	return &GeminiAnalyzer{client: client, model: model}, nil
}

func (g *GeminiAnalyzer) Analyze(ctx context.Context, text string) (*AnalysisPayload, error) {
	resp, err := g.model.GenerateContent(ctx, genai.Text(fmt.Sprintf(analysisPrompt, text)))
	if err != nil {
		return nil, engineUnavailable(fmt.Errorf("gemini request failed: %w", err))
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, invalidResponse(errors.New("gemini returned no candidates"))
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			sb.WriteString(string(txt))
		}
	}
	return ParseAnalysisPayload([]byte(sb.String()))
}

// Close releases the underlying client.
func (g *GeminiAnalyzer) Close() error {
	return g.client.Close()
}

// MockAnalyzer returns a fixed assessment without calling any engine.
type MockAnalyzer struct {
	// Delay, when set, is waited out (or until ctx is done) before answering.
	Delay time.Duration
}

func (m MockAnalyzer) Analyze(ctx context.Context, _ string) (*AnalysisPayload, error) {
	if m.Delay > 0 {
		select {
		case <-time.After(m.Delay):
		case <-ctx.Done():
			return nil, engineUnavailable(ctx.Err())
		}
	}
	return &AnalysisPayload{
		RiskScore: 42,
		Summary: "The contract contains standard clauses with moderate risk. " +
			"Termination and liability provisions should be reviewed.",
		HighRiskClauses: []string{
			"Termination without notice",
			"Unlimited liability",
		},
	}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
