package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	cloakotel "github.com/dativo-io/cloak/internal/otel"
)

// DefaultGeminiURL is the Generative Language API endpoint.
const DefaultGeminiURL = "https://generativelanguage.googleapis.com"

// DefaultSafetyThreshold is applied to every harm category when a request
// does not set one.
const DefaultSafetyThreshold = "BLOCK_MEDIUM_AND_ABOVE"

var geminiHarmCategories = []string{
	"HARM_CATEGORY_HARASSMENT",
	"HARM_CATEGORY_HATE_SPEECH",
	"HARM_CATEGORY_SEXUALLY_EXPLICIT",
	"HARM_CATEGORY_DANGEROUS_CONTENT",
}

// GeminiProvider implements Provider for Gemini's generateContent REST API.
type GeminiProvider struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewGeminiProvider creates a Gemini provider. If baseURL is empty,
// defaults to DefaultGeminiURL.
func NewGeminiProvider(apiKey, baseURL string) *GeminiProvider {
	if baseURL == "" {
		baseURL = DefaultGeminiURL
	}
	return &GeminiProvider{
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
	}
}

// Name returns the provider identifier.
func (p *GeminiProvider) Name() string {
	return "gemini"
}

type geminiRequest struct {
	Contents          []geminiContent        `json:"contents"`
	SystemInstruction *geminiContent         `json:"systemInstruction,omitempty"`
	GenerationConfig  geminiGenerationConfig `json:"generationConfig"`
	SafetySettings    []geminiSafetySetting  `json:"safetySettings,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiGenerationConfig struct {
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
	Temperature     float64 `json:"temperature"`
	TopP            float64 `json:"topP,omitempty"`
}

type geminiSafetySetting struct {
	Category  string `json:"category"`
	Threshold string `json:"threshold"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
	} `json:"usageMetadata"`
	ModelVersion string `json:"modelVersion"`
}

type geminiErrorBody struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// Generate calls models/{model}:generateContent. Prompt blocks and
// SAFETY/RECITATION finish reasons are reported as a *BlockedError.
func (p *GeminiProvider) Generate(ctx context.Context, req *Request) (*Response, error) {
	ctx, span := tracer.Start(ctx, "gen_ai.generate",
		trace.WithAttributes(cloakotel.LLMRequestAttributes(p.Name(), req.Model, req.Temperature, req.TopP, req.MaxTokens)...))
	defer span.End()

	ctx, cancel := withDefaultTimeout(ctx)
	defer cancel()

	body, err := json.Marshal(p.buildRequest(req))
	if err != nil {
		return nil, fmt.Errorf("marshalling gemini request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent", p.baseURL, url.PathEscape(req.Model))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating gemini request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", p.apiKey)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "gemini api call failed")
		return nil, fmt.Errorf("gemini api call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 8192))
		msg := strings.TrimSpace(string(raw))
		var eb geminiErrorBody
		if json.Unmarshal(raw, &eb) == nil && eb.Error.Message != "" {
			msg = eb.Error.Message
		}
		span.SetStatus(codes.Error, "gemini api error")
		return nil, &APIError{Provider: p.Name(), StatusCode: resp.StatusCode, Message: msg}
	}

	var apiResp geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("decoding gemini response: %w", err)
	}
	span.SetAttributes(cloakotel.LLMUsageAttributes(apiResp.UsageMetadata.PromptTokenCount, apiResp.UsageMetadata.CandidatesTokenCount)...)

	if apiResp.PromptFeedback != nil && apiResp.PromptFeedback.BlockReason != "" {
		return nil, &BlockedError{Provider: p.Name(), Reason: geminiBlockReason(apiResp.PromptFeedback.BlockReason), Detail: apiResp.PromptFeedback.BlockReason}
	}
	if len(apiResp.Candidates) == 0 {
		return nil, fmt.Errorf("gemini api call: no candidates returned: %w", ErrEmptyResponse)
	}

	cand := apiResp.Candidates[0]
	span.SetAttributes(cloakotel.GenAIResponseFinishReason.String(cand.FinishReason))
	if isGeminiBlock(cand.FinishReason) {
		return nil, &BlockedError{Provider: p.Name(), Reason: geminiBlockReason(cand.FinishReason), Detail: cand.FinishReason}
	}

	var content strings.Builder
	for _, part := range cand.Content.Parts {
		content.WriteString(part.Text)
	}

	model := apiResp.ModelVersion
	if model == "" {
		model = req.Model
	}
	return &Response{
		Content:      content.String(),
		FinishReason: cand.FinishReason,
		InputTokens:  apiResp.UsageMetadata.PromptTokenCount,
		OutputTokens: apiResp.UsageMetadata.CandidatesTokenCount,
		Model:        model,
	}, nil
}

func (p *GeminiProvider) buildRequest(req *Request) geminiRequest {
	system, rest := splitSystem(req.Messages)

	out := geminiRequest{
		GenerationConfig: geminiGenerationConfig{
			MaxOutputTokens: req.MaxTokens,
			Temperature:     req.Temperature,
			TopP:            req.TopP,
		},
	}
	for _, m := range rest {
		role := "user"
		if m.Role == "assistant" {
			role = "model"
		}
		out.Contents = append(out.Contents, geminiContent{Role: role, Parts: []geminiPart{{Text: m.Content}}})
	}
	if len(system) > 0 {
		out.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: strings.Join(system, "\n\n")}}}
	}

	threshold := req.SafetyThreshold
	if threshold == "" {
		threshold = DefaultSafetyThreshold
	}
	for _, c := range geminiHarmCategories {
		out.SafetySettings = append(out.SafetySettings, geminiSafetySetting{Category: c, Threshold: threshold})
	}
	return out
}

func isGeminiBlock(finishReason string) bool {
	switch finishReason {
	case "SAFETY", "RECITATION", "BLOCKLIST", "PROHIBITED_CONTENT", "SPII":
		return true
	}
	return false
}

func geminiBlockReason(signal string) string {
	if signal == "RECITATION" {
		return BlockRecitation
	}
	return BlockSafety
}
