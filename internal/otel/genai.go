package otel

import (
	"go.opentelemetry.io/otel/attribute"
)

// GenAI semantic conventions (OpenTelemetry GenAI SIG).
const (
	GenAISystem       = attribute.Key("gen_ai.system")        // e.g. "gemini", "openai"
	GenAIRequestModel = attribute.Key("gen_ai.request.model") // e.g. "gemini-2.0-flash"

	GenAIRequestTemperature = attribute.Key("gen_ai.request.temperature")
	GenAIRequestMaxTokens   = attribute.Key("gen_ai.request.max_tokens")
	GenAIRequestTopP        = attribute.Key("gen_ai.request.top_p")

	GenAIUsageInputTokens  = attribute.Key("gen_ai.usage.input_tokens")
	GenAIUsageOutputTokens = attribute.Key("gen_ai.usage.output_tokens")

	GenAIResponseFinishReason = attribute.Key("gen_ai.response.finish_reason")
)

// Pipeline attributes. Values only ever carry counts and categories, never
// the detected text.
const (
	PIIEntityCount    = attribute.Key("pii.entity_count")
	PIIDetectedCount  = attribute.Key("pii.detected_count")
	PIICategory       = attribute.Key("pii.category")
	RewriteStatus     = attribute.Key("rewrite.status")
	RewriteAttempts   = attribute.Key("rewrite.attempts")
	RestoreIncomplete = attribute.Key("restore.incomplete")
)

// LLMRequestAttributes creates the standard attributes for a generation call.
func LLMRequestAttributes(system, model string, temperature, topP float64, maxTokens int) []attribute.KeyValue {
	return []attribute.KeyValue{
		GenAISystem.String(system),
		GenAIRequestModel.String(model),
		GenAIRequestTemperature.Float64(temperature),
		GenAIRequestTopP.Float64(topP),
		GenAIRequestMaxTokens.Int(maxTokens),
	}
}

// LLMUsageAttributes creates attributes for token usage.
func LLMUsageAttributes(inputTokens, outputTokens int) []attribute.KeyValue {
	return []attribute.KeyValue{
		GenAIUsageInputTokens.Int(inputTokens),
		GenAIUsageOutputTokens.Int(outputTokens),
	}
}
