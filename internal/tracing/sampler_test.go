package tracing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func samplingParams(name string, attrs ...attribute.KeyValue) sdktrace.SamplingParameters {
	return sdktrace.SamplingParameters{
		ParentContext: context.Background(),
		Name:          name,
		Attributes:    attrs,
	}
}

func TestSelectiveSampler(t *testing.T) {
	sampler := NewSelectiveSampler()

	t.Run("allow-listed names recorded", func(t *testing.T) {
		for _, name := range []string{
			SpanChatCompletion,
			SpanQueryEmbedding,
			SpanBatchEmbedding,
			SpanKnowledgeRetrieval,
		} {
			result := sampler.ShouldSample(samplingParams(name))
			assert.Equal(t, sdktrace.RecordAndSample, result.Decision, "name %q", name)
		}
	})

	t.Run("operation-kind attribute recorded regardless of name", func(t *testing.T) {
		for _, kind := range []Kind{KindLLM, KindEmbedding, KindRetriever} {
			result := sampler.ShouldSample(samplingParams(
				"framework-internal-step",
				attribute.String(attrKind, string(kind)),
			))
			assert.Equal(t, sdktrace.RecordAndSample, result.Decision, "kind %q", kind)
		}
	})

	t.Run("everything else dropped", func(t *testing.T) {
		tests := []sdktrace.SamplingParameters{
			samplingParams("http.request"),
			samplingParams("flow-step"),
			samplingParams("generate", attribute.String(attrKind, "flow")),
			samplingParams("generate", attribute.String("other.key", "llm")),
		}
		for _, p := range tests {
			result := sampler.ShouldSample(p)
			assert.Equal(t, sdktrace.Drop, result.Decision, "name %q", p.Name)
		}
	})

	t.Run("description is stable", func(t *testing.T) {
		assert.NotEmpty(t, sampler.Description())
	})
}
