package tracing

import (
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// recordedNames is the fixed allow-list of span names recorded even when
// the kind attribute is absent. Trace volume is dominated by
// framework-internal spans from lower layers; only RAG-relevant
// operations are worth exporting, so the decision is made at span
// creation rather than filtered post-hoc.
var recordedNames = map[string]struct{}{
	SpanChatCompletion:     {},
	SpanQueryEmbedding:     {},
	SpanBatchEmbedding:     {},
	SpanKnowledgeRetrieval: {},
}

// selectiveSampler records spans that carry a RAG operation-kind
// attribute or one of the allow-listed names, and drops everything else.
// The decision is evaluated once per span at creation, before any
// batching or export backpressure policy applies.
type selectiveSampler struct{}

// NewSelectiveSampler returns the sampler used by the recall
// TracerProvider.
func NewSelectiveSampler() sdktrace.Sampler {
	return selectiveSampler{}
}

func (selectiveSampler) ShouldSample(p sdktrace.SamplingParameters) sdktrace.SamplingResult {
	psc := trace.SpanContextFromContext(p.ParentContext)

	if _, ok := recordedNames[p.Name]; ok {
		return sdktrace.SamplingResult{
			Decision:   sdktrace.RecordAndSample,
			Tracestate: psc.TraceState(),
		}
	}

	for _, attr := range p.Attributes {
		if string(attr.Key) != attrKind {
			continue
		}
		switch Kind(attr.Value.AsString()) {
		case KindLLM, KindEmbedding, KindRetriever:
			return sdktrace.SamplingResult{
				Decision:   sdktrace.RecordAndSample,
				Tracestate: psc.TraceState(),
			}
		}
	}

	return sdktrace.SamplingResult{
		Decision:   sdktrace.Drop,
		Tracestate: psc.TraceState(),
	}
}

func (selectiveSampler) Description() string {
	return "RecallSelectiveSampler{kinds=llm|embedding|retriever}"
}
