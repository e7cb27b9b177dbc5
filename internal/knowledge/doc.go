// Package knowledge implements the private knowledge base: chunking,
// embedding, vector storage and similarity retrieval.
//
// Ingestion path: a resource's raw text is split on sentence boundaries
// (Chunks), the whole batch is embedded in one capability call
// (Engine.EmbedBatch), and all (content, vector) pairs are written to the
// pgvector-backed store in one transaction (Store.AppendMany). Ingestion
// is atomic per resource: a malformed batch result or a storage failure
// stores nothing.
//
// Retrieval path: the query is embedded (Engine.EmbedQuery) and matched
// against stored vectors by cosine distance, keeping at most TopK rows
// under the distance threshold. Retrieval never returns an error to its
// caller — its output is tool text consumed by a language model, which
// must receive some text to reason over, so failures degrade to the
// RetrievalFailed sentinel and empty result sets to NoInformation.
//
// Every embedding and retrieval operation is wrapped in a tracing span
// with typed output attributes (vectors, per-document scores).
package knowledge
