// Package embeddings turns text into fixed-length vectors.
//
// A Provider is chosen once at startup from the embeddings config section:
// "none" (always unavailable), "openai", "ollama" or "tei". HTTP-backed
// variants report availability from their configuration alone and record
// call duration and errors as OpenTelemetry metrics.
package embeddings
