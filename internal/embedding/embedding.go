// Package embedding provides vector embedding generation for retrieval
// queries.
//
// Defines a Provider interface with Ollama, OpenAI, and noop
// implementations. The interface allows swapping embedding providers
// without changing consumers.
package embedding

import "context"

// Provider generates vector embeddings from text.
type Provider interface {
	// Embed generates a single embedding vector from text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns the embedding vector dimensionality.
	Dimensions() int
}

// NoopProvider returns zero vectors. Used when no embedding backend is
// configured; retrievers treat zero vectors as "no semantic signal".
type NoopProvider struct {
	dims int
}

// NewNoopProvider creates a noop provider with the given dimensionality.
func NewNoopProvider(dims int) *NoopProvider {
	return &NoopProvider{dims: dims}
}

// Embed returns a zero vector.
func (p *NoopProvider) Embed(_ context.Context, _ string) ([]float32, error) {
	return make([]float32, p.dims), nil
}

// Dimensions returns the configured vector size.
func (p *NoopProvider) Dimensions() int {
	return p.dims
}

// IsZeroVector reports whether every element of the vector is zero
// (the noop provider's output).
func IsZeroVector(v []float32) bool {
	for _, val := range v {
		if val != 0 {
			return false
		}
	}
	return true
}
