package llm

import (
	"context"

	chromem "github.com/philippgille/chromem-go"
)

// EmbeddingFuncFor adapts an LLMClient into the embedding signature the
// vector store consumes. The model is fixed at wiring time; query and
// document embeddings must come from the same model to be comparable.
func EmbeddingFuncFor(client LLMClient, model string) chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		return client.CreateEmbedding(ctx, text, model)
	}
}
