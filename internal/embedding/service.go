package embedding

import (
	"context"
	"fmt"

	"github.com/nexusflow/backend/internal/llm"
)

// ServiceError indicates the remote embedding call failed or returned a
// malformed response. It is distinct from "no embedding stored", which the
// vector store reports as a plain absence.
type ServiceError struct {
	Err error
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("embedding service: %v", e.Err)
}

func (e *ServiceError) Unwrap() error { return e.Err }

// Service obtains embedding vectors from the configured provider. No
// retries happen here: retrieval and backfill have different latency
// tolerance, so retry policy belongs to callers.
type Service struct {
	gateway  llm.Gateway
	provider string
	model    string
}

func NewService(gw llm.Gateway, model string) *Service {
	return &Service{gateway: gw, provider: "volcengine", model: model}
}

// Embed returns one vector per input text, in order.
func (s *Service) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	resp, err := s.gateway.Embed(ctx, llm.EmbeddingRequest{
		Provider: s.provider,
		Model:    s.model,
		Input:    texts,
	})
	if err != nil {
		return nil, &ServiceError{Err: err}
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, &ServiceError{Err: fmt.Errorf("expected %d embeddings, got %d", len(texts), len(resp.Embeddings))}
	}
	for i, e := range resp.Embeddings {
		if len(e) == 0 {
			return nil, &ServiceError{Err: fmt.Errorf("empty embedding at index %d", i)}
		}
	}

	return resp.Embeddings, nil
}

// EmbedSingle embeds one text.
func (s *Service) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := s.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return embeddings[0], nil
}

// Model reports the configured embedding model identifier.
func (s *Service) Model() string { return s.model }
