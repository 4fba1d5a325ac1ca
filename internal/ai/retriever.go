package ai

import (
	"context"

	"github.com/liliang-cn/claimdesk/internal/domain"
)

// Retriever supplies policy passages relevant to a question
type Retriever interface {
	Retrieve(ctx context.Context, query string) ([]domain.Source, error)
}

// PolicySearcher is the full-text index a PolicyRetriever reads from
type PolicySearcher interface {
	Search(ctx context.Context, query string, topK int) ([]domain.Source, error)
}

// PolicyRetriever retrieves the top matching policy chunks
type PolicyRetriever struct {
	index PolicySearcher
	topK  int
}

// NewPolicyRetriever creates a retriever over a policy index
func NewPolicyRetriever(index PolicySearcher, topK int) *PolicyRetriever {
	if topK <= 0 {
		topK = 3
	}
	return &PolicyRetriever{index: index, topK: topK}
}

// Retrieve implements Retriever
func (r *PolicyRetriever) Retrieve(ctx context.Context, query string) ([]domain.Source, error) {
	return r.index.Search(ctx, query, r.topK)
}
