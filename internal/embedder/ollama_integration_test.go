//go:build integration

package embedder

import (
	"context"
	"math"
	"os"
	"testing"
	"time"
)

// TestOllamaEmbedder_RanksRelatedReport embeds a query and two sitrep texts
// against a local Ollama and checks the related report scores higher.
//
//	ollama pull nomic-embed-text
//	go test -tags=integration -run TestOllamaEmbedder_RanksRelatedReport ./internal/embedder/
func TestOllamaEmbedder_RanksRelatedReport(t *testing.T) {
	host := os.Getenv("OLLAMA_HOST")
	if host == "" {
		host = "http://localhost:11434"
	}
	model := os.Getenv("EMBEDDING_MODEL")
	if model == "" {
		model = "nomic-embed-text"
	}
	emb := NewOllamaEmbedder(&OllamaConfig{Host: host, Model: model})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	texts := []string{
		"Query: Which file servers were encrypted?\nAnalysis Focus: ransomware impact on file servers",
		"title: LockBit ransomware\ndescription: Shares on FS01 and FS02 encrypted, ransom note dropped",
		"title: Phishing wave\ndescription: Finance staff received invoice lures with credential harvesting links",
	}
	vecs, err := emb.Embed(ctx, texts)
	if err != nil {
		t.Fatalf("Embed() error = %v (is Ollama running with %q pulled?)", err, model)
	}
	if len(vecs) != len(texts) {
		t.Fatalf("got %d vectors, want %d", len(vecs), len(texts))
	}
	for i, v := range vecs {
		if len(v) != len(vecs[0]) || len(v) == 0 {
			t.Fatalf("vector %d has %d dimensions, want %d", i, len(v), len(vecs[0]))
		}
	}

	related, unrelated := cosine(vecs[0], vecs[1]), cosine(vecs[0], vecs[2])
	if related <= unrelated {
		t.Errorf("cosine(query, ransomware) = %.3f, cosine(query, phishing) = %.3f", related, unrelated)
	}
	t.Logf("model=%s dim=%d (set EMBEDDING_DIMENSIONS=%d)", model, len(vecs[0]), len(vecs[0]))
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
