package domain

import (
	"context"
	"errors"
	"testing"
)

type recordingEmbedder struct {
	got string
	err error
}

func (r *recordingEmbedder) Embed(_ context.Context, text string) (EmbeddingResult, error) {
	r.got = text
	if r.err != nil {
		return EmbeddingResult{}, r.err
	}
	return EmbeddingResult{Embedding: []float32{1, 2}}, nil
}

func TestInstructionEmbedder_PrependsInstruction(t *testing.T) {
	inner := &recordingEmbedder{}
	e := NewInstructionEmbedder(inner, "query: ")

	res, err := e.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inner.got != "query: hello" {
		t.Errorf("inner got %q", inner.got)
	}
	if len(res.Embedding) != 2 {
		t.Errorf("embedding = %v", res.Embedding)
	}
}

func TestInstructionEmbedder_BlankText(t *testing.T) {
	inner := &recordingEmbedder{}
	e := NewInstructionEmbedder(inner, "passage: ")

	_, err := e.Embed(context.Background(), "  \n\t")
	if !errors.Is(err, ErrNothingToEmbed) {
		t.Fatalf("expected ErrNothingToEmbed, got %v", err)
	}
	if inner.got != "" {
		t.Error("inner embedder must not be called for blank text")
	}
}

func TestInstructionEmbedder_WrapsError(t *testing.T) {
	inner := &recordingEmbedder{err: ErrProviderTimeout}
	e := NewInstructionEmbedder(inner, "")

	_, err := e.Embed(context.Background(), "x")
	if !errors.Is(err, ErrProviderTimeout) {
		t.Fatalf("expected ErrProviderTimeout in chain, got %v", err)
	}
}

func TestFetchStatusError(t *testing.T) {
	err := NewFetchStatus("https://example.com", 404)
	if !errors.Is(err, ErrFetch) {
		t.Fatal("FetchStatusError must unwrap to ErrFetch")
	}
	var fse *FetchStatusError
	if !errors.As(err, &fse) || fse.StatusCode != 404 {
		t.Fatalf("errors.As failed: %v", err)
	}
}
