package main

import (
	"testing"

	"github.com/kailas-cloud/kbase/internal/config"
)

func TestClientOptions_Integrations(t *testing.T) {
	cfg := config.Config{}
	cfg.Storage.Driver = config.DriverPostgres
	cfg.Storage.Postgres.DSN = "postgres://localhost/kbase"

	base, err := clientOptions(&cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cfg.Index.Driver = config.IndexDriverQdrant
	cfg.Index.Addr = "localhost:6334"
	cfg.Index.Collection = "kbase_documents"
	cfg.Embedding.Dimensions = 8
	withIndex, err := clientOptions(&cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(withIndex) != len(base)+1 {
		t.Errorf("index option missing: %d options, base %d", len(withIndex), len(base))
	}

	cfg.Events.NATSURL = "nats://localhost:4222"
	withEvents, err := clientOptions(&cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(withEvents) != len(base)+2 {
		t.Errorf("events option missing: %d options, base %d", len(withEvents), len(base))
	}
}

func TestClientOptions_MemoryRejected(t *testing.T) {
	cfg := config.Config{}
	cfg.Storage.Driver = config.DriverMemory
	if _, err := clientOptions(&cfg); err == nil {
		t.Fatal("expected error for the memory driver")
	}
}
