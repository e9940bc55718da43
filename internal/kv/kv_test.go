package kv_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"sketchpad/internal/kv"
)

func testStores(t *testing.T) map[string]kv.Store {
	t.Helper()
	mem := kv.NewMemory()
	bdb, err := kv.NewBadger(kv.BadgerOptions{Dir: filepath.Join(t.TempDir(), "badger")})
	if err != nil {
		t.Fatalf("NewBadger: %v", err)
	}
	t.Cleanup(func() {
		mem.Close()
		bdb.Close()
	})
	return map[string]kv.Store{"memory": mem, "badger": bdb}
}

func TestGetSetDelete(t *testing.T) {
	ctx := context.Background()
	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			const key = "iml:training"

			// Get non-existent key.
			if _, err := s.Get(ctx, key); !errors.Is(err, kv.ErrNotFound) {
				t.Fatalf("expected ErrNotFound, got %v", err)
			}

			// Set and Get.
			if err := s.Set(ctx, key, []byte("hello")); err != nil {
				t.Fatalf("Set: %v", err)
			}
			got, err := s.Get(ctx, key)
			if err != nil || string(got) != "hello" {
				t.Fatalf("Get = %q, %v; want hello", got, err)
			}

			// Mutating the returned slice must not change the stored value.
			got[0] = 'j'
			again, _ := s.Get(ctx, key)
			if string(again) != "hello" {
				t.Fatalf("stored value changed to %q", again)
			}

			// Overwrite.
			if err := s.Set(ctx, key, []byte("world")); err != nil {
				t.Fatalf("Set overwrite: %v", err)
			}
			if got, _ := s.Get(ctx, key); string(got) != "world" {
				t.Fatalf("Get = %q, want world", got)
			}

			// Delete.
			if err := s.Delete(ctx, key); err != nil {
				t.Fatalf("Delete: %v", err)
			}
			if _, err := s.Get(ctx, key); !errors.Is(err, kv.ErrNotFound) {
				t.Fatalf("expected ErrNotFound after delete, got %v", err)
			}

			// Delete non-existent key should not error.
			if err := s.Delete(ctx, "no:such:key"); err != nil {
				t.Fatalf("Delete non-existent: %v", err)
			}
		})
	}
}

func TestBadgerPersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "badger")

	s, err := kv.Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.Set(ctx, "k", []byte("v")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s, err = kv.Open(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	got, err := s.Get(ctx, "k")
	if err != nil || string(got) != "v" {
		t.Fatalf("Get after reopen = %q, %v", got, err)
	}
}

func TestOpenEmptyDirIsMemory(t *testing.T) {
	s, err := kv.Open("")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, ok := s.(*kv.Memory); !ok {
		t.Fatalf("Open(\"\") = %T, want *kv.Memory", s)
	}
}
