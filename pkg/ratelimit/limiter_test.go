package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestTokenBucket(t *testing.T) {
	tb := New(1, 3)

	// Test initial burst
	for i := 0; i < 3; i++ {
		if !tb.Allow() {
			t.Errorf("Expected token %d to be available", i+1)
		}
	}

	// Test exhaustion
	if tb.Allow() {
		t.Error("Expected no more tokens to be available")
	}

	// Test reset
	tb.Reset()
	if !tb.Allow() {
		t.Error("Expected tokens to be available after reset")
	}
}

func TestTokenBucketWait(t *testing.T) {
	tb := New(50, 1)
	if !tb.Allow() {
		t.Fatal("Expected first request to be allowed")
	}

	start := time.Now()
	if err := tb.Wait(context.Background()); err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 10*time.Millisecond {
		t.Errorf("Expected Wait to block for about 20ms, returned after %v", elapsed)
	}
}

func TestTokenBucketWaitCancelled(t *testing.T) {
	tb := New(0.001, 1)
	tb.Allow()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := tb.Wait(ctx); err == nil {
		t.Error("Expected Wait to fail once the context is done")
	}
}

func TestUnlimited(t *testing.T) {
	l := New(0, 0)
	if _, ok := l.(Unlimited); !ok {
		t.Fatalf("Expected Unlimited for a zero rate, got %T", l)
	}
	for i := 0; i < 1000; i++ {
		if !l.Allow() {
			t.Fatal("Unlimited must always allow")
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	if err := l.Wait(ctx); err != nil {
		t.Errorf("Expected nil, got %v", err)
	}
	cancel()
	if err := l.Wait(ctx); err == nil {
		t.Error("Expected an error from a cancelled context")
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry(1, 1)

	nogi := r.Get("nogi")
	if nogi != r.Get("nogi") {
		t.Error("Expected the same limiter for the same key")
	}

	saku := r.Get("saku")
	if !nogi.Allow() {
		t.Fatal("Expected first nogi request to be allowed")
	}
	// groups do not share a bucket
	if !saku.Allow() {
		t.Error("Expected saku to have its own bucket")
	}
}
