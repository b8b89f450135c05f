package cache

import (
	"context"
	"testing"
	"time"
)

func TestCache_SetGet(t *testing.T) {
	ctx := context.Background()
	c := New[string, int](time.Minute)
	defer c.Close()

	c.Set(ctx, "a", 1, 0)

	got, ok := c.Get(ctx, "a")
	if !ok {
		t.Fatal("Get() miss, want hit")
	}
	if got != 1 {
		t.Errorf("Get() = %d, want 1", got)
	}
}

func TestCache_ExpiredEntryMisses(t *testing.T) {
	ctx := context.Background()
	c := New[string, string](time.Minute)
	defer c.Close()

	c.Set(ctx, "k", "v", 10*time.Millisecond)
	time.Sleep(20 * time.Millisecond)

	if _, ok := c.Get(ctx, "k"); ok {
		t.Error("Get() hit on expired entry, want miss")
	}
}

func TestCache_Delete(t *testing.T) {
	ctx := context.Background()
	c := New[int, string](time.Minute)
	defer c.Close()

	c.Set(ctx, 7, "x", 0)
	c.Delete(ctx, 7)

	if _, ok := c.Get(ctx, 7); ok {
		t.Error("Get() hit after Delete, want miss")
	}
}

func TestCache_CloseIsIdempotent(t *testing.T) {
	c := New[string, int](time.Minute)
	c.Close()
	c.Close()
}
