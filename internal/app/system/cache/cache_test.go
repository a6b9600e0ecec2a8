package cache

import (
	"context"
	"testing"
	"time"
)

type item struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestMemory_SetGetDelete(t *testing.T) {
	ctx := context.Background()
	c := NewMemory(time.Minute)

	var got item
	if ok, err := c.GetJSON(ctx, "k", &got); ok || err != nil {
		t.Fatalf("miss: ok=%v err=%v", ok, err)
	}

	if err := c.SetJSON(ctx, "k", item{Name: "a", Count: 2}, time.Minute); err != nil {
		t.Fatalf("SetJSON: %v", err)
	}
	ok, err := c.GetJSON(ctx, "k", &got)
	if !ok || err != nil {
		t.Fatalf("hit: ok=%v err=%v", ok, err)
	}
	if got.Name != "a" || got.Count != 2 {
		t.Errorf("got %+v", got)
	}

	_ = c.Delete(ctx, "k")
	if ok, _ := c.GetJSON(ctx, "k", &got); ok {
		t.Error("expected miss after Delete")
	}
}

func TestMemory_Expiry(t *testing.T) {
	ctx := context.Background()
	c := NewMemory(time.Minute)

	_ = c.SetJSON(ctx, "k", item{Name: "a"}, 10*time.Millisecond)
	time.Sleep(30 * time.Millisecond)

	var got item
	if ok, _ := c.GetJSON(ctx, "k", &got); ok {
		t.Error("expected expired entry to miss")
	}
}
