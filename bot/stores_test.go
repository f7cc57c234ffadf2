package bot

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// memKV is an in-memory KV for tests. It records the ttl of the last Set per
// key so callers can assert expiry behavior without waiting.
type memKV struct {
	mu   sync.Mutex
	data map[string]string
	ttls map[string]time.Duration

	getErr error
	setErr error
}

func newMemKV() *memKV {
	return &memKV{data: make(map[string]string), ttls: make(map[string]time.Duration)}
}

func (m *memKV) Get(ctx context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return "", false, m.getErr
	}
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memKV) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setErr != nil {
		return m.setErr
	}
	m.data[key] = value
	m.ttls[key] = ttl
	return nil
}

func (m *memKV) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	delete(m.ttls, key)
	return nil
}

func TestDedupPresence(t *testing.T) {
	ctx := context.Background()
	kv := newMemKV()
	d := &Dedup{KV: kv}

	if d.Present(ctx, "chat1") {
		t.Fatal("expected no presence before MarkPresent")
	}
	d.MarkPresent(ctx, "chat1", 30*time.Second)
	if !d.Present(ctx, "chat1") {
		t.Fatal("expected presence after MarkPresent")
	}
	if got := kv.ttls["presence:chat1"]; got != 30*time.Second {
		t.Errorf("presence ttl = %v, want 30s", got)
	}

	// Sessions are independent
	if d.Present(ctx, "chat2") {
		t.Error("presence leaked across sessions")
	}

	if err := d.ClearPresence(ctx, "chat1"); err != nil {
		t.Fatalf("ClearPresence: %v", err)
	}
	if d.Present(ctx, "chat1") {
		t.Error("expected no presence after ClearPresence")
	}
}

func TestDedupPresenceDefaultTTL(t *testing.T) {
	ctx := context.Background()
	kv := newMemKV()
	d := &Dedup{KV: kv}

	d.MarkPresent(ctx, "chat1", 0)
	if got := kv.ttls["presence:chat1"]; got != DefaultPresenceTTL {
		t.Errorf("presence ttl = %v, want default %v", got, DefaultPresenceTTL)
	}
}

func TestDedupProcessed(t *testing.T) {
	ctx := context.Background()
	kv := newMemKV()
	d := &Dedup{KV: kv}

	if d.Seen(ctx, "msg1") {
		t.Fatal("expected msg1 unseen")
	}
	d.MarkProcessed(ctx, "msg1")
	if !d.Seen(ctx, "msg1") {
		t.Fatal("expected msg1 seen after MarkProcessed")
	}
	// Processed markers never expire
	if got := kv.ttls["processed:msg1"]; got != 0 {
		t.Errorf("processed ttl = %v, want 0 (no expiry)", got)
	}
	if d.Seen(ctx, "msg2") {
		t.Error("seen leaked across message ids")
	}
}

func TestDedupReadErrorIsMiss(t *testing.T) {
	ctx := context.Background()
	kv := newMemKV()
	d := &Dedup{KV: kv}

	d.MarkProcessed(ctx, "msg1")
	d.MarkPresent(ctx, "chat1", 0)

	kv.getErr = errors.New("store down")
	if d.Seen(ctx, "msg1") {
		t.Error("read error should report unseen")
	}
	if d.Present(ctx, "chat1") {
		t.Error("read error should report absent")
	}
}

func TestCursors(t *testing.T) {
	ctx := context.Background()
	kv := newMemKV()
	c := &Cursors{KV: kv}

	if _, ok := c.Load(ctx, "chat1"); ok {
		t.Fatal("expected no cursor initially")
	}
	c.Save(ctx, "chat1", "tokenA")
	got, ok := c.Load(ctx, "chat1")
	if !ok || got != "tokenA" {
		t.Fatalf("Load = (%q, %v), want (tokenA, true)", got, ok)
	}
	c.Save(ctx, "chat1", "tokenB")
	if got, _ := c.Load(ctx, "chat1"); got != "tokenB" {
		t.Errorf("Load after overwrite = %q, want tokenB", got)
	}
	if err := c.Clear(ctx, "chat1"); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if _, ok := c.Load(ctx, "chat1"); ok {
		t.Error("expected no cursor after Clear")
	}
}

func TestKeyFamiliesDisjoint(t *testing.T) {
	// The same id used as session and message must land in different keys.
	if presenceKey("x") == cursorKey("x") || cursorKey("x") == processedKey("x") || presenceKey("x") == processedKey("x") {
		t.Error("key families collide")
	}
}
