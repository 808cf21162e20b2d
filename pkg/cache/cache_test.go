package cache

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestNullCache(t *testing.T) {
	ctx := context.Background()
	c := NewNullCache()
	defer c.Close()

	data, hit, err := c.Get(ctx, "key")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if hit || data != nil {
		t.Error("NullCache.Get should always miss")
	}

	if err := c.Set(ctx, "key", []byte("value"), time.Hour); err != nil {
		t.Errorf("Set error: %v", err)
	}
	if _, hit, _ = c.Get(ctx, "key"); hit {
		t.Error("NullCache should not store data")
	}
	if err := c.Delete(ctx, "key"); err != nil {
		t.Errorf("Delete error: %v", err)
	}
}

func TestFileCache(t *testing.T) {
	ctx := context.Background()
	c, err := NewFileCache(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileCache: %v", err)
	}

	if _, hit, err := c.Get(ctx, "layout:abc"); hit || err != nil {
		t.Fatalf("Get on empty cache = %v, %v", hit, err)
	}
	if err := c.Set(ctx, "layout:abc", []byte(`{"nodes":[]}`), 0); err != nil {
		t.Fatalf("Set: %v", err)
	}
	data, hit, err := c.Get(ctx, "layout:abc")
	if err != nil || !hit || string(data) != `{"nodes":[]}` {
		t.Errorf("Get = %q, %v, %v", data, hit, err)
	}

	if err := c.Delete(ctx, "layout:abc"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, hit, _ := c.Get(ctx, "layout:abc"); hit {
		t.Error("entry survived Delete")
	}
	if err := c.Delete(ctx, "layout:abc"); err != nil {
		t.Errorf("second Delete = %v, want nil", err)
	}
}

func TestFileCache_Expiry(t *testing.T) {
	ctx := context.Background()
	c, _ := NewFileCache(t.TempDir())

	if err := c.Set(ctx, "k", []byte("v"), time.Nanosecond); err != nil {
		t.Fatalf("Set: %v", err)
	}
	time.Sleep(time.Millisecond)
	if _, hit, _ := c.Get(ctx, "k"); hit {
		t.Error("expired entry was served")
	}
	if _, err := os.Stat(c.path("k")); !os.IsNotExist(err) {
		t.Error("expired entry file was not removed")
	}
}

func TestFileCache_Corrupt(t *testing.T) {
	ctx := context.Background()
	c, _ := NewFileCache(t.TempDir())
	path := c.path("k")
	_ = os.MkdirAll(filepath.Dir(path), 0755)
	_ = os.WriteFile(path, []byte("{garbage"), 0644)

	if _, hit, err := c.Get(ctx, "k"); hit || err != nil {
		t.Errorf("corrupt entry = %v, %v, want miss", hit, err)
	}
}

func TestFileCache_Clear(t *testing.T) {
	ctx := context.Background()
	c, _ := NewFileCache(t.TempDir())
	for _, k := range []string{"a", "b", "c"} {
		_ = c.Set(ctx, k, []byte(k), 0)
	}

	n, err := c.Clear()
	if err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if n != 3 {
		t.Errorf("Clear removed %d entries, want 3", n)
	}
	if _, hit, _ := c.Get(ctx, "a"); hit {
		t.Error("entry survived Clear")
	}
}

func TestFileCache_Concurrent(t *testing.T) {
	ctx := context.Background()
	c, _ := NewFileCache(t.TempDir())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				_ = c.Set(ctx, "shared", []byte("payload"), 0)
				if data, hit, err := c.Get(ctx, "shared"); err != nil || (hit && string(data) != "payload") {
					t.Errorf("Get = %q, %v, %v", data, hit, err)
				}
			}
		}()
	}
	wg.Wait()
}

func TestEmptyKey(t *testing.T) {
	ctx := context.Background()
	fc, _ := NewFileCache(t.TempDir())
	rc := newRedisCache(&fakeRedis{})

	for name, c := range map[string]Cache{"file": fc, "redis": rc} {
		if _, _, err := c.Get(ctx, ""); !errors.Is(err, ErrInvalidKey) {
			t.Errorf("%s Get(\"\") = %v, want ErrInvalidKey", name, err)
		}
		if err := c.Set(ctx, "", nil, 0); !errors.Is(err, ErrInvalidKey) {
			t.Errorf("%s Set(\"\") = %v, want ErrInvalidKey", name, err)
		}
	}
	if _, err := NewFileCache(""); err == nil {
		t.Error("NewFileCache(\"\") should fail")
	}
}

func TestHash(t *testing.T) {
	h1 := Hash([]byte("hello"))
	if h1 != Hash([]byte("hello")) {
		t.Error("Hash should be deterministic")
	}
	if h1 == Hash([]byte("world")) {
		t.Error("different inputs should produce different hashes")
	}
	if len(h1) != 64 {
		t.Errorf("len(Hash) = %d, want 64", len(h1))
	}

	if HashJSON(map[string]int{"a": 1}) != HashJSON(map[string]int{"a": 1}) {
		t.Error("HashJSON should be deterministic")
	}
	if HashJSON(make(chan int)) != Hash([]byte("null")) {
		t.Error("unencodable values should hash like null")
	}
}

func TestDefaultKeyer(t *testing.T) {
	k := NewDefaultKeyer()

	lk1 := k.LayoutKey("snap", LayoutKeyOpts{ConfigHash: "c1"})
	lk2 := k.LayoutKey("snap", LayoutKeyOpts{ConfigHash: "c1", AutoPlace: true})
	if lk1 == lk2 {
		t.Error("different LayoutKeyOpts should produce different keys")
	}
	if !strings.HasPrefix(lk1, "layout:") {
		t.Errorf("LayoutKey = %s, want layout: prefix", lk1)
	}
	if lk1 != k.LayoutKey("snap", LayoutKeyOpts{ConfigHash: "c1"}) {
		t.Error("LayoutKey should be deterministic")
	}

	ak1 := k.ArtifactKey("layout", ArtifactKeyOpts{Format: "svg", Style: "simple"})
	ak2 := k.ArtifactKey("layout", ArtifactKeyOpts{Format: "png", Style: "simple"})
	if ak1 == ak2 {
		t.Error("different ArtifactKeyOpts should produce different keys")
	}
	if !strings.HasPrefix(ak1, "artifact:") {
		t.Errorf("ArtifactKey = %s, want artifact: prefix", ak1)
	}
}

func TestScopedKeyer(t *testing.T) {
	scoped := NewScopedKeyer(NewDefaultKeyer(), "graph:g1:")
	if got := scoped.LayoutKey("snap", LayoutKeyOpts{}); !strings.HasPrefix(got, "graph:g1:layout:") {
		t.Errorf("LayoutKey = %s, want graph:g1:layout: prefix", got)
	}

	nilInner := NewScopedKeyer(nil, "p:")
	want := "p:" + NewDefaultKeyer().ArtifactKey("l", ArtifactKeyOpts{Format: "svg"})
	if got := nilInner.ArtifactKey("l", ArtifactKeyOpts{Format: "svg"}); got != want {
		t.Errorf("ArtifactKey with nil inner = %s, want %s", got, want)
	}
}

// fakeRedis is an in-memory stand-in for the go-redis client.
type fakeRedis struct {
	mu   sync.Mutex
	data map[string]string
	ttl  map[string]time.Duration
	err  error
}

func (f *fakeRedis) Get(ctx context.Context, key string) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return redis.NewStringResult("", f.err)
	}
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeRedis) Set(ctx context.Context, key string, value any, exp time.Duration) *redis.StatusCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return redis.NewStatusResult("", f.err)
	}
	if f.data == nil {
		f.data, f.ttl = map[string]string{}, map[string]time.Duration{}
	}
	f.data[key] = string(value.([]byte))
	f.ttl[key] = exp
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, k := range keys {
		if _, ok := f.data[k]; ok {
			delete(f.data, k)
			n++
		}
	}
	return redis.NewIntResult(int64(n), f.err)
}

func TestRedisCache(t *testing.T) {
	ctx := context.Background()
	fake := &fakeRedis{}
	c := newRedisCache(fake)

	if _, hit, err := c.Get(ctx, "k"); hit || err != nil {
		t.Fatalf("Get on empty = %v, %v", hit, err)
	}
	if err := c.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if _, ok := fake.data["kinship:cache:k"]; !ok {
		t.Errorf("stored keys = %v, want prefixed key", fake.data)
	}
	if fake.ttl["kinship:cache:k"] != time.Minute {
		t.Errorf("ttl = %v, want 1m", fake.ttl["kinship:cache:k"])
	}
	data, hit, err := c.Get(ctx, "k")
	if string(data) != "v" || !hit || err != nil {
		t.Errorf("Get = %q, %v, %v", data, hit, err)
	}
	if err := c.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, hit, _ := c.Get(ctx, "k"); hit {
		t.Error("entry survived Delete")
	}
	if err := c.Close(); err != nil {
		t.Errorf("Close = %v", err)
	}
}

func TestRedisCache_Errors(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("connection refused")
	c := newRedisCache(&fakeRedis{err: boom}, WithRedisPrefix("x:"))

	if _, _, err := c.Get(ctx, "k"); !errors.Is(err, boom) {
		t.Errorf("Get error = %v, want wrapped %v", err, boom)
	}
	if err := c.Set(ctx, "k", []byte("v"), 0); !errors.Is(err, boom) {
		t.Errorf("Set error = %v, want wrapped %v", err, boom)
	}
	if err := c.Delete(ctx, "k"); !errors.Is(err, boom) {
		t.Errorf("Delete error = %v, want wrapped %v", err, boom)
	}
}
