package cache_test

import (
	"testing"
	"time"

	"github.com/bilusteknoloji/pipg/internal/registry/cache"
)

func TestPutGetRoundTrip(t *testing.T) {
	store, err := cache.New(cache.WithDir(t.TempDir()))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	env := cache.Envelope{
		ETag:         `"abc123"`,
		LastModified: "Mon, 01 Jan 2024 00:00:00 GMT",
		FetchedAt:    time.Now(),
		Body:         []byte(`{"name": "flask"}`),
	}

	if err := store.Put("simple", "https://pypi.org/simple/", "flask", env); err != nil {
		t.Fatalf("Put() error: %v", err)
	}

	got, ok := store.Get("simple", "https://pypi.org/simple/", "flask")
	if !ok {
		t.Fatal("Get() after Put() should find the entry")
	}

	if got.ETag != env.ETag || string(got.Body) != string(env.Body) {
		t.Errorf("Get() = %+v, want %+v", got, env)
	}
}

func TestGetMissingEntry(t *testing.T) {
	store, err := cache.New(cache.WithDir(t.TempDir()))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	if _, ok := store.Get("simple", "https://pypi.org/simple/", "does-not-exist"); ok {
		t.Error("Get() should report a miss for an absent entry")
	}
}

func TestDifferentIndexesDontCollide(t *testing.T) {
	store, err := cache.New(cache.WithDir(t.TempDir()))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	envA := cache.Envelope{Body: []byte("a")}
	envB := cache.Envelope{Body: []byte("b")}

	if err := store.Put("simple", "https://index-a.example/", "flask", envA); err != nil {
		t.Fatalf("Put() error: %v", err)
	}

	if err := store.Put("simple", "https://index-b.example/", "flask", envB); err != nil {
		t.Fatalf("Put() error: %v", err)
	}

	gotA, _ := store.Get("simple", "https://index-a.example/", "flask")
	gotB, _ := store.Get("simple", "https://index-b.example/", "flask")

	if string(gotA.Body) != "a" || string(gotB.Body) != "b" {
		t.Errorf("cache entries for the same object key under different indexes collided: %q, %q", gotA.Body, gotB.Body)
	}
}
