package cache

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/csvwdc/internal/config"
	"github.com/JonMunkholm/csvwdc/internal/infer"
)

func sampleResult(t *testing.T) *infer.Result {
	t.Helper()
	res, err := infer.Infer("name,age,score,ok\nann,30,1.5,true\nbob,,2,false\n", ",")
	require.NoError(t, err)
	return res
}

func TestFingerprint(t *testing.T) {
	a := Fingerprint("https://example.com/a.csv", "GET", ",")
	assert.Len(t, a, 64)
	assert.Equal(t, a, Fingerprint("https://example.com/a.csv", "GET", ","))
	assert.NotEqual(t, a, Fingerprint("https://example.com/a.csv", "POST", ","))
	assert.NotEqual(t, Fingerprint("ab", "c"), Fingerprint("a", "bc"))
}

func TestMemory_GetPutDelete(t *testing.T) {
	c := NewMemory(4, time.Hour)
	defer c.Close()

	res := sampleResult(t)

	_, ok, err := c.Get("k")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Put("k", res))
	got, ok, err := c.Get("k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Same(t, res, got)

	require.NoError(t, c.Delete("k"))
	require.NoError(t, c.Delete("k"))
	_, ok, _ = c.Get("k")
	assert.False(t, ok)
}

func TestMemory_Expiry(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewMemory(0, time.Minute)
	c.now = func() time.Time { return now }

	require.NoError(t, c.Put("k", sampleResult(t)))

	now = now.Add(59 * time.Second)
	_, ok, _ := c.Get("k")
	assert.True(t, ok)

	now = now.Add(time.Second)
	_, ok, _ = c.Get("k")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestMemory_NoTTLNeverExpires(t *testing.T) {
	now := time.Now()
	c := NewMemory(0, 0)
	c.now = func() time.Time { return now }

	require.NoError(t, c.Put("k", sampleResult(t)))
	now = now.Add(1000 * time.Hour)
	_, ok, _ := c.Get("k")
	assert.True(t, ok)
}

func TestMemory_EvictsLeastRecentlyUsed(t *testing.T) {
	c := NewMemory(2, 0)
	res := sampleResult(t)

	require.NoError(t, c.Put("a", res))
	require.NoError(t, c.Put("b", res))

	// Touch a so b becomes the eviction candidate.
	_, ok, _ := c.Get("a")
	require.True(t, ok)

	require.NoError(t, c.Put("c", res))
	assert.Equal(t, 2, c.Len())

	_, ok, _ = c.Get("b")
	assert.False(t, ok, "b should have been evicted")
	_, ok, _ = c.Get("a")
	assert.True(t, ok)
	_, ok, _ = c.Get("c")
	assert.True(t, ok)
}

func TestMemory_Closed(t *testing.T) {
	c := NewMemory(1, 0)
	require.NoError(t, c.Close())

	_, _, err := c.Get("k")
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, c.Put("k", nil), ErrClosed)
	assert.ErrorIs(t, c.Delete("k"), ErrClosed)
}

func TestPebble_RoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "cache")
	res := sampleResult(t)

	p, err := OpenPebble(dir, time.Hour)
	require.NoError(t, err)
	require.NoError(t, p.Put("k", res))
	require.NoError(t, p.Close())

	// Reopen to confirm the entry was persisted.
	p, err = OpenPebble(dir, time.Hour)
	require.NoError(t, err)
	defer p.Close()

	got, ok, err := p.Get("k")
	require.NoError(t, err)
	require.True(t, ok)
	if diff := cmp.Diff(res, got, cmp.AllowUnexported(infer.Value{})); diff != "" {
		t.Errorf("cached result mismatch (-want +got):\n%s", diff)
	}

	require.NoError(t, p.Delete("k"))
	_, ok, err = p.Get("k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPebble_Expiry(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	p, err := OpenPebble(t.TempDir(), time.Minute)
	require.NoError(t, err)
	defer p.Close()
	p.now = func() time.Time { return now }

	require.NoError(t, p.Put("k", sampleResult(t)))

	now = now.Add(2 * time.Minute)
	_, ok, err := p.Get("k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPebble_Closed(t *testing.T) {
	p, err := OpenPebble(t.TempDir(), 0)
	require.NoError(t, err)
	require.NoError(t, p.Close())
	require.NoError(t, p.Close())

	_, _, err = p.Get("k")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestNew(t *testing.T) {
	c, err := New(config.CacheConfig{Backend: "memory", MaxEntries: 2})
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, c)
	require.NoError(t, c.Close())

	c, err = New(config.CacheConfig{Backend: "pebble", Dir: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &Pebble{}, c)
	require.NoError(t, c.Close())

	_, err = New(config.CacheConfig{Backend: "redis"})
	assert.Error(t, err)
}
