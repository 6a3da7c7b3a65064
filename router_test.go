package nomos

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalKey(t *testing.T) {
	assert.Equal(t, "abc123", CanonicalKey("abc123"))
	assert.Equal(t, "ABCDEF0123456789", CanonicalKey("ABCDEF0123456789"))

	for _, k := range []string{"", "user:42:profile", "0123456789abcdef0", "xyz", "hello world"} {
		c := CanonicalKey(k)
		assert.Len(t, c, CanonicalKeySize, k)
		assert.True(t, IsCanonicalKey(c), k)
		assert.Equal(t, c, CanonicalKey(k), "deterministic for %q", k)
		assert.Equal(t, c, CanonicalKey(c), "idempotent for %q", k)
	}
}

func TestCanonicalKeyIsStable(t *testing.T) {
	// md5("user:42:profile") = 2ce9557181042f1d3d9c940ae8897867
	got := CanonicalKey("user:42:profile")
	assert.Equal(t, "3d9c940ae8897867", got)
	assert.NotEqual(t, CanonicalKey("user:42:profile "), got)
}

func TestIsCanonicalKey(t *testing.T) {
	assert.True(t, IsCanonicalKey("0"))
	assert.True(t, IsCanonicalKey(strings.Repeat("f", 16)))
	assert.False(t, IsCanonicalKey(strings.Repeat("f", 17)))
	assert.False(t, IsCanonicalKey(""))
	assert.False(t, IsCanonicalKey("abcg"))
	assert.False(t, IsCanonicalKey("-1"))
}

func TestShardedRouterIsDeterministic(t *testing.T) {
	a := NewShardedRouter(5)
	b := NewShardedRouter(5)
	for i := 0; i < 1000; i++ {
		k := CanonicalKey(fmt.Sprintf("key-%d", i))
		r := a.Route(i%3, i%7, k)
		require.GreaterOrEqual(t, r, 0)
		require.Less(t, r, 5)
		assert.Equal(t, r, a.Route(i%3, i%7, k))
		assert.Equal(t, r, b.Route(i%3, i%7, k))
	}
}

func TestShardedRouterUsesNamespace(t *testing.T) {
	r := NewShardedRouter(16)
	differs := false
	for i := 0; i < 100 && !differs; i++ {
		k := fmt.Sprintf("%x", i)
		differs = r.Route(1, 1, k) != r.Route(1, 2, k)
	}
	assert.True(t, differs)
}

func TestShardedRouterSpreadsKeys(t *testing.T) {
	r := NewShardedRouter(4)
	counts := make([]int, 4)
	for i := 0; i < 4000; i++ {
		counts[r.Route(0, 0, CanonicalKey(fmt.Sprintf("k%d", i)))]++
	}
	for i, n := range counts {
		assert.Greater(t, n, 600, "bucket %d", i)
	}
}

func TestShardedRouterMovesFewKeysOnGrowth(t *testing.T) {
	small, large := NewShardedRouter(4), NewShardedRouter(5)
	moved := 0
	for i := 0; i < 5000; i++ {
		k := CanonicalKey(fmt.Sprintf("k%d", i))
		if small.Route(0, 0, k) != large.Route(0, 0, k) {
			moved++
		}
	}
	// jump hash moves roughly 1/5 of the keys
	assert.Less(t, moved, 1500)
}

func TestDirectRouter(t *testing.T) {
	assert.Equal(t, 0, DirectRouter{}.Route(9, 9, "anything"))
	assert.IsType(t, DirectRouter{}, newRouter(1))
	assert.IsType(t, ShardedRouter{}, newRouter(3))
}

func TestClientRouteMatchesAcrossInstances(t *testing.T) {
	endpoints := []Endpoint{{Host: "h1", Port: 14301}, {Host: "h2", Port: 14302}}
	a, err := New(endpoints)
	require.NoError(t, err)
	defer a.Close()
	b, err := New(endpoints)
	require.NoError(t, err)
	defer b.Close()

	for i := 0; i < 100; i++ {
		k := fmt.Sprintf("user:%d:profile", i)
		assert.Equal(t, a.Route(1, 1, k), b.Route(1, 1, k))
	}
}

func TestParseEndpoint(t *testing.T) {
	e, err := ParseEndpoint(" h1:14301 ")
	require.NoError(t, err)
	assert.Equal(t, Endpoint{Host: "h1", Port: 14301}, e)
	assert.Equal(t, "h1:14301", e.String())

	e, err = ParseEndpoint("[::1]:14302")
	require.NoError(t, err)
	assert.Equal(t, "::1", e.Host)
	assert.Equal(t, "[::1]:14302", e.String())

	for _, bad := range []string{"", "h1", "h1:x", "h1:0", "h1:70000", ":14301"} {
		_, err := ParseEndpoint(bad)
		assert.ErrorIs(t, err, ErrInvalidEndpoint, bad)
	}

	var u Endpoint
	require.NoError(t, u.UnmarshalText([]byte("h2:1")))
	assert.Equal(t, Endpoint{Host: "h2", Port: 1}, u)

	list, err := ParseEndpoints("h1:1", "h2:2")
	require.NoError(t, err)
	assert.Equal(t, []Endpoint{{"h1", 1}, {"h2", 2}}, list)
}
