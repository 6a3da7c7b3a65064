package nomos

import (
	"fmt"
	"testing"
)

const totalKeys = 10000

func seed(b *testing.B, c *Client) {
	b.Helper()
	for i := 0; i < totalKeys; i++ {
		if !c.Put(0, 0, fmt.Sprintf("key%d", i), 0, []byte(fmt.Sprintf("value%d", i))) {
			b.Fatalf("failed to seed key%d", i)
		}
	}
}

func benchmarkGet(b *testing.B, opts ...Option) {
	_, e := setup(b)
	c, err := New([]Endpoint{e}, opts...)
	if err != nil {
		b.Fatal(err)
	}
	defer c.Close()
	seed(b, c)

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			key := fmt.Sprintf("key%d", i%totalKeys)
			if _, ok := c.Get(0, 0, key, 0); !ok {
				b.Errorf("missing %s", key)
				return
			}
			i++
		}
	})
}

func BenchmarkSingleGet(b *testing.B) {
	benchmarkGet(b)
}

func BenchmarkPooledGet(b *testing.B) {
	benchmarkGet(b, WithPoolSize(16))
}
