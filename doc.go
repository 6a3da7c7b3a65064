// Package nomos is a client for Nomos Storage, a namespaced key-value backend
// reached over a small binary TCP protocol.
//
// Every entry lives under a (level, sub level, key) triple. Keys are reduced
// to at most 16 hex characters before they leave the process, and the
// namespaced key picks exactly one server out of the configured list:
//
//	c, err := nomos.DefaultClient("10.0.0.1:14301", "10.0.0.2:14301")
//	if err != nil {
//		return err
//	}
//	defer c.Close()
//
//	c.Put(1, 1, "user:42:profile", 60, []byte("hello"))
//	v, ok := c.Get(1, 1, "user:42:profile", 0)
//
// Reads and writes degrade instead of failing: an unreachable server reads as
// a miss and writes report false. The cache and session packages build
// application-level adapters on top of the client.
package nomos
