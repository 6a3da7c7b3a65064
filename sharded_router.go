package nomos

import (
	"hash/fnv"
	"strconv"

	"github.com/dgryski/go-jump"
)

// ShardedRouter spreads keys over the endpoints with jump consistent hashing.
type ShardedRouter struct {
	buckets int
}

func NewShardedRouter(endpoints int) ShardedRouter {
	return ShardedRouter{buckets: endpoints}
}

func routingKey(level, subLevel int, key string) uint64 {
	hasher := fnv.New64a()
	hasher.Write([]byte(strconv.Itoa(level)))
	hasher.Write([]byte{':'})
	hasher.Write([]byte(strconv.Itoa(subLevel)))
	hasher.Write([]byte{':'})
	hasher.Write([]byte(key))
	return hasher.Sum64()
}

func (r ShardedRouter) Route(level, subLevel int, key string) int {
	if r.buckets <= 1 {
		return 0
	}
	return int(jump.Hash(routingKey(level, subLevel, key), r.buckets))
}
