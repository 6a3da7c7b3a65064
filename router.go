package nomos

// Router maps a namespaced key to the index of one configured endpoint.
// Implementations must be pure functions of their arguments and the endpoint
// list they were built for.
type Router interface {
	Route(level, subLevel int, key string) int
}

// DirectRouter sends everything to the only endpoint.
type DirectRouter struct{}

func (DirectRouter) Route(level, subLevel int, key string) int {
	return 0
}

func newRouter(endpoints int) Router {
	if endpoints == 1 {
		return DirectRouter{}
	}
	return ShardedRouter{buckets: endpoints}
}
