package middleware

import "github.com/quotecraft/drew/pkg/ports"

// Middleware allows wrapping a ContextStore to add behavior.
type Middleware func(ports.ContextStore) ports.ContextStore

// Chain applies mws so that the first one is the outermost wrapper.
func Chain(store ports.ContextStore, mws ...Middleware) ports.ContextStore {
	for i := len(mws) - 1; i >= 0; i-- {
		store = mws[i](store)
	}
	return store
}
