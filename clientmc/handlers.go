package clientmc

import (
	"sync"

	"github.com/meshkit/clientgw/message"
)

// Handler synchronously consumes one category of inbound message, taking
// precedence over the inbound queue for that category (§4.3).
type Handler func(*message.Message)

// handlerTable is a plain map guarded by RWMutex: set once at startup in
// the common case, last-writer-wins under a race, which is the contract
// §5 asks for.
type handlerTable struct {
	mu       sync.RWMutex
	handlers map[message.Category]Handler
}

func newHandlerTable() *handlerTable {
	return &handlerTable{handlers: make(map[message.Category]Handler)}
}

func (t *handlerTable) register(category message.Category, h Handler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handlers[category] = h
}

func (t *handlerTable) lookup(category message.Category) (Handler, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	h, ok := t.handlers[category]
	return h, ok
}
