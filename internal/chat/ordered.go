package chat

import "sync"

// orderedHandler feeds each user's messages to the handler one at a time,
// in the order they arrived. Different users are handled concurrently.
type orderedHandler struct {
	handler func(InboundMessage)
	mu      sync.Mutex
	queues  map[string][]InboundMessage // present while a drain goroutine runs
}

// Ordered wraps handler so that messages sharing an InboundMessage.Key are
// handled sequentially in arrival order. The returned func never blocks on
// the handler.
func Ordered(handler func(InboundMessage)) func(InboundMessage) {
	o := &orderedHandler{handler: handler, queues: make(map[string][]InboundMessage)}
	return o.dispatch
}

func (o *orderedHandler) dispatch(msg InboundMessage) {
	key := msg.Key()

	o.mu.Lock()
	q, running := o.queues[key]
	o.queues[key] = append(q, msg)
	o.mu.Unlock()

	if !running {
		go o.drain(key)
	}
}

func (o *orderedHandler) drain(key string) {
	for {
		o.mu.Lock()
		q := o.queues[key]
		if len(q) == 0 {
			delete(o.queues, key)
			o.mu.Unlock()
			return
		}
		msg := q[0]
		o.queues[key] = q[1:]
		o.mu.Unlock()

		o.handler(msg)
	}
}
