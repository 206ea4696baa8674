package intercept

// Ordered handler pipeline applied to every relayed payload

import (
	"errors"
	"fmt"
	"sync"

	"github.com/tturner/fuzzrelay/internal/config"
)

// Action is the outcome kind of a Verdict.
type Action int

const (
	ActionForward Action = iota
	ActionDrop
	ActionDropWithReply
)

func (a Action) String() string {
	switch a {
	case ActionDrop:
		return "drop"
	case ActionDropWithReply:
		return "drop_with_reply"
	default:
		return "forward"
	}
}

// Verdict tells the relay what to do with a payload.
type Verdict struct {
	Action  Action
	Payload []byte // bytes to forward when Action is ActionForward
	Reply   []byte // bytes to send back to the sender when Action is ActionDropWithReply
}

// Forward passes payload on, possibly transformed.
func Forward(payload []byte) Verdict {
	return Verdict{Action: ActionForward, Payload: payload}
}

// Drop suppresses the payload.
func Drop() Verdict {
	return Verdict{Action: ActionDrop}
}

// DropWithReply suppresses the payload and answers the sender with reply.
func DropWithReply(reply []byte) Verdict {
	return Verdict{Action: ActionDropWithReply, Reply: reply}
}

// Dropped reports whether the original payload is suppressed.
func (v Verdict) Dropped() bool {
	return v.Action != ActionForward
}

// Handler inspects payloads for the directions it supports.
type Handler interface {
	Name() string
	Supports(dir config.Direction) bool
	Handle(payload []byte, dir config.Direction) Verdict
	Finalize() error
}

// Chain runs handlers in registration order. A drop from any handler stops
// the chain; a forward hands its payload to the next supporting handler.
type Chain struct {
	handlers []Handler

	once    sync.Once
	errFini error
}

// NewChain builds a chain from handlers in order.
func NewChain(handlers ...Handler) *Chain {
	return &Chain{handlers: handlers}
}

// Handle runs payload through every supporting handler.
func (c *Chain) Handle(payload []byte, dir config.Direction) Verdict {
	if c == nil {
		return Forward(payload)
	}
	current := payload
	for _, h := range c.handlers {
		if !h.Supports(dir) {
			continue
		}
		v := h.Handle(current, dir)
		if v.Dropped() {
			return v
		}
		current = v.Payload
	}
	return Forward(current)
}

// Finalize runs each handler's Finalize once. Later calls return the first result.
func (c *Chain) Finalize() error {
	if c == nil {
		return nil
	}
	c.once.Do(func() {
		var errs []error
		for _, h := range c.handlers {
			if err := h.Finalize(); err != nil {
				errs = append(errs, fmt.Errorf("finalize %s: %w", h.Name(), err))
			}
		}
		c.errFini = errors.Join(errs...)
	})
	return c.errFini
}

// Names returns handler names in chain order.
func (c *Chain) Names() []string {
	if c == nil {
		return nil
	}
	names := make([]string, len(c.handlers))
	for i, h := range c.handlers {
		names[i] = h.Name()
	}
	return names
}

// Len returns the number of handlers.
func (c *Chain) Len() int {
	if c == nil {
		return 0
	}
	return len(c.handlers)
}
