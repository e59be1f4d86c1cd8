package tasks

import (
	"context"
	"sync"

	"github.com/angelmondragon/chama-backend/pkg/db/models"
	"github.com/angelmondragon/chama-backend/pkg/enums"
)

// Handler executes one task. Returning a GATEWAY_TRANSIENT or DEPENDENCY_ERROR
// reschedules the task; any other error fails it.
type Handler interface {
	Handle(ctx context.Context, task models.Task) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, task models.Task) error

func (f HandlerFunc) Handle(ctx context.Context, task models.Task) error {
	return f(ctx, task)
}

// TerminalHandler is implemented by handlers that must settle state when a task
// gives up for good.
type TerminalHandler interface {
	OnTerminal(ctx context.Context, task models.Task, cause error) error
}

// Registry maps task kinds to handlers.
type Registry struct {
	mtx      sync.RWMutex
	handlers map[enums.TaskKind]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[enums.TaskKind]Handler)}
}

func (r *Registry) Register(kind enums.TaskKind, handler Handler) {
	if handler == nil {
		return
	}
	r.mtx.Lock()
	defer r.mtx.Unlock()
	r.handlers[kind] = handler
}

func (r *Registry) Lookup(kind enums.TaskKind) (Handler, bool) {
	r.mtx.RLock()
	defer r.mtx.RUnlock()
	h, ok := r.handlers[kind]
	return h, ok
}
