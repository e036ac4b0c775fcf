package paymentclient

import (
	"context"
	"fmt"
	"io"
	"sync"
)

// Notifier показывает пользователю сообщение об ошибке.
type Notifier interface {
	Error(ctx context.Context, message string)
}

// NopNotifier ничего не показывает.
type NopNotifier struct{}

func (NopNotifier) Error(context.Context, string) {}

// WriterNotifier пишет сообщения в w (например, os.Stderr для CLI).
type WriterNotifier struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriterNotifier создаёт WriterNotifier.
func NewWriterNotifier(w io.Writer) *WriterNotifier {
	return &WriterNotifier{w: w}
}

func (n *WriterNotifier) Error(_ context.Context, message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	_, _ = fmt.Fprintf(n.w, "Ошибка: %s\n", message)
}

// NotifierFunc позволяет использовать функцию как Notifier.
type NotifierFunc func(ctx context.Context, message string)

func (f NotifierFunc) Error(ctx context.Context, message string) {
	f(ctx, message)
}
