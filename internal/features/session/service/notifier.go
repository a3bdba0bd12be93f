package service

import (
	"fmt"
	"io"
	"sync"
)

// Notifier surfaces user-visible login failures.
type Notifier interface {
	Notify(message string)
}

type NopNotifier struct{}

func (NopNotifier) Notify(string) {}

// WriterNotifier prints each message on its own line.
type WriterNotifier struct {
	mu sync.Mutex
	w  io.Writer
}

func NewWriterNotifier(w io.Writer) *WriterNotifier {
	return &WriterNotifier{w: w}
}

func (n *WriterNotifier) Notify(message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	fmt.Fprintf(n.w, "❌ %s\n", message)
}
