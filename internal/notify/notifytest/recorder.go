// Package notifytest provides a recording notifier for workflow tests.
package notifytest

import (
	"context"
	"sync"

	"github.com/ariefcatur/go-bloodbank/internal/notify"
)

type Text struct {
	Phone   string
	Message string
}

type Recorder struct {
	mu    sync.Mutex
	notes []notify.Notification
	texts []Text
}

func (r *Recorder) Notify(_ context.Context, n notify.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes = append(r.notes, n)
}

func (r *Recorder) SendText(_ context.Context, phone, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.texts = append(r.texts, Text{Phone: phone, Message: message})
}

func (r *Recorder) Notifications() []notify.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]notify.Notification(nil), r.notes...)
}

func (r *Recorder) Texts() []Text {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Text(nil), r.texts...)
}

// Events returns the event types in the order they were emitted.
func (r *Recorder) Events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.notes))
	for _, n := range r.notes {
		out = append(out, n.EventType)
	}
	return out
}

// To returns notifications addressed to one target.
func (r *Recorder) To(targetID string) []notify.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []notify.Notification
	for _, n := range r.notes {
		if n.TargetID == targetID {
			out = append(out, n)
		}
	}
	return out
}
