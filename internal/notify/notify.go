// Package notify fans reminder notifications out to interested listeners,
// currently the WebSocket sessions of the user being reminded.
package notify

import (
	"sync"
	"time"
)

type Notification struct {
	UserID string    `json:"user_id"`
	Kind   string    `json:"kind"`
	Title  string    `json:"title"`
	Body   string    `json:"body"`
	DueAt  time.Time `json:"due_at"`
}

const KindMedicineReminder = "medicine_reminder"

type Dispatcher struct {
	mu          sync.RWMutex
	subscribers []chan Notification
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{}
}

// Subscribe returns a channel receiving every published notification.
// Slow subscribers are skipped rather than blocking the publisher.
func (d *Dispatcher) Subscribe() chan Notification {
	ch := make(chan Notification, 16)
	d.mu.Lock()
	d.subscribers = append(d.subscribers, ch)
	d.mu.Unlock()
	return ch
}

// Unsubscribe removes a previously subscribed channel.
func (d *Dispatcher) Unsubscribe(ch chan Notification) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, sub := range d.subscribers {
		if sub == ch {
			d.subscribers = append(d.subscribers[:i], d.subscribers[i+1:]...)
			close(ch)
			return
		}
	}
}

func (d *Dispatcher) Publish(n Notification) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, sub := range d.subscribers {
		select {
		case sub <- n:
		default:
			// drop if subscriber is full
		}
	}
}
