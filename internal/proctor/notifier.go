package proctor

import (
	"context"

	"github.com/stemsi/exstem-proctor/internal/model"
)

// Notifier delivers user-visible notices. Delivery is best-effort.
type Notifier interface {
	Notify(ctx context.Context, n model.Notification)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, n model.Notification)

func (f NotifierFunc) Notify(ctx context.Context, n model.Notification) { f(ctx, n) }

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, model.Notification) {}

// MultiNotifier fans a notification out to several notifiers in order.
type MultiNotifier []Notifier

func (m MultiNotifier) Notify(ctx context.Context, n model.Notification) {
	for _, nt := range m {
		nt.Notify(ctx, n)
	}
}
