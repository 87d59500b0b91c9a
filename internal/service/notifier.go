package service

import (
	"github.com/convinceme/convince-server-go/internal/model"
)

// Notifier pushes attempt mutations to subscribed observers. Delivery is
// best-effort; services never block or fail on notification.
type Notifier interface {
	AttemptUpdated(attemptID string, score int, status model.AttemptStatus)
	AIResponseCreated(resp *model.AIResponse)
	AttemptClosed(attemptID string)
}

// NopNotifier discards all events; used in tests and tools.
type NopNotifier struct{}

func (NopNotifier) AttemptUpdated(string, int, model.AttemptStatus) {}
func (NopNotifier) AIResponseCreated(*model.AIResponse)             {}
func (NopNotifier) AttemptClosed(string)                            {}
