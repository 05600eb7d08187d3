package event

import (
	"fmt"
	"time"

	"github.com/beemacro/beemacro/internal/runstate"
	"github.com/google/uuid"
)

type Event interface {
	ID() string
	Source() string
	Message() string
	OccurredAt() time.Time
}

type BaseEvent struct {
	id         string
	source     string
	message    string
	occurredAt time.Time
}

func (b BaseEvent) ID() string            { return b.id }
func (b BaseEvent) Source() string        { return b.source }
func (b BaseEvent) Message() string       { return b.message }
func (b BaseEvent) OccurredAt() time.Time { return b.occurredAt }

// Text builds the common part of every event.
func Text(source, message string) BaseEvent {
	return BaseEvent{
		id:         uuid.NewString(),
		source:     source,
		message:    message,
		occurredAt: time.Now(),
	}
}

type StateChangedEvent struct {
	BaseEvent
	From runstate.State
	To   runstate.State
}

func StateChanged(source string, from, to runstate.State) StateChangedEvent {
	return StateChangedEvent{
		BaseEvent: Text(source, fmt.Sprintf("%s -> %s", from, to)),
		From:      from,
		To:        to,
	}
}

type FinishReason string

const (
	FinishedOK          FinishReason = "ok"
	FinishedInterrupted FinishReason = "interrupted"
	FinishedError       FinishReason = "error"
)

type TaskStartedEvent struct {
	BaseEvent
	Task string
}

func TaskStarted(be BaseEvent, task string) TaskStartedEvent {
	return TaskStartedEvent{BaseEvent: be, Task: task}
}

type TaskFinishedEvent struct {
	BaseEvent
	Task     string
	Reason   FinishReason
	Duration time.Duration
}

func TaskFinished(be BaseEvent, task string, reason FinishReason, d time.Duration) TaskFinishedEvent {
	return TaskFinishedEvent{BaseEvent: be, Task: task, Reason: reason, Duration: d}
}

type NgrokTunnelEvent struct {
	BaseEvent
	URL string
}

func NgrokTunnel(url string) NgrokTunnelEvent {
	return NgrokTunnelEvent{
		BaseEvent: Text("", "Remote control available at "+url),
		URL:       url,
	}
}
