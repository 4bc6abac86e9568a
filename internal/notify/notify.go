// Package notify implements the EventNotifier: lifecycle events fan out,
// best-effort, to the per-execution subscriber group and the global
// visualization group. Grounded on the teacher's ObserverManager/Observer
// pattern (Register/Unregister/Count, context.WithoutCancel so delivery
// outlives a cancelled execution, panic-recovering dispatch).
package notify

import (
	"context"
	"sync"

	"github.com/flowgate/engine/internal/domain"
	"github.com/flowgate/engine/internal/infrastructure/logger"
)

// EventType enumerates the lifecycle events the Orchestrator emits.
type EventType string

const (
	EventWorkflowStarted   EventType = "workflowStarted"
	EventWorkflowCompleted EventType = "workflowCompleted"
	EventTaskStarted       EventType = "taskStarted"
	EventTaskCompleted     EventType = "taskCompleted"
	EventSignalFlow        EventType = "signalFlow"
	EventAnomalyDetected   EventType = "anomalyDetected"
)

// Event is the payload delivered to observers.
type Event struct {
	Type         EventType
	ExecutionID  string
	WorkflowName string
	TaskID       string
	TaskRef      string
	From, To     string // populated for EventSignalFlow
	Status       string
	Error        string
	DurationMs   int64
	Anomaly      *domain.AnomalyEvent // populated for EventAnomalyDetected
}

// Group identifies a subscriber channel: either the per-execution group
// ("exec-<uuid>") or the shared "visualization" group.
type Group string

const VisualizationGroup Group = "visualization"

func ExecutionGroup(executionID string) Group { return Group("exec-" + executionID) }

// Observer receives events for the groups it is registered against.
type Observer interface {
	Name() string
	OnEvent(ctx context.Context, event Event)
}

// Notifier is the EventNotifier contract consumed by the Orchestrator.
type Notifier interface {
	OnWorkflowStarted(ctx context.Context, executionID, workflowName string)
	OnWorkflowCompleted(ctx context.Context, executionID, workflowName, status string)
	OnTaskStarted(ctx context.Context, executionID, taskID, taskRef string)
	OnTaskCompleted(ctx context.Context, executionID, taskID, taskRef, status string, durationMs int64, errMsg string)
	OnSignalFlow(ctx context.Context, executionID, from, to string)
	OnAnomalyDetected(ctx context.Context, event domain.AnomalyEvent)
}

// Manager is the concrete Notifier: it fans events out to registered
// observers, grouped by subscription.
type Manager struct {
	mu        sync.RWMutex
	observers map[Group][]Observer
	logger    *logger.Logger
}

func NewManager(log *logger.Logger) *Manager {
	if log == nil {
		log = logger.Noop()
	}
	return &Manager{observers: make(map[Group][]Observer), logger: log}
}

// Register subscribes obs to group. Duplicate names within the same group
// are rejected.
func (m *Manager) Register(group Group, obs Observer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.observers[group] {
		if existing.Name() == obs.Name() {
			return errAlreadyRegistered(obs.Name(), string(group))
		}
	}
	m.observers[group] = append(m.observers[group], obs)
	return nil
}

func (m *Manager) Unregister(group Group, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.observers[group]
	for i, o := range list {
		if o.Name() == name {
			m.observers[group] = append(list[:i], list[i+1:]...)
			return
		}
	}
}

func (m *Manager) Count(group Group) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.observers[group])
}

// notify fans ev out to both groups, non-blocking and best-effort. The
// delivery context is detached from ctx's cancellation so notifications
// complete even if the triggering execution has already been cancelled.
func (m *Manager) notify(ctx context.Context, executionID string, ev Event) {
	deliveryCtx := context.WithoutCancel(ctx)
	m.mu.RLock()
	targets := append(append([]Observer{}, m.observers[ExecutionGroup(executionID)]...), m.observers[VisualizationGroup]...)
	m.mu.RUnlock()
	for _, obs := range targets {
		go m.deliver(deliveryCtx, obs, ev)
	}
}

func (m *Manager) deliver(ctx context.Context, obs Observer, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("notify: observer panicked", "observer", obs.Name(), "panic", r)
		}
	}()
	obs.OnEvent(ctx, ev)
}

func (m *Manager) OnWorkflowStarted(ctx context.Context, executionID, workflowName string) {
	m.notify(ctx, executionID, Event{Type: EventWorkflowStarted, ExecutionID: executionID, WorkflowName: workflowName})
}

func (m *Manager) OnWorkflowCompleted(ctx context.Context, executionID, workflowName, status string) {
	m.notify(ctx, executionID, Event{Type: EventWorkflowCompleted, ExecutionID: executionID, WorkflowName: workflowName, Status: status})
}

func (m *Manager) OnTaskStarted(ctx context.Context, executionID, taskID, taskRef string) {
	m.notify(ctx, executionID, Event{Type: EventTaskStarted, ExecutionID: executionID, TaskID: taskID, TaskRef: taskRef})
}

func (m *Manager) OnTaskCompleted(ctx context.Context, executionID, taskID, taskRef, status string, durationMs int64, errMsg string) {
	m.notify(ctx, executionID, Event{
		Type: EventTaskCompleted, ExecutionID: executionID, TaskID: taskID, TaskRef: taskRef,
		Status: status, DurationMs: durationMs, Error: errMsg,
	})
}

func (m *Manager) OnSignalFlow(ctx context.Context, executionID, from, to string) {
	m.notify(ctx, executionID, Event{Type: EventSignalFlow, ExecutionID: executionID, From: from, To: to})
}

func (m *Manager) OnAnomalyDetected(ctx context.Context, event domain.AnomalyEvent) {
	m.notify(ctx, event.ExecutionID, Event{
		Type:         EventAnomalyDetected,
		ExecutionID:  event.ExecutionID,
		WorkflowName: event.Scope.WorkflowName,
		TaskID:       event.Scope.TaskID,
		DurationMs:   int64(event.DurationMs),
		Anomaly:      &event,
	})
}

type registrationError struct{ msg string }

func (e registrationError) Error() string { return e.msg }

func errAlreadyRegistered(name, group string) error {
	return registrationError{msg: "notify: observer " + name + " already registered for group " + group}
}
