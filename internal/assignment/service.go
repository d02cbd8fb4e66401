package assignment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wolfman30/clinicops/internal/counter"
	"github.com/wolfman30/clinicops/internal/docstore"
	"github.com/wolfman30/clinicops/internal/observability/metrics"
	"github.com/wolfman30/clinicops/pkg/logging"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("clinicops.internal.assignment")

var (
	// ErrSourceMissing is returned when the triggering document no longer exists.
	ErrSourceMissing = errors.New("assignment: source document missing")
	// ErrAlreadyAssigned is returned for redelivered events that were already handled.
	ErrAlreadyAssigned = errors.New("assignment: already assigned")
)

// Assignment is the outcome of one successful trigger.
type Assignment struct {
	Resource   counter.Resource
	ResourceID string
	Count      int64
	Index      int
	Agent      Agent
}

// AssignedLog remembers source documents that already received an agent.
type AssignedLog interface {
	AssignedAgent(ctx context.Context, collection, id string) (string, bool, error)
	RecordAssigned(ctx context.Context, collection, id, agentID string, position int64) error
}

// Notifier is told about every written assignment.
type Notifier interface {
	AssignmentCreated(ctx context.Context, a Assignment) error
}

// AssignmentWriter persists a computed assignment.
type AssignmentWriter interface {
	WriteAssignment(ctx context.Context, resource counter.Resource, resourceID, agentID string, position int64) error
}

// Service is the handler the trigger runtime calls for citas/{id} and chats/{id}
// creations.
type Service struct {
	store     docstore.Store
	ledger    counter.Ledger
	roster    RosterSource
	writer    AssignmentWriter
	assigned  AssignedLog
	notifier  Notifier
	metrics   *metrics.AssignmentMetrics
	logger    *logging.Logger
}

// ServiceOption customises a Service.
type ServiceOption func(*Service)

// WithAssignedLog skips documents the log already holds an agent for.
func WithAssignedLog(l AssignedLog) ServiceOption {
	return func(s *Service) { s.assigned = l }
}

// WithNotifier sends a notification after each assignment write.
func WithNotifier(n Notifier) ServiceOption {
	return func(s *Service) { s.notifier = n }
}

// WithMetrics records assignment outcomes.
func WithMetrics(m *metrics.AssignmentMetrics) ServiceOption {
	return func(s *Service) { s.metrics = m }
}

// WithRoster overrides the docstore-backed roster.
func WithRoster(r RosterSource) ServiceOption {
	return func(s *Service) {
		if r != nil {
			s.roster = r
		}
	}
}

// WithWriter overrides the docstore-backed writer.
func WithWriter(w AssignmentWriter) ServiceOption {
	return func(s *Service) {
		if w != nil {
			s.writer = w
		}
	}
}

func NewService(store docstore.Store, ledger counter.Ledger, logger *logging.Logger, opts ...ServiceOption) *Service {
	if store == nil {
		panic("assignment: store required")
	}
	if ledger == nil {
		panic("assignment: ledger required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	s := &Service{
		store:  store,
		ledger: ledger,
		roster: NewRoster(store),
		writer: NewWriter(store),
		logger: logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// HandleAppointmentCreated assigns citas/{citaID}. Failures are logged and
// swallowed; the runtime never re-queues.
func (s *Service) HandleAppointmentCreated(ctx context.Context, citaID string) error {
	s.handle(ctx, counter.Appointments, citaID)
	return nil
}

// HandleChatCreated assigns chats/{chatID}. Failures are logged and swallowed.
func (s *Service) HandleChatCreated(ctx context.Context, chatID string) error {
	s.handle(ctx, counter.Chats, chatID)
	return nil
}

// HandleCreated dispatches by collection name.
func (s *Service) HandleCreated(ctx context.Context, collection, id string) error {
	switch counter.Resource(collection) {
	case counter.Appointments:
		return s.HandleAppointmentCreated(ctx, id)
	case counter.Chats:
		return s.HandleChatCreated(ctx, id)
	default:
		s.logger.Warn("ignoring trigger for unknown collection", "collection", collection, "id", id)
		return nil
	}
}

func (s *Service) handle(ctx context.Context, resource counter.Resource, id string) {
	a, err := s.Process(ctx, resource, id)
	switch {
	case err == nil:
		s.metrics.ObserveAssignment(string(resource), "assigned")
		s.logger.Info("resource assigned",
			"resource", resource, "resource_id", id, "agent_id", a.Agent.ID, "count", a.Count, "index", a.Index)
	case errors.Is(err, ErrAlreadyAssigned):
		s.metrics.ObserveAssignment(string(resource), "duplicate")
		s.logger.Info("skipping redelivered trigger", "resource", resource, "resource_id", id)
	case errors.Is(err, ErrSourceMissing):
		s.metrics.ObserveAssignment(string(resource), "source_missing")
		s.logger.Warn("trigger source document missing", "resource", resource, "resource_id", id)
	case errors.Is(err, ErrNoAgentsAvailable):
		s.metrics.ObserveAssignment(string(resource), "no_agents")
		s.logger.Error("no agents available for assignment", "resource", resource, "resource_id", id)
	default:
		s.metrics.ObserveAssignment(string(resource), "failed")
		s.logger.Error("assignment failed", "resource", resource, "resource_id", id, "error", err)
	}
}

// Process runs the full protocol for one created document: increment the counter,
// read the roster, pick the agent and persist the cross-reference. Unlike the
// Handle methods it reports every failure.
func (s *Service) Process(ctx context.Context, resource counter.Resource, id string) (Assignment, error) {
	ctx, span := tracer.Start(ctx, "assignment.process", trace.WithAttributes(
		attribute.String("assignment.resource", string(resource)),
		attribute.String("assignment.resource_id", id),
	))
	defer span.End()

	a := Assignment{Resource: resource, ResourceID: id}
	if !resource.Valid() {
		return a, fmt.Errorf("%w: %q", counter.ErrUnknownResource, resource)
	}
	if id == "" {
		return a, fmt.Errorf("assignment: resource id required")
	}

	source, err := s.store.Get(ctx, docstore.Join(string(resource), id))
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return a, ErrSourceMissing
		}
		span.RecordError(err)
		return a, fmt.Errorf("assignment: read source: %w", err)
	}
	if resource == counter.Chats && source.Data.String("assignedAgent") != "" {
		return a, ErrAlreadyAssigned
	}

	if s.assigned != nil {
		agentID, ok, err := s.assigned.AssignedAgent(ctx, string(resource), id)
		if err != nil {
			s.logger.Warn("assigned log lookup failed, continuing", "resource", resource, "resource_id", id, "error", err)
		} else if ok {
			s.logger.Info("trigger redelivered for assigned document", "resource", resource, "resource_id", id, "agent_id", agentID)
			return a, ErrAlreadyAssigned
		}
	}

	start := time.Now()
	count, err := s.ledger.Increment(ctx, resource)
	s.metrics.ObserveCounterLatency(string(resource), time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		return a, err
	}
	a.Count = count

	agents, err := s.roster.Agents(ctx)
	if err != nil {
		s.orphaned(resource, id, count, "roster", err)
		span.RecordError(err)
		return a, err
	}
	index, err := Assign(count, len(agents))
	if err != nil {
		s.orphaned(resource, id, count, "assign", err)
		return a, err
	}
	a.Index = index
	a.Agent = agents[index]

	if err := s.writer.WriteAssignment(ctx, resource, id, a.Agent.ID, count); err != nil {
		s.orphaned(resource, id, count, "write", err)
		span.RecordError(err)
		return a, err
	}

	if s.assigned != nil {
		if err := s.assigned.RecordAssigned(ctx, string(resource), id, a.Agent.ID, count); err != nil {
			s.logger.Warn("failed to log assignment", "resource", resource, "resource_id", id, "error", err)
		}
	}
	if s.notifier != nil {
		if err := s.notifier.AssignmentCreated(ctx, a); err != nil {
			s.logger.Warn("assignment notification failed", "resource", resource, "resource_id", id, "agent_id", a.Agent.ID, "error", err)
		}
	}
	span.SetAttributes(attribute.String("assignment.agent_id", a.Agent.ID), attribute.Int64("assignment.count", count))
	return a, nil
}

func (s *Service) orphaned(resource counter.Resource, id string, count int64, stage string, err error) {
	s.metrics.ObserveOrphaned(string(resource), stage)
	s.logger.Error("orphaned counter increment",
		"resource", resource, "resource_id", id, "count", count, "stage", stage, "error", err)
}
