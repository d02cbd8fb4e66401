// Package notify emails agents when the round-robin assigner hands them an
// appointment or a chat.
package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/wolfman30/clinicops/internal/assignment"
	"github.com/wolfman30/clinicops/internal/counter"
	"github.com/wolfman30/clinicops/pkg/logging"
)

const defaultFromName = "Clinic Ops"

// AssignmentNotifier implements assignment.Notifier over an EmailSender.
type AssignmentNotifier struct {
	email  EmailSender
	logger *logging.Logger
}

func NewAssignmentNotifier(email EmailSender, logger *logging.Logger) *AssignmentNotifier {
	if email == nil {
		panic("notify: email sender required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &AssignmentNotifier{email: email, logger: logger}
}

// AssignmentCreated emails the selected agent. Agents without an address are skipped.
func (n *AssignmentNotifier) AssignmentCreated(ctx context.Context, a assignment.Assignment) error {
	to := strings.TrimSpace(a.Agent.Email)
	if to == "" {
		n.logger.Debug("notify: agent has no email, skipping", "agent_id", a.Agent.ID)
		return nil
	}
	msg := assignmentEmail(a)
	msg.To = to
	msg.ToName = a.Agent.Name
	if err := n.email.Send(ctx, msg); err != nil {
		return fmt.Errorf("notify: assignment %s/%s: %w", a.Resource, a.ResourceID, err)
	}
	return nil
}

func assignmentEmail(a assignment.Assignment) EmailMessage {
	var subject, what string
	switch a.Resource {
	case counter.Chats:
		subject = "Nuevo chat asignado"
		what = "un nuevo chat"
	default:
		subject = "Nueva cita asignada"
		what = "una nueva cita"
	}
	name := a.Agent.Name
	if name == "" {
		name = "agente"
	}
	body := fmt.Sprintf("Hola %s,\n\nSe te ha asignado %s (%s, turno #%d).\n", name, what, a.ResourceID, a.Count)
	return EmailMessage{Subject: subject, Body: body}
}

var _ assignment.Notifier = (*AssignmentNotifier)(nil)
