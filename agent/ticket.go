package agent

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/hupe1980/deskmesh/core"
	"github.com/hupe1980/deskmesh/logging"
	"github.com/hupe1980/deskmesh/model"
	"github.com/hupe1980/deskmesh/prompt"
	"github.com/tidwall/gjson"
)

var ticketPriorities = map[string]bool{"low": true, "medium": true, "high": true, "urgent": true}

// ticketAnalysis is the structured triage of a new ticket.
type ticketAnalysis struct {
	Priority string
	Category string
	Summary  string
}

// TicketOptions configure a TicketAgent.
type TicketOptions struct {
	// StaffRoleMention is prepended to staff notifications, e.g. "@support".
	StaffRoleMention string
	// NotifyAgents bounds how many least-loaded staff members get pinged.
	// Defaults to 2.
	NotifyAgents int
	Logger       logging.Logger
}

// TicketAgent opens support tickets: it reuses an existing open ticket per
// user, creates an isolated channel via the ChannelProvider, triages the
// request with one backend call (deterministic fallback on failure), posts a
// welcome message and notifies the least-loaded staff. The acknowledgement
// always references the ticket ID.
type TicketAgent struct {
	BaseAgent
	store        core.TicketStore
	channels     core.ChannelProvider
	roleMention  string
	notifyAgents int
}

// NewTicketAgent constructs a TicketAgent.
func NewTicketAgent(backend model.Backend, prompts *prompt.Engine, store core.TicketStore, channels core.ChannelProvider, optFns ...func(o *TicketOptions)) *TicketAgent {
	opts := TicketOptions{NotifyAgents: 2}
	for _, fn := range optFns {
		fn(&opts)
	}

	return &TicketAgent{
		BaseAgent:    NewBaseAgent("ticket", "Support ticket creation, triage and staff notification", backend, prompts, opts.Logger),
		store:        store,
		channels:     channels,
		roleMention:  opts.StaffRoleMention,
		notifyAgents: opts.NotifyAgents,
	}
}

// CanHandle accepts explicit ticket phrasing.
func (a *TicketAgent) CanHandle(msg core.Message) bool {
	return containsAny(msg.Text, "ticket", "escalate", "speak to a human", "talk to support", "agent please")
}

// Process implements core.Agent.
func (a *TicketAgent) Process(rc *core.RunContext) (core.Response, error) {
	userID := rc.UserID()

	if existing, err := a.store.FindOpenByUser(userID); err != nil {
		return core.Response{}, fmt.Errorf("looking up open tickets: %w", err)
	} else if existing != nil {
		if err := a.store.AddMessage(existing.ID, userID, rc.Message.Text, false); err != nil {
			a.logger.Warn("appending to open ticket failed",
				"request_id", rc.RequestID, "ticket_id", existing.ID, "error", err.Error())
		}
		resp := core.Response{Content: fmt.Sprintf("You already have an open ticket (%s). I've added your message there.", existing.ID)}
		return resp.WithMeta("ticket_id", existing.ID), nil
	}

	analysis := a.analyze(rc)
	ticketID := uuid.NewString()

	channelID, err := a.channels.CreateTicketChannel(userID, ticketID)
	if err != nil {
		return core.Response{}, fmt.Errorf("creating ticket channel: %w", err)
	}

	ticket, err := a.store.Create(core.Ticket{
		ID:        ticketID,
		UserID:    userID,
		ChannelID: channelID,
		Priority:  analysis.Priority,
		Category:  analysis.Category,
		Summary:   analysis.Summary,
		Status:    "open",
	})
	if err != nil {
		return core.Response{}, fmt.Errorf("creating ticket: %w", err)
	}

	a.welcome(rc, ticket)
	a.notifyStaff(rc, ticket)

	resp := core.Response{Content: fmt.Sprintf("Ticket %s has been opened with %s priority. Our team will follow up in your ticket channel.", ticket.ID, ticket.Priority)}
	resp = resp.WithMeta("ticket_id", ticket.ID)
	return resp.WithMeta("channel_id", ticket.ChannelID), nil
}

// analyze triages the request via one backend call. Any failure or
// unparseable output falls back to medium/general with the raw message as
// summary.
func (a *TicketAgent) analyze(rc *core.RunContext) ticketAnalysis {
	fallback := ticketAnalysis{Priority: "medium", Category: "general", Summary: snippet(rc.Message.Text, 120)}

	raw, err := a.complete(rc, prompt.TemplateTicketAnalysis, map[string]any{"message": rc.Message.Text}, 0.1, 128)
	if err != nil {
		return fallback
	}

	parsed := gjson.Parse(raw)
	priority := parsed.Get("priority").String()
	if !ticketPriorities[priority] {
		a.logger.Debug("ticket analysis unparseable, using fallback", "request_id", rc.RequestID)
		return fallback
	}

	analysis := ticketAnalysis{Priority: priority, Category: parsed.Get("category").String(), Summary: parsed.Get("summary").String()}
	if analysis.Category == "" {
		analysis.Category = fallback.Category
	}
	if analysis.Summary == "" {
		analysis.Summary = fallback.Summary
	}
	return analysis
}

// welcome posts the rendered welcome message into the ticket channel.
// Failures are logged, the ticket stays valid without the greeting.
func (a *TicketAgent) welcome(rc *core.RunContext, ticket core.Ticket) {
	text, err := a.prompts.Render(prompt.TemplateTicketWelcome, map[string]any{
		"user":      ticket.UserID,
		"ticket_id": ticket.ID,
		"summary":   ticket.Summary,
	})
	if err != nil {
		a.logger.Warn("rendering welcome failed", "request_id", rc.RequestID, "error", err.Error())
		return
	}
	if err := a.channels.PostMessage(ticket.ChannelID, text); err != nil {
		a.logger.Warn("posting welcome failed",
			"request_id", rc.RequestID, "ticket_id", ticket.ID, "error", err.Error())
	}
}

// notifyStaff pings the configured role and the least-loaded staff members in
// the ticket channel. Best effort.
func (a *TicketAgent) notifyStaff(rc *core.RunContext, ticket core.Ticket) {
	staff, err := a.store.LeastLoadedAgents(a.notifyAgents)
	if err != nil {
		a.logger.Warn("looking up staff load failed", "request_id", rc.RequestID, "error", err.Error())
		staff = nil
	}

	mention := a.roleMention
	for _, id := range staff {
		if mention != "" {
			mention += " "
		}
		mention += id
	}
	if mention == "" {
		return
	}

	notice := fmt.Sprintf("%s: new %s priority ticket %s (%s)", mention, ticket.Priority, ticket.ID, ticket.Summary)
	if err := a.channels.PostMessage(ticket.ChannelID, notice); err != nil {
		a.logger.Warn("posting staff notification failed",
			"request_id", rc.RequestID, "ticket_id", ticket.ID, "error", err.Error())
	}
}
