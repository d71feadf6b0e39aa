// Package escalation implements the bounded escalation queue of spec
// §4.8: each escalation request carries {incident_id, reason}, is
// handed to a consumer sink (Slack, stderr, ...), and the consumer's
// EscalationResponse is delivered back to the BDI loop on a
// per-incident decision channel.
package escalation

import (
	"context"
	"errors"
	"sync"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
)

// ResponseKind is the decision a consumer can return for an escalation.
type ResponseKind string

const (
	Approve  ResponseKind = "approve"
	Reject   ResponseKind = "reject"
	TakeOver ResponseKind = "take_over"
)

// Request is one escalation queued for a consumer's attention.
type Request struct {
	IncidentID string
	Reason     string
	// Token is a fresh identifier issued by each Escalate call and handed
	// to sinks with the request. Respond does not check it; an Approve
	// response itself lets the executor run one Irreversible step.
	Token string
}

// Response is a consumer's decision for a previously queued Request.
type Response struct {
	Kind   ResponseKind
	Reason string // required when Kind is Reject
}

// Sink delivers a Request to a human-facing surface (Slack, stderr, a
// UI push channel). Notify must not block the escalation channel for
// longer than the caller's context allows.
type Sink interface {
	Notify(ctx context.Context, req Request) error
}

// ErrQueueFull is returned by Escalate when the bounded queue has no
// room and the caller's context has no time left to wait.
var ErrQueueFull = errors.New("escalation queue full")

// ErrUnknownIncident is returned by Respond when no pending escalation
// exists for the given incident id.
var ErrUnknownIncident = errors.New("no pending escalation for incident")

// Channel is the bounded escalation queue plus its per-incident decision
// channels. One Channel instance serves the whole agent process.
type Channel struct {
	sinks []Sink
	log   logr.Logger

	requests chan Request

	mu      sync.Mutex
	pending map[string]chan Response // incident id -> decision channel
	tokens  map[string]string        // incident id -> current approval token
}

func New(bufferSize int, log logr.Logger, sinks ...Sink) *Channel {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	return &Channel{
		sinks:    sinks,
		log:      log.WithName("escalation"),
		requests: make(chan Request, bufferSize),
		pending:  make(map[string]chan Response),
		tokens:   make(map[string]string),
	}
}

// Escalate enqueues a request and registers a decision channel for the
// incident, replacing any prior pending escalation for the same
// incident (a fresh escalation supersedes one whose response never
// arrived). It returns ErrQueueFull if the bounded queue has no room
// before ctx is done.
func (c *Channel) Escalate(ctx context.Context, incidentID, reason string) (string, error) {
	token := uuid.NewString()
	req := Request{IncidentID: incidentID, Reason: reason, Token: token}

	c.mu.Lock()
	c.pending[incidentID] = make(chan Response, 1)
	c.tokens[incidentID] = token
	c.mu.Unlock()

	select {
	case c.requests <- req:
	case <-ctx.Done():
		return "", ErrQueueFull
	}

	for _, sink := range c.sinks {
		if err := sink.Notify(ctx, req); err != nil {
			c.log.Error(err, "escalation sink notify failed", "incident_id", incidentID, "sink", sink)
		}
	}

	return token, nil
}

// Requests exposes the raw enqueued-request stream, e.g. for a UI push
// subscriber (spec §6 escalation-required event).
func (c *Channel) Requests() <-chan Request {
	return c.requests
}

// Respond delivers a consumer's decision for incidentID's pending
// escalation and discards the token issued for it. It takes no token and
// accepts any response kind; it returns ErrUnknownIncident when no
// escalation is pending for the incident.
func (c *Channel) Respond(incidentID string, resp Response) error {
	c.mu.Lock()
	ch, ok := c.pending[incidentID]
	if ok {
		delete(c.pending, incidentID)
		delete(c.tokens, incidentID)
	}
	c.mu.Unlock()
	if !ok {
		return ErrUnknownIncident
	}
	ch <- resp
	close(ch)
	return nil
}

// Await blocks until a Response is delivered for incidentID via
// Respond, or ctx is done.
func (c *Channel) Await(ctx context.Context, incidentID string) (Response, error) {
	c.mu.Lock()
	ch, ok := c.pending[incidentID]
	c.mu.Unlock()
	if !ok {
		return Response{}, ErrUnknownIncident
	}
	select {
	case resp, ok := <-ch:
		if !ok {
			return Response{}, ErrUnknownIncident
		}
		return resp, nil
	case <-ctx.Done():
		return Response{}, ctx.Err()
	}
}
