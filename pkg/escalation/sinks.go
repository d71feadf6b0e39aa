package escalation

import (
	"context"
	"fmt"
	"io"
	"time"

	goslack "github.com/slack-go/slack"
)

// StderrSink writes escalation prompts to a plain writer (stderr in
// headless mode, per spec §4.8).
type StderrSink struct {
	w io.Writer
}

func NewStderrSink(w io.Writer) *StderrSink {
	return &StderrSink{w: w}
}

func (s *StderrSink) Notify(ctx context.Context, req Request) error {
	_, err := fmt.Fprintf(s.w, "ESCALATION incident=%s reason=%q token=%s (respond: approve | reject <reason> | take_over)\n",
		req.IncidentID, req.Reason, req.Token)
	return err
}

// SlackSink posts an escalation prompt as a Slack message, grounded on
// the teacher's thin slack-go wrapper (pkg/slack/client.go).
type SlackSink struct {
	api       *goslack.Client
	channelID string
	timeout   time.Duration
}

func NewSlackSink(token, channelID string) *SlackSink {
	return &SlackSink{api: goslack.New(token), channelID: channelID, timeout: 10 * time.Second}
}

func (s *SlackSink) Notify(ctx context.Context, req Request) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	blocks := []goslack.Block{
		goslack.NewSectionBlock(
			goslack.NewTextBlockObject(goslack.MarkdownType,
				fmt.Sprintf("*Escalation required*\nIncident: `%s`\nReason: %s", req.IncidentID, req.Reason), false, false),
			nil, nil,
		),
		goslack.NewContextBlock("", goslack.NewTextBlockObject(goslack.MarkdownType,
			fmt.Sprintf("Approval token: `%s`", req.Token), false, false)),
	}

	_, _, err := s.api.PostMessageContext(ctx, s.channelID, goslack.MsgOptionBlocks(blocks...))
	if err != nil {
		return fmt.Errorf("chat.postMessage failed: %w", err)
	}
	return nil
}
