package notify

import (
	"fmt"

	slackapi "github.com/slack-go/slack"
)

// slackClient abstracts the Slack API methods we use, enabling test mocks.
type slackClient interface {
	PostMessage(channelID string, options ...slackapi.MsgOption) (string, string, error)
}

// Slack posts fleet events to a Slack channel.
type Slack struct {
	client  slackClient
	channel string
}

// SlackOpts holds parameters for creating a Slack notifier.
type SlackOpts struct {
	Token   string // xoxb-... bot token
	Channel string // channel ID to post to
	// For testing: inject a mock client instead of the real Slack API.
	Client slackClient
}

// NewSlack creates a Slack notifier.
func NewSlack(opts SlackOpts) (*Slack, error) {
	if opts.Client == nil && opts.Token == "" {
		return nil, fmt.Errorf("notify: slack token is required")
	}
	if opts.Channel == "" {
		return nil, fmt.Errorf("notify: slack channel is required")
	}
	client := opts.Client
	if client == nil {
		client = slackapi.New(opts.Token)
	}
	return &Slack{client: client, channel: opts.Channel}, nil
}

func (s *Slack) BuilderDisabled(builder, note string) {
	att := slackapi.Attachment{
		Title:    fmt.Sprintf("Builder %s disabled", builder),
		Text:     note,
		Color:    "danger",
		Fallback: fmt.Sprintf("Builder %s disabled: %s", builder, note),
	}
	_, _, err := s.client.PostMessage(s.channel, slackapi.MsgOptionAttachments(att))
	logSendErr("slack", err)
}

func (s *Slack) Digest(text string) {
	_, _, err := s.client.PostMessage(s.channel, slackapi.MsgOptionText(text, false))
	logSendErr("slack", err)
}
