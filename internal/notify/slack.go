package notify

import (
	"context"
	"fmt"

	"github.com/slack-go/slack"
)

const PlatformSlack = "slack"

// SlackAPI is the subset of the slack client used for alerts.
type SlackAPI interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
}

// SlackMessenger posts alerts as Block Kit messages.
type SlackMessenger struct {
	api SlackAPI
}

// NewSlackMessenger creates a SlackMessenger over api.
func NewSlackMessenger(api SlackAPI) *SlackMessenger {
	return &SlackMessenger{api: api}
}

// NewSlackMessengerFromToken creates a SlackMessenger with a bot token.
func NewSlackMessengerFromToken(token string) *SlackMessenger {
	return NewSlackMessenger(slack.New(token))
}

func (m *SlackMessenger) Platform() string { return PlatformSlack }

func (m *SlackMessenger) Send(ctx context.Context, channel string, a Alert) error {
	_, _, err := m.api.PostMessageContext(ctx, channel,
		slack.MsgOptionText(a.Text(), false),
		slack.MsgOptionBlocks(alertBlocks(a)...),
	)
	if err != nil {
		return fmt.Errorf("notify.SlackMessenger.Send: %w", err)
	}
	return nil
}

func alertBlocks(a Alert) []slack.Block {
	icon := ":warning:"
	if a.Severity == SeverityCritical {
		icon = ":rotating_light:"
	}
	header := slack.NewSectionBlock(
		slack.NewTextBlockObject(slack.MarkdownType, fmt.Sprintf("%s *%s*", icon, a.Title), false, false),
		nil, nil,
	)
	blocks := []slack.Block{header}

	if names := a.FieldNames(); len(names) > 0 {
		fields := make([]*slack.TextBlockObject, 0, len(names))
		for _, k := range names {
			fields = append(fields, slack.NewTextBlockObject(slack.MarkdownType, fmt.Sprintf("*%s*\n%s", k, a.Fields[k]), false, false))
		}
		// Section blocks accept at most 10 fields.
		for len(fields) > 0 {
			n := min(len(fields), 10)
			blocks = append(blocks, slack.NewSectionBlock(nil, fields[:n], nil))
			fields = fields[n:]
		}
	}

	blocks = append(blocks, slack.NewContextBlock("",
		slack.NewTextBlockObject(slack.MarkdownType, a.At.UTC().Format("2006-01-02 15:04:05 MST"), false, false),
	))
	return blocks
}
