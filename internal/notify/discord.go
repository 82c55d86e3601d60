package notify

import (
	"fmt"

	"github.com/bwmarrin/discordgo"
)

// session abstracts the discordgo.Session methods we use, enabling test mocks.
type session interface {
	ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Discord posts fleet events to a Discord channel. The session is REST-only;
// no gateway connection is held open.
type Discord struct {
	sess    session
	channel string
}

// DiscordOpts holds parameters for creating a Discord notifier.
type DiscordOpts struct {
	Token     string // bot token
	ChannelID string // channel to post to
	// For testing: inject a mock session instead of the real Discord API.
	Session session
}

// NewDiscord creates a Discord notifier.
func NewDiscord(opts DiscordOpts) (*Discord, error) {
	if opts.Session == nil && opts.Token == "" {
		return nil, fmt.Errorf("notify: discord token is required")
	}
	if opts.ChannelID == "" {
		return nil, fmt.Errorf("notify: discord channel is required")
	}
	sess := opts.Session
	if sess == nil {
		s, err := discordgo.New("Bot " + opts.Token)
		if err != nil {
			return nil, fmt.Errorf("notify: create discord session: %w", err)
		}
		sess = s
	}
	return &Discord{sess: sess, channel: opts.ChannelID}, nil
}

func (d *Discord) BuilderDisabled(builder, note string) {
	embed := &discordgo.MessageEmbed{
		Title:       fmt.Sprintf("Builder %s disabled", builder),
		Description: note,
		Color:       0xcc0000,
	}
	_, err := d.sess.ChannelMessageSendEmbed(d.channel, embed)
	logSendErr("discord", err)
}

func (d *Discord) Digest(text string) {
	_, err := d.sess.ChannelMessageSend(d.channel, text)
	logSendErr("discord", err)
}
