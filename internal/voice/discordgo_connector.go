package voice

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
	"github.com/disgoorg/snowflake/v2"
)

// Ensure DiscordConnector implements Connector.
var _ Connector = (*DiscordConnector)(nil)

// DiscordConnector joins voice channels through a discordgo session.
type DiscordConnector struct {
	session *discordgo.Session
}

// NewDiscordConnector creates a connector backed by the given session.
func NewDiscordConnector(session *discordgo.Session) *DiscordConnector {
	return &DiscordConnector{session: session}
}

// Join performs the voice handshake. discordgo blocks internally until the
// connection is ready or its own timeout fires.
func (c *DiscordConnector) Join(ctx context.Context, guildID, channelID snowflake.ID) (Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	vc, err := c.session.ChannelVoiceJoin(guildID.String(), channelID.String(), false, true)
	if err != nil {
		return nil, fmt.Errorf("join voice channel %s: %w", channelID, err)
	}
	return &discordHandle{vc: vc}, nil
}

type discordHandle struct {
	vc *discordgo.VoiceConnection
}

func (h *discordHandle) Ready() bool {
	h.vc.RLock()
	defer h.vc.RUnlock()
	return h.vc.Ready
}

func (h *discordHandle) Close() error {
	return h.vc.Disconnect()
}
