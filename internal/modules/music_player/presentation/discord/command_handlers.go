package discord

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/disgoorg/snowflake/v2"

	"github.com/monsieurgui/cafe-des-artistes/internal/bot"
	"github.com/monsieurgui/cafe-des-artistes/internal/ipc"
	"github.com/monsieurgui/cafe-des-artistes/internal/voice"
)

// Embed colors.
const (
	colorSuccess = 0x08c404
	colorError   = 0xE74C3C
	colorInfo    = 0x3498DB
)

// maxQueueLines caps how many queued tracks one embed lists.
const maxQueueLines = 10

// commandSender is the slice of the IPC client the handlers use.
type commandSender interface {
	Command(ctx context.Context, action ipc.Action, guildID snowflake.ID, payload any) (ipc.Response, error)
}

// voiceControl is the slice of the voice manager the handlers use.
type voiceControl interface {
	EnsureConnected(ctx context.Context, guildID, channelID snowflake.ID, force bool) error
	Disconnect(guildID snowflake.ID) error
}

// announcer records where a guild's playback announcements go.
type announcer interface {
	SetAnnounceChannel(guildID snowflake.ID, channelID string)
}

// CommandHandlers bridges slash commands to the player service.
type CommandHandlers struct {
	client commandSender
	voice  voiceControl
	relay  announcer
}

// NewCommandHandlers creates new CommandHandlers.
func NewCommandHandlers(client *ipc.Client, voiceManager *voice.Manager, relay *EventRelay) *CommandHandlers {
	return &CommandHandlers{
		client: client,
		voice:  voiceManager,
		relay:  relay,
	}
}

// HandlePlay handles the /play command: join the requester's voice channel,
// mark the transport usable, and queue the track.
func (h *CommandHandlers) HandlePlay(
	s *discordgo.Session,
	i *discordgo.InteractionCreate,
	r bot.Responder,
) error {
	ctx := context.Background()

	guildID, err := snowflake.Parse(i.GuildID)
	if err != nil {
		return respondError(r, "Invalid guild")
	}

	var query string
	for _, opt := range i.ApplicationCommandData().Options {
		if opt.Name == "query" {
			query = strings.TrimSpace(opt.StringValue())
		}
	}
	if query == "" {
		return respondError(r, "Nothing to play")
	}

	voiceState, err := s.State.VoiceState(i.GuildID, i.Member.User.ID)
	if err != nil || voiceState.ChannelID == "" {
		return respondError(r, "Join a voice channel first")
	}
	channelID, err := snowflake.Parse(voiceState.ChannelID)
	if err != nil {
		return respondError(r, "Invalid voice channel")
	}

	// An explicit user command overrides any reconnect cooldown.
	if err := h.voice.EnsureConnected(ctx, guildID, channelID, true); err != nil {
		return respondError(r, fmt.Sprintf("Could not join voice: %v", err))
	}
	connect := ipc.ConnectPayload{ChannelID: channelID}
	if s.State.User != nil {
		if botState, err := s.State.VoiceState(i.GuildID, s.State.User.ID); err == nil {
			connect.SessionID = botState.SessionID
		}
	}
	if resp, err := h.client.Command(ctx, ipc.ActionConnect, guildID, connect); err != nil {
		return respondError(r, "Player service unreachable")
	} else if respErr := resp.Err(); respErr != nil {
		return respondError(r, respErr.Error())
	}

	h.relay.SetAnnounceChannel(guildID, i.ChannelID)

	userID, err := snowflake.Parse(i.Member.User.ID)
	if err != nil {
		return respondError(r, "Invalid user")
	}
	resp, err := h.client.Command(ctx, ipc.ActionAddToQueue, guildID, ipc.AddToQueuePayload{
		Source:        query,
		RequesterID:   userID,
		RequesterName: i.Member.User.Username,
	})
	if err != nil {
		return respondError(r, "Player service unreachable")
	}
	if respErr := resp.Err(); respErr != nil {
		return respondCommandFailure(r, resp)
	}

	var result ipc.AddToQueueResult
	if err := resp.DecodeData(&result); err != nil {
		return respondError(r, "Malformed response from player service")
	}

	description := fmt.Sprintf("Loading **%s**...", query)
	if result.Position > 0 {
		description = fmt.Sprintf("Queued **%s** at position %d.", query, result.Position)
	}
	return respondSuccess(r, description)
}

// HandleSkip handles the /skip command.
func (h *CommandHandlers) HandleSkip(
	s *discordgo.Session,
	i *discordgo.InteractionCreate,
	r bot.Responder,
) error {
	return h.simpleCommand(i, r, ipc.ActionSkipSong, "Skipped.")
}

// HandleStop handles the /stop command.
func (h *CommandHandlers) HandleStop(
	s *discordgo.Session,
	i *discordgo.InteractionCreate,
	r bot.Responder,
) error {
	return h.simpleCommand(i, r, ipc.ActionResetPlayer, "Stopped playback and cleared the queue.")
}

// HandleQueue handles the /queue subcommands.
func (h *CommandHandlers) HandleQueue(
	s *discordgo.Session,
	i *discordgo.InteractionCreate,
	r bot.Responder,
) error {
	options := i.ApplicationCommandData().Options
	if len(options) == 0 {
		return respondError(r, "Missing subcommand")
	}

	switch options[0].Name {
	case "list":
		return h.handleQueueList(i, r)
	case "remove":
		return h.handleQueueRemove(i, r, options[0].Options)
	default:
		return respondError(r, "Unknown subcommand")
	}
}

func (h *CommandHandlers) handleQueueList(i *discordgo.InteractionCreate, r bot.Responder) error {
	guildID, err := snowflake.Parse(i.GuildID)
	if err != nil {
		return respondError(r, "Invalid guild")
	}

	resp, err := h.client.Command(context.Background(), ipc.ActionGetState, guildID, nil)
	if err != nil {
		return respondError(r, "Player service unreachable")
	}
	if respErr := resp.Err(); respErr != nil {
		return respondCommandFailure(r, resp)
	}

	var state ipc.StatePayload
	if err := resp.DecodeData(&state); err != nil {
		return respondError(r, "Malformed response from player service")
	}

	var b strings.Builder
	if state.Current != nil {
		fmt.Fprintf(&b, "Now playing: %s\n\n", trackLine(*state.Current))
	}
	if len(state.Queue) == 0 {
		b.WriteString("The queue is empty.")
	} else {
		for idx, track := range state.Queue {
			if idx >= maxQueueLines {
				fmt.Fprintf(&b, "... and %d more.", len(state.Queue)-maxQueueLines)
				break
			}
			fmt.Fprintf(&b, "%d. %s\n", idx+1, trackLine(track))
		}
	}

	return r.Respond(&discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Embeds: []*discordgo.MessageEmbed{
				{
					Title:       "Queue",
					Description: b.String(),
					Color:       colorInfo,
				},
			},
		},
	})
}

func (h *CommandHandlers) handleQueueRemove(
	i *discordgo.InteractionCreate,
	r bot.Responder,
	options []*discordgo.ApplicationCommandInteractionDataOption,
) error {
	guildID, err := snowflake.Parse(i.GuildID)
	if err != nil {
		return respondError(r, "Invalid guild")
	}

	var position int64
	for _, opt := range options {
		if opt.Name == "position" {
			position = opt.IntValue()
		}
	}
	if position < 1 {
		return respondError(r, "Invalid position")
	}

	resp, err := h.client.Command(context.Background(), ipc.ActionRemoveFromQueue, guildID, ipc.RemoveFromQueuePayload{
		Position: int(position - 1),
	})
	if err != nil {
		return respondError(r, "Player service unreachable")
	}
	if respErr := resp.Err(); respErr != nil {
		return respondCommandFailure(r, resp)
	}

	var removed ipc.TrackInfo
	if err := resp.DecodeData(&removed); err != nil {
		return respondError(r, "Malformed response from player service")
	}
	return respondSuccess(r, fmt.Sprintf("Removed %s.", trackLine(removed)))
}

// HandleLoop handles the /loop command.
func (h *CommandHandlers) HandleLoop(
	s *discordgo.Session,
	i *discordgo.InteractionCreate,
	r bot.Responder,
) error {
	guildID, err := snowflake.Parse(i.GuildID)
	if err != nil {
		return respondError(r, "Invalid guild")
	}

	var enabled bool
	for _, opt := range i.ApplicationCommandData().Options {
		if opt.Name == "enabled" {
			enabled = opt.BoolValue()
		}
	}

	resp, err := h.client.Command(context.Background(), ipc.ActionSetLoop, guildID, ipc.SetLoopPayload{
		Enabled: enabled,
	})
	if err != nil {
		return respondError(r, "Player service unreachable")
	}
	if respErr := resp.Err(); respErr != nil {
		return respondCommandFailure(r, resp)
	}

	if enabled {
		return respondSuccess(r, "Looping the current track.")
	}
	return respondSuccess(r, "Loop disabled.")
}

// HandleLeave handles the /leave command: drop voice and tell the engine.
func (h *CommandHandlers) HandleLeave(
	s *discordgo.Session,
	i *discordgo.InteractionCreate,
	r bot.Responder,
) error {
	guildID, err := snowflake.Parse(i.GuildID)
	if err != nil {
		return respondError(r, "Invalid guild")
	}

	if err := h.voice.Disconnect(guildID); err != nil && err != voice.ErrNoSession {
		return respondError(r, fmt.Sprintf("Could not leave voice: %v", err))
	}

	resp, err := h.client.Command(context.Background(), ipc.ActionDisconnect, guildID, nil)
	if err != nil {
		return respondError(r, "Player service unreachable")
	}
	if respErr := resp.Err(); respErr != nil {
		return respondCommandFailure(r, resp)
	}
	return respondSuccess(r, "Disconnected. The queue is kept for when I return.")
}

// HandleState handles the /state command.
func (h *CommandHandlers) HandleState(
	s *discordgo.Session,
	i *discordgo.InteractionCreate,
	r bot.Responder,
) error {
	guildID, err := snowflake.Parse(i.GuildID)
	if err != nil {
		return respondError(r, "Invalid guild")
	}

	resp, err := h.client.Command(context.Background(), ipc.ActionGetState, guildID, nil)
	if err != nil {
		return respondError(r, "Player service unreachable")
	}
	if respErr := resp.Err(); respErr != nil {
		return respondCommandFailure(r, resp)
	}

	var state ipc.StatePayload
	if err := resp.DecodeData(&state); err != nil {
		return respondError(r, "Malformed response from player service")
	}

	fields := []*discordgo.MessageEmbedField{
		{Name: "Status", Value: state.Status, Inline: true},
		{Name: "Queued", Value: fmt.Sprint(len(state.Queue)), Inline: true},
		{Name: "Loop", Value: onOff(state.LoopEnabled), Inline: true},
		{Name: "Voice", Value: onOff(state.Connected), Inline: true},
	}
	description := "Nothing is playing."
	if state.Current != nil {
		description = trackLine(*state.Current)
	}

	return r.Respond(&discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Embeds: []*discordgo.MessageEmbed{
				{
					Title:       "Player state",
					Description: description,
					Fields:      fields,
					Color:       colorInfo,
				},
			},
		},
	})
}

// simpleCommand sends a payload-less command and reports the outcome.
func (h *CommandHandlers) simpleCommand(
	i *discordgo.InteractionCreate,
	r bot.Responder,
	action ipc.Action,
	successMessage string,
) error {
	guildID, err := snowflake.Parse(i.GuildID)
	if err != nil {
		return respondError(r, "Invalid guild")
	}

	resp, err := h.client.Command(context.Background(), action, guildID, nil)
	if err != nil {
		return respondError(r, "Player service unreachable")
	}
	if respErr := resp.Err(); respErr != nil {
		return respondCommandFailure(r, resp)
	}
	return respondSuccess(r, successMessage)
}

// Response helpers.

func respondSuccess(r bot.Responder, message string) error {
	return r.Respond(&discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Embeds: []*discordgo.MessageEmbed{
				{
					Description: message,
					Color:       colorSuccess,
				},
			},
		},
	})
}

func respondError(r bot.Responder, message string) error {
	return r.Respond(&discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Embeds: []*discordgo.MessageEmbed{
				{
					Title:       "Error",
					Description: message,
					Color:       colorError,
				},
			},
		},
	})
}

// respondCommandFailure renders a structured engine error for the user.
func respondCommandFailure(r bot.Responder, resp ipc.Response) error {
	if resp.Error == nil {
		return respondError(r, "The player service rejected the command")
	}
	switch resp.Error.Code {
	case ipc.CodeQueueFull:
		return respondError(r, "The queue is full.")
	case ipc.CodeInvalidPosition:
		return respondError(r, "No track at that position.")
	case ipc.CodeNotFound:
		return respondError(r, "No playable track found for that query.")
	case ipc.CodeFormatUnavailable:
		return respondError(r, "That track has no playable audio.")
	case ipc.CodeResolverTimeout:
		return respondError(r, "Looking up that track took too long, try again.")
	default:
		return respondError(r, resp.Error.Message)
	}
}

func trackLine(track ipc.TrackInfo) string {
	title := track.Title
	if title == "" {
		title = track.Source
	}
	line := fmt.Sprintf("**%s**", title)
	if track.PageURI != "" {
		line = fmt.Sprintf("[%s](%s)", title, track.PageURI)
	}
	if track.IsLive {
		return line + " (live)"
	}
	if track.DurationSeconds > 0 {
		return fmt.Sprintf("%s (%s)", line, formatDuration(time.Duration(track.DurationSeconds)*time.Second))
	}
	return line
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	m := (d % time.Hour) / time.Minute
	s := (d % time.Minute) / time.Second
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}
