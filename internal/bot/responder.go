package bot

import "github.com/bwmarrin/discordgo"

// Responder abstracts replying to an interaction so command handlers can be
// tested without a live Discord connection.
type Responder interface {
	// Respond sends a response to an interaction.
	Respond(response *discordgo.InteractionResponse) error
}

// DiscordResponder replies through a live session.
type DiscordResponder struct {
	session     *discordgo.Session
	interaction *discordgo.Interaction
}

// NewDiscordResponder creates a DiscordResponder for one interaction.
func NewDiscordResponder(s *discordgo.Session, i *discordgo.Interaction) *DiscordResponder {
	return &DiscordResponder{
		session:     s,
		interaction: i,
	}
}

// Respond sends the response via the Discord API.
func (r *DiscordResponder) Respond(response *discordgo.InteractionResponse) error {
	return r.session.InteractionRespond(r.interaction, response)
}

// MockResponder records responses for test assertions.
type MockResponder struct {
	Responses    []*discordgo.InteractionResponse
	LastResponse *discordgo.InteractionResponse
	Err          error
}

// Respond records the response and returns the configured error.
func (m *MockResponder) Respond(response *discordgo.InteractionResponse) error {
	m.Responses = append(m.Responses, response)
	m.LastResponse = response
	return m.Err
}
