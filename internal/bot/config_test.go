package bot

import (
	"testing"
)

func TestLoadConfig_WithValidToken(t *testing.T) {
	t.Setenv("DISCORD_TOKEN", "test-token-123")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.DiscordToken != "test-token-123" {
		t.Errorf("expected token %q, got %q", "test-token-123", cfg.DiscordToken)
	}
	if cfg.CommandGuildID != "" {
		t.Errorf("expected global command scope by default, got guild %q", cfg.CommandGuildID)
	}
	if cfg.StatusText != "/play" {
		t.Errorf("expected default status text %q, got %q", "/play", cfg.StatusText)
	}
}

func TestLoadConfig_WithEmptyToken(t *testing.T) {
	t.Setenv("DISCORD_TOKEN", "")

	_, err := LoadConfig()
	if err == nil {
		t.Error("expected error for missing token, got nil")
	}
}

func TestLoadConfig_GuildScopedCommands(t *testing.T) {
	t.Setenv("DISCORD_TOKEN", "test-token")
	t.Setenv("COMMAND_GUILD_ID", "81384788765712384")
	t.Setenv("BOT_STATUS", "tunes")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.CommandGuildID != "81384788765712384" {
		t.Errorf("expected command guild %q, got %q", "81384788765712384", cfg.CommandGuildID)
	}
	if cfg.StatusText != "tunes" {
		t.Errorf("expected status text %q, got %q", "tunes", cfg.StatusText)
	}
}
