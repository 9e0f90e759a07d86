package bot

import (
	"testing"

	"github.com/bwmarrin/discordgo"
)

// stubModule is a test double for Module.
type stubModule struct {
	name          string
	commands      []*discordgo.ApplicationCommand
	handlers      map[string]InteractionHandler
	eventHandlers []EventHandler

	initErr error
	shutErr error

	gotDeps       ModuleDependencies
	initCalled    bool
	shutdownOrder *[]string
}

func (m *stubModule) Name() string                                   { return m.name }
func (m *stubModule) Commands() []*discordgo.ApplicationCommand      { return m.commands }
func (m *stubModule) CommandHandlers() map[string]InteractionHandler { return m.handlers }
func (m *stubModule) EventHandlers() []EventHandler                  { return m.eventHandlers }

func (m *stubModule) Init(deps ModuleDependencies) error {
	m.initCalled = true
	m.gotDeps = deps
	return m.initErr
}

func (m *stubModule) Shutdown() error {
	if m.shutdownOrder != nil {
		*m.shutdownOrder = append(*m.shutdownOrder, m.name)
	}
	return m.shutErr
}

func TestRegistry_Register(t *testing.T) {
	reg := NewRegistry()

	mod := &stubModule{name: "test-module"}
	reg.Register(mod)

	modules := reg.Modules()
	if len(modules) != 1 {
		t.Fatalf("expected 1 module, got %d", len(modules))
	}

	if modules[0].Name() != "test-module" {
		t.Errorf("expected module name %q, got %q", "test-module", modules[0].Name())
	}
}

func TestRegistry_PreservesRegistrationOrder(t *testing.T) {
	reg := NewRegistry()

	reg.Register(&stubModule{name: "first"})
	reg.Register(&stubModule{name: "second"})

	modules := reg.Modules()
	if len(modules) != 2 {
		t.Fatalf("expected 2 modules, got %d", len(modules))
	}
	if modules[0].Name() != "first" || modules[1].Name() != "second" {
		t.Errorf("expected registration order preserved, got %q then %q",
			modules[0].Name(), modules[1].Name())
	}
}

func TestRegistry_ModulesReturnsSnapshot(t *testing.T) {
	reg := NewRegistry()

	reg.Register(&stubModule{name: "module-1"})
	modules := reg.Modules()

	reg.Register(&stubModule{name: "module-2"})

	// The earlier snapshot must not see the later registration.
	if len(modules) != 1 {
		t.Errorf("expected snapshot to have 1 module, got %d", len(modules))
	}
}

func TestGlobalRegistry(t *testing.T) {
	ResetGlobalRegistry()

	mod := &stubModule{name: "global-test"}
	Register(mod)

	modules := Modules()
	if len(modules) != 1 {
		t.Fatalf("expected 1 module, got %d", len(modules))
	}

	if modules[0].Name() != "global-test" {
		t.Errorf("expected module name %q, got %q", "global-test", modules[0].Name())
	}

	ResetGlobalRegistry()
}
