package app

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"

	"github.com/dvangennip/web-remote-for-OBS/internal/client"
	"github.com/dvangennip/web-remote-for-OBS/internal/config"
	"github.com/dvangennip/web-remote-for-OBS/internal/mirror"
	"github.com/dvangennip/web-remote-for-OBS/internal/mock"
	"github.com/dvangennip/web-remote-for-OBS/internal/views/connection"
)

type harness struct {
	obs    *mock.Server
	deps   Deps
	engine *mirror.Engine
}

func newHarness(t *testing.T, password string) *harness {
	t.Helper()
	obs := mock.NewServer("pw", mock.DefaultStudio(), zerolog.Nop())
	ts := httptest.NewServer(obs)
	t.Cleanup(ts.Close)

	notifier := NewNotifier()
	session := client.NewSession(client.Options{RequestTimeout: 2 * time.Second, Log: zerolog.Nop()})
	t.Cleanup(session.Disconnect)
	engine := mirror.NewEngine(session, mirror.Options{Log: zerolog.Nop(), OnChange: notifier.Changed})
	engine.Subscribe(session.Router())
	session.AddLifecycle(engine)
	session.AddLifecycle(notifier)
	session.OnStateChange(notifier.StateChanged)

	cfg := config.Default()
	cfg.Client.Host = strings.TrimPrefix(ts.URL, "http://")
	cfg.Client.Password = password
	cfg.Client.RequestTimeout = 2 * time.Second

	return &harness{
		obs:    obs,
		engine: engine,
		deps: Deps{
			Session:  session,
			Engine:   engine,
			Notifier: notifier,
			Store:    config.NewConnectionStore(t.TempDir()),
			Config:   cfg,
			Log:      zerolog.Nop(),
		},
	}
}

func keyMsg(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	return next.(Model), cmd
}

// connected returns a model connected to the fake OBS with the mirror
// synced and pulled into the views.
func (h *harness) connected(t *testing.T) Model {
	t.Helper()
	m := New(h.deps)
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 140, Height: 40})

	conn := config.Connection{Host: h.deps.Config.Client.Host, Password: "pw"}
	done := m.connect(conn, true)()
	m, _ = update(t, m, done)
	if err := done.(connectDoneMsg).err; err != nil {
		t.Fatalf("connect: %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for len(h.engine.Scenes()) < 4 || len(h.engine.Audio()) < 4 {
		if time.Now().After(deadline) {
			t.Fatalf("mirror not synced: %d scenes, %d audio sources", len(h.engine.Scenes()), len(h.engine.Audio()))
		}
		time.Sleep(10 * time.Millisecond)
	}
	m, _ = update(t, m, changedMsg{})
	return m
}

func TestConnectClosesOverlayAndRemembersConnection(t *testing.T) {
	h := newHarness(t, "pw")
	m := h.connected(t)

	if m.overlay != OverlayNone {
		t.Errorf("overlay = %d after connecting", m.overlay)
	}
	saved, ok, err := h.deps.Store.Load()
	if err != nil || !ok {
		t.Fatalf("stored connection: ok=%v err=%v", ok, err)
	}
	if saved.Password != "pw" || saved.Host != h.deps.Config.Client.Host {
		t.Errorf("saved = %+v", saved)
	}
	if m.scenes.Len() != 4 {
		t.Errorf("scene list has %d entries, want 4", m.scenes.Len())
	}
}

func TestAutoConnectNeedsCredential(t *testing.T) {
	h := newHarness(t, "")
	if New(h.deps).autoConnect {
		t.Error("no stored connection and no password: should not auto-connect")
	}

	h = newHarness(t, "pw")
	m := New(h.deps)
	if !m.autoConnect || !m.connForm.Connecting {
		t.Error("configured password should auto-connect")
	}
}

func TestSceneShortcutSwitchesProgram(t *testing.T) {
	h := newHarness(t, "pw")
	m := h.connected(t)

	m, cmd := update(t, m, keyMsg("2"))
	if cmd == nil {
		t.Fatal("expected a command for scene shortcut")
	}
	res := cmd().(resultMsg)
	if !res.res.OK() {
		t.Fatalf("select failed: %s", res.res.Error)
	}
	if got := h.obs.Studio().Current; got != "Camera" {
		t.Errorf("program = %q, want Camera", got)
	}

	_, cmd = update(t, m, keyMsg("#"))
	if res := cmd().(resultMsg); !res.res.OK() {
		t.Fatalf("forced select failed: %s", res.res.Error)
	}
	if got := h.obs.Studio().Current; got != "Screen share" {
		t.Errorf("program = %q, want Screen share", got)
	}
}

func TestUnknownShortcutDoesNothing(t *testing.T) {
	h := newHarness(t, "pw")
	m := h.connected(t)
	if _, cmd := update(t, m, keyMsg("9")); cmd != nil {
		t.Error("no ninth scene, no command")
	}
}

func TestMuteSelectedSource(t *testing.T) {
	h := newHarness(t, "pw")
	m := h.connected(t)
	m, _ = update(t, m, keyMsg("tab"))
	if m.pane != PaneMixer {
		t.Fatal("tab should focus the mixer")
	}

	src, ok := m.mixer.Selected()
	if !ok {
		t.Fatal("no source selected")
	}
	_, cmd := update(t, m, keyMsg("m"))
	if res := cmd().(resultMsg); !res.res.OK() {
		t.Fatalf("mute failed: %s", res.res.Error)
	}
	for _, s := range h.obs.Studio().Sources {
		if s.Name == src.Name && s.Muted == src.Muted {
			t.Errorf("%s mute state not toggled", s.Name)
		}
	}
}

func TestEnterOnMixerOpensFilters(t *testing.T) {
	h := newHarness(t, "pw")
	m := h.connected(t)
	m, _ = update(t, m, keyMsg("tab"))

	m, cmd := update(t, m, keyMsg("enter"))
	if m.overlay != OverlayFilters {
		t.Fatalf("overlay = %d, want filters", m.overlay)
	}
	if cmd == nil {
		t.Fatal("opening filters should resync them")
	}
	if res := cmd().(resultMsg); !res.res.OK() {
		t.Errorf("filter resync failed: %s", res.res.Error)
	}

	m, _ = update(t, m, keyMsg("esc"))
	if m.overlay != OverlayNone {
		t.Error("esc should close the filter panel")
	}
}

func TestWrongPasswordShowsMessage(t *testing.T) {
	h := newHarness(t, "")
	m := New(h.deps)

	done := m.connect(config.Connection{Host: h.deps.Config.Client.Host, Password: "nope"}, true)()
	m, _ = update(t, m, done)
	if !errors.Is(done.(connectDoneMsg).err, client.ErrAuthFailed) {
		t.Fatalf("err = %v, want auth failure", done.(connectDoneMsg).err)
	}
	if !strings.Contains(m.connForm.Message, "Authentication failed") {
		t.Errorf("message = %q", m.connForm.Message)
	}
	if m.overlay != OverlayConnection {
		t.Error("connection form should stay open")
	}
	saved, ok, err := h.deps.Store.Load()
	if err != nil || !ok {
		t.Fatalf("attempted connection not stored: ok=%v err=%v", ok, err)
	}
	if saved.Password != "nope" {
		t.Errorf("saved password = %q, want the one just tried", saved.Password)
	}
}

func TestSubmitStoresConnectionBeforeDialing(t *testing.T) {
	h := newHarness(t, "")
	m := New(h.deps)

	m.connect(config.Connection{Host: "127.0.0.1:1", Password: "from-env"}, false)()
	if _, ok, _ := h.deps.Store.Load(); ok {
		t.Fatal("automatic attempts should not be stored")
	}

	_, cmd := update(t, m, connection.SubmitMsg{Host: "127.0.0.1:1", Password: "secret", Secure: true})
	if cmd == nil {
		t.Fatal("submit should start connecting")
	}
	if done := cmd().(connectDoneMsg); done.err == nil {
		t.Fatal("nothing listens on port 1")
	}
	saved, ok, err := h.deps.Store.Load()
	if err != nil || !ok {
		t.Fatalf("stored connection: ok=%v err=%v", ok, err)
	}
	if saved.Host != "127.0.0.1:1" || saved.Password != "secret" || !saved.Secure {
		t.Errorf("saved = %+v", saved)
	}
}

func TestDropReopensConnectionForm(t *testing.T) {
	h := newHarness(t, "pw")
	m := New(h.deps)
	m.overlay = OverlayNone

	m, _ = update(t, m, droppedMsg{info: client.DisconnectInfo{Reason: client.ReasonRequested}})
	if m.overlay != OverlayNone {
		t.Error("requested disconnect should not open the form")
	}

	m, _ = update(t, m, droppedMsg{info: client.DisconnectInfo{Reason: client.ReasonNetworkError, Err: errors.New("reset")}})
	if m.overlay != OverlayConnection {
		t.Error("network drop should open the form")
	}
	if m.connForm.Message == "" || m.statusBar.Message == "" {
		t.Error("drop should be explained")
	}
}

func TestCommandFailureShownInStatusBar(t *testing.T) {
	h := newHarness(t, "pw")
	m := New(h.deps)

	m, _ = update(t, m, resultMsg{what: "transition", res: client.Result{Status: client.StatusError, Error: "studio mode not enabled"}})
	if m.statusBar.Message != "transition: studio mode not enabled" {
		t.Errorf("message = %q", m.statusBar.Message)
	}
	m, _ = update(t, m, resultMsg{what: "transition", res: client.Result{Status: client.StatusOK}})
	if m.statusBar.Message != "" {
		t.Error("success should clear the notice")
	}
}

func TestOverlayKeys(t *testing.T) {
	h := newHarness(t, "pw")
	m := New(h.deps)
	m.overlay = OverlayNone

	for _, tt := range []struct {
		key  string
		want Overlay
	}{
		{"?", OverlayHelp},
		{"d", OverlayDebug},
		{"i", OverlayDashboard},
		{"x", OverlayText},
		{"c", OverlayConnection},
	} {
		m, _ = update(t, m, keyMsg(tt.key))
		if m.overlay != tt.want {
			t.Errorf("%s: overlay = %d, want %d", tt.key, m.overlay, tt.want)
		}
		m.overlay = OverlayNone
	}
}

func TestViewBeforeResize(t *testing.T) {
	h := newHarness(t, "pw")
	if got := New(h.deps).View(); got != "Initializing..." {
		t.Errorf("View() = %q", got)
	}
}

func TestViewShowsScenesAndMixer(t *testing.T) {
	h := newHarness(t, "pw")
	m := h.connected(t)
	view := m.View()
	for _, want := range []string{"SCENES", "AUDIO", "Camera", "Mic"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}
}

func TestNotifierCoalescesChanges(t *testing.T) {
	n := NewNotifier()
	n.Changed()
	n.Changed()

	ctx, cancel := context.WithCancel(context.Background())
	if _, ok := n.Wait(ctx)().(changedMsg); !ok {
		t.Fatal("expected a change")
	}
	cancel()
	if msg := n.Wait(ctx)(); msg != nil {
		t.Errorf("second change should have been coalesced, got %T", msg)
	}
}

func TestNotifierForwardsLogLines(t *testing.T) {
	n := NewNotifier()
	log := zerolog.New(n)
	log.Warn().Str("component", "poll").Err(errors.New("boom")).Msg("refresh failed")

	msg, ok := n.Wait(context.Background())().(logMsg)
	if !ok {
		t.Fatal("expected a log message")
	}
	if msg.kind != "err" || msg.message != "poll: refresh failed err=boom" {
		t.Errorf("log = %+v", msg)
	}
}

func TestSectionsCoverFullHelp(t *testing.T) {
	k := DefaultKeyMap()
	sections := k.Sections()
	if len(sections) != len(k.FullHelp()) {
		t.Fatalf("%d sections for %d groups", len(sections), len(k.FullHelp()))
	}
	for i, group := range k.FullHelp() {
		if len(sections[i].Keys) != len(group) {
			t.Errorf("%s: %d keys, want %d", sections[i].Title, len(sections[i].Keys), len(group))
		}
	}
}

func TestNotifierForwardsWatchedEvents(t *testing.T) {
	n := NewNotifier()
	r := client.NewRouter(zerolog.Nop())
	n.Watch(r)

	r.Emit(client.SourceVolumeChanged{SourceName: "Mic", Volume: 0.5})
	r.Emit(client.SwitchScenes{SceneName: "Camera"})

	msg, ok := n.Wait(context.Background())().(logMsg)
	if !ok {
		t.Fatal("expected a log message")
	}
	if msg.kind != "evt" || msg.message != client.EventSwitchScenes {
		t.Errorf("log = %+v, volume changes should not be forwarded", msg)
	}
}

func TestDebugOverlayTabCyclesFilter(t *testing.T) {
	h := newHarness(t, "pw")
	m := New(h.deps)
	m.overlay = OverlayDebug

	m, _ = update(t, m, keyMsg("tab"))
	if got := m.debug.Filter().String(); got != "session" {
		t.Errorf("filter = %s after tab, want session", got)
	}
	if m.overlay != OverlayDebug {
		t.Error("tab should keep the debug overlay open")
	}
}
