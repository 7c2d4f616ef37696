package app

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/rs/zerolog"

	"github.com/dvangennip/web-remote-for-OBS/internal/client"
	"github.com/dvangennip/web-remote-for-OBS/internal/config"
	"github.com/dvangennip/web-remote-for-OBS/internal/mirror"
	"github.com/dvangennip/web-remote-for-OBS/internal/theme"
	"github.com/dvangennip/web-remote-for-OBS/internal/views/connection"
	"github.com/dvangennip/web-remote-for-OBS/internal/views/dashboard"
	"github.com/dvangennip/web-remote-for-OBS/internal/views/debug"
	"github.com/dvangennip/web-remote-for-OBS/internal/views/filters"
	helpview "github.com/dvangennip/web-remote-for-OBS/internal/views/help"
	"github.com/dvangennip/web-remote-for-OBS/internal/views/mixer"
	"github.com/dvangennip/web-remote-for-OBS/internal/views/scenes"
	"github.com/dvangennip/web-remote-for-OBS/internal/views/status"
	"github.com/dvangennip/web-remote-for-OBS/internal/views/text"
)

// Overlay identifies which modal is active.
type Overlay int

const (
	OverlayNone Overlay = iota
	OverlayConnection
	OverlayFilters
	OverlayText
	OverlayDashboard
	OverlayDebug
	OverlayHelp
)

// Pane is the focused main panel.
type Pane int

const (
	PaneScenes Pane = iota
	PaneMixer
)

// volumeStep is how far one key press moves a fader.
const volumeStep = 0.05

const hostSampleInterval = 2 * time.Second

type (
	resultMsg struct {
		what string
		res  client.Result
	}
	connectDoneMsg struct {
		conn config.Connection
		err  error
	}
	frameMsg    struct{}
	hostTickMsg struct{}
	hostLoadMsg struct {
		load dashboard.HostLoad
		err  error
	}
)

// Deps are the long-lived collaborators of the TUI.
type Deps struct {
	Session  *client.Session
	Engine   *mirror.Engine
	Notifier *Notifier
	// Store remembers the last connection attempted. Optional.
	Store  *config.ConnectionStore
	Config *config.Config
	Log    zerolog.Logger
}

// Model is the root Bubble Tea model.
type Model struct {
	deps   Deps
	ctx    context.Context
	cancel context.CancelFunc

	keys   KeyMap
	footer help.Model
	width  int
	height int

	pane        Pane
	overlay     Overlay
	autoConnect bool
	animating   bool

	// Sub-views.
	statusBar status.Model
	scenes    scenes.Model
	mixer     mixer.Model
	filters   filters.Model
	dashboard dashboard.Model
	debug     debug.Model
	help      helpview.Model
	connForm  connection.Model
	textForm  text.Model
}

// New creates the root model. The connect form is prefilled from the
// stored connection, falling back to the configured host.
func New(deps Deps) Model {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := deps.Config
	if cfg == nil {
		cfg = config.Default()
		deps.Config = cfg
	}

	conn := config.Connection{Host: cfg.Client.Host, Password: cfg.Client.Password, Secure: cfg.Client.PreferSecure}
	stored := false
	if deps.Store != nil {
		saved, ok, err := deps.Store.Load()
		if err != nil {
			deps.Log.Warn().Err(err).Msg("ignoring stored connection")
		}
		if ok {
			conn, stored = saved, true
		}
	}

	keys := DefaultKeyMap()
	m := Model{
		deps:        deps,
		ctx:         ctx,
		cancel:      cancel,
		keys:        keys,
		footer:      help.New(),
		overlay:     OverlayConnection,
		autoConnect: cfg.Client.AutoConnect && (stored || conn.Password != ""),
		statusBar:   status.New(),
		scenes:      scenes.New(),
		mixer:       mixer.New(),
		dashboard:   dashboard.New(),
		debug:       debug.New(),
		help:        helpview.New(keys.Sections()),
		connForm:    connection.New(conn.Host, conn.Password, conn.Secure),
	}
	m.scenes.Focused = true
	m.connForm.Connecting = m.autoConnect
	return m
}

// Init starts listening for notifications and connects when a previous
// connection can be reused.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.deps.Notifier.Wait(m.ctx), sampleHost(m.ctx)}
	if m.autoConnect {
		cmds = append(cmds, m.connect(config.Connection{
			Host:     m.connForm.Host(),
			Password: m.connForm.Password(),
			Secure:   m.connForm.Secure(),
		}, false))
	}
	return tea.Batch(cmds...)
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.statusBar.Width = msg.Width
		m.dashboard.Width = msg.Width
		m.footer.Width = msg.Width
		m.layout()
		m.help.SetSize(min(msg.Width-4, 100), max(msg.Height-6, 5))
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case changedMsg:
		cmd := m.sync()
		return m, tea.Batch(cmd, m.deps.Notifier.Wait(m.ctx))

	case stateMsg:
		m.statusBar.State = m.deps.Session.State()
		m.statusBar.Endpoint = m.deps.Session.Endpoint()
		m.debug.Add(debug.KindSession, msg.from.String()+" → "+msg.to.String())
		return m, m.deps.Notifier.Wait(m.ctx)

	case droppedMsg:
		desc := client.DescribeDisconnect(msg.info)
		m.statusBar.Message = desc
		m.connForm.Message = desc
		m.debug.Add(debug.KindSession, desc)
		if msg.info.Reason != client.ReasonRequested && m.overlay != OverlayConnection {
			m.overlay = OverlayConnection
		}
		return m, m.deps.Notifier.Wait(m.ctx)

	case logMsg:
		m.debug.Add(debug.Kind(msg.kind), msg.message)
		return m, m.deps.Notifier.Wait(m.ctx)

	case connectDoneMsg:
		m.connForm.Connecting = false
		if msg.err != nil {
			m.connForm.Message = describeConnectError(msg.err)
			m.debug.Add(debug.KindError, msg.err.Error())
			return m, nil
		}
		m.connForm.Message = ""
		m.statusBar.Message = ""
		if m.overlay == OverlayConnection {
			m.overlay = OverlayNone
		}
		return m, nil

	case resultMsg:
		if msg.res.OK() {
			m.statusBar.Message = ""
			m.filters.Error = ""
			m.debug.Add(debug.KindCommand, msg.what)
			return m, nil
		}
		notice := msg.what + ": " + msg.res.Error
		m.statusBar.Message = notice
		m.filters.Error = notice
		m.debug.Add(debug.KindError, notice)
		return m, nil

	case frameMsg:
		if m.mixer.Step() {
			return m, frame()
		}
		m.animating = false
		return m, nil

	case hostTickMsg:
		return m, sampleHost(m.ctx)

	case hostLoadMsg:
		if msg.err == nil {
			m.dashboard.Host = msg.load
		}
		return m, tea.Tick(hostSampleInterval, func(time.Time) tea.Msg { return hostTickMsg{} })

	case connection.SubmitMsg:
		m.connForm.Connecting = true
		m.connForm.Message = ""
		return m, m.connect(config.Connection{Host: msg.Host, Password: msg.Password, Secure: msg.Secure}, true)

	case text.SubmitMsg:
		m.overlay = OverlayNone
		source, value := msg.Source, msg.Text
		return m, m.run("set text of "+source, func(ctx context.Context) client.Result {
			return m.deps.Engine.SetText(ctx, source, value)
		})
	}

	return m, nil
}

// sync pulls the mirrored state into the views.
func (m *Model) sync() tea.Cmd {
	e := m.deps.Engine
	m.scenes.SetScenes(e.Scenes())
	m.scenes.StudioMode = e.StudioMode()
	m.mixer.SetSources(e.Audio())
	st := e.Status()
	m.statusBar.Status = st
	m.dashboard.Status = st

	if m.overlay == OverlayFilters {
		if src, ok := e.AudioSource(m.filters.Source.Name); ok {
			m.filters.SetSource(src)
		} else {
			m.overlay = OverlayNone
		}
	}

	if !m.animating && m.mixer.Animating() {
		m.animating = true
		return frame()
	}
	return nil
}

func (m *Model) layout() {
	if m.scenes.Full || m.width < 100 {
		m.scenes.Width = m.width
		m.mixer.Width = m.width
		return
	}
	m.scenes.Width = m.width * 2 / 5
	m.mixer.Width = m.width - m.scenes.Width
}

func (m *Model) focus(p Pane) {
	m.pane = p
	m.scenes.Focused = p == PaneScenes
	m.mixer.Focused = p == PaneMixer
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		m.cancel()
		return m, tea.Quit
	}

	switch m.overlay {
	case OverlayConnection:
		if key.Matches(msg, m.keys.Escape) && m.connected() {
			m.overlay = OverlayNone
			return m, nil
		}
		var cmd tea.Cmd
		m.connForm, cmd = m.connForm.Update(msg)
		return m, cmd

	case OverlayText:
		if key.Matches(msg, m.keys.Escape) {
			m.overlay = OverlayNone
			return m, nil
		}
		var cmd tea.Cmd
		m.textForm, cmd = m.textForm.Update(msg)
		return m, cmd

	case OverlayFilters:
		return m.handleFilterKey(msg)

	case OverlayHelp:
		if key.Matches(msg, m.keys.Escape, m.keys.Help, m.keys.Quit) {
			m.overlay = OverlayNone
			return m, nil
		}
		var cmd tea.Cmd
		m.help, cmd = m.help.Update(msg)
		return m, cmd

	case OverlayDebug:
		switch {
		case key.Matches(msg, m.keys.Up):
			m.debug.ScrollUp(1)
		case key.Matches(msg, m.keys.Down):
			m.debug.ScrollDown(1)
		case key.Matches(msg, m.keys.Tab):
			m.debug.CycleFilter()
		case key.Matches(msg, m.keys.Escape, m.keys.Debug):
			m.overlay = OverlayNone
		}
		return m, nil

	case OverlayDashboard:
		if key.Matches(msg, m.keys.Escape, m.keys.Dashboard) {
			m.overlay = OverlayNone
		}
		return m, nil
	}

	e := m.deps.Engine
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.cancel()
		return m, tea.Quit

	case key.Matches(msg, m.keys.Tab):
		if m.pane == PaneScenes {
			m.focus(PaneMixer)
		} else {
			m.focus(PaneScenes)
		}
		return m, nil

	case key.Matches(msg, m.keys.Down):
		if m.pane == PaneScenes {
			m.scenes.MoveDown()
		} else {
			m.mixer.MoveDown()
		}
		return m, nil

	case key.Matches(msg, m.keys.Up):
		if m.pane == PaneScenes {
			m.scenes.MoveUp()
		} else {
			m.mixer.MoveUp()
		}
		return m, nil

	case key.Matches(msg, m.keys.Scene):
		name, ok := e.SceneByShortcut(msg.String())
		if !ok {
			return m, nil
		}
		return m, m.run("select "+name, func(ctx context.Context) client.Result {
			return e.SelectScene(ctx, name, false)
		})

	case key.Matches(msg, m.keys.ForceScene):
		digit := string(sceneKeys[strings.Index(forceKeys, msg.String())])
		name, ok := e.SceneByShortcut(digit)
		if !ok {
			return m, nil
		}
		return m, m.run("program "+name, func(ctx context.Context) client.Result {
			return e.SelectScene(ctx, name, true)
		})

	case key.Matches(msg, m.keys.Enter):
		if m.pane == PaneScenes {
			sc, ok := m.scenes.Selected()
			if !ok {
				return m, nil
			}
			name := sc.Name
			return m, m.run("select "+name, func(ctx context.Context) client.Result {
				return e.SelectScene(ctx, name, false)
			})
		}
		src, ok := m.mixer.Selected()
		if !ok {
			return m, nil
		}
		m.filters = filters.New(src)
		m.overlay = OverlayFilters
		name := src.Name
		return m, m.runErr("filters of "+name, func(ctx context.Context) error {
			return e.ResyncFilters(ctx, name)
		})

	case key.Matches(msg, m.keys.Transition):
		return m, m.run("transition", e.Transition)

	case key.Matches(msg, m.keys.StudioMode):
		return m, m.run("studio mode", e.ToggleStudioMode)

	case key.Matches(msg, m.keys.Layout):
		m.scenes.Full = !m.scenes.Full
		m.layout()
		return m, nil

	case key.Matches(msg, m.keys.Mute):
		return m.withSource(func(name string) tea.Cmd {
			return m.run("mute "+name, func(ctx context.Context) client.Result {
				return e.ToggleMute(ctx, name)
			})
		})

	case key.Matches(msg, m.keys.VolumeUp), key.Matches(msg, m.keys.VolumeDown):
		step := volumeStep
		if key.Matches(msg, m.keys.VolumeDown) {
			step = -step
		}
		return m.withSource(func(name string) tea.Cmd {
			src, _ := e.AudioSource(name)
			target := src.Volume + step
			return m.run("volume "+name, func(ctx context.Context) client.Result {
				return e.SetVolume(ctx, name, target)
			})
		})

	case key.Matches(msg, m.keys.Visibility):
		return m.withSource(func(name string) tea.Cmd {
			src, _ := e.AudioSource(name)
			return m.run("visibility "+name, func(ctx context.Context) client.Result {
				return e.SetVisibility(ctx, name, !src.Visible)
			})
		})

	case key.Matches(msg, m.keys.Stream):
		return m, m.run("stream", e.ToggleStreaming)

	case key.Matches(msg, m.keys.Record):
		return m, m.run("record", e.ToggleRecording)

	case key.Matches(msg, m.keys.Pause):
		return m, m.run("pause", e.TogglePause)

	case key.Matches(msg, m.keys.VirtualCam):
		return m, m.run("virtual camera", e.ToggleVirtualCam)

	case key.Matches(msg, m.keys.Text):
		m.textForm = text.New(m.textForm.Source())
		m.overlay = OverlayText
		return m, nil

	case key.Matches(msg, m.keys.Connect):
		m.overlay = OverlayConnection
		return m, nil

	case key.Matches(msg, m.keys.Disconnect):
		session := m.deps.Session
		return m, func() tea.Msg {
			session.Disconnect()
			return nil
		}

	case key.Matches(msg, m.keys.Dashboard):
		m.overlay = OverlayDashboard
		return m, nil

	case key.Matches(msg, m.keys.Debug):
		m.overlay = OverlayDebug
		return m, nil

	case key.Matches(msg, m.keys.Help):
		m.overlay = OverlayHelp
		return m, nil

	case key.Matches(msg, m.keys.Resync):
		return m, m.runErr("resync", e.SyncAll)
	}

	return m, nil
}

func (m Model) handleFilterKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	e := m.deps.Engine
	source := m.filters.Source.Name

	switch {
	case key.Matches(msg, m.keys.Escape, m.keys.Quit):
		m.overlay = OverlayNone
		return m, nil

	case key.Matches(msg, m.keys.Up):
		m.filters.MoveUp()
		return m, nil

	case key.Matches(msg, m.keys.Down):
		m.filters.MoveDown()
		return m, nil

	case key.Matches(msg, m.keys.Track):
		track := int(msg.String()[0] - '0')
		on := !m.filters.Source.Tracks[track-1]
		return m, m.run("track", func(ctx context.Context) client.Result {
			return e.SetTrack(ctx, source, track, on)
		})

	case key.Matches(msg, m.keys.Mute):
		return m, m.run("mute "+source, func(ctx context.Context) client.Result {
			return e.ToggleMute(ctx, source)
		})

	case key.Matches(msg, m.keys.Visibility):
		visible := !m.filters.Source.Visible
		return m, m.run("visibility "+source, func(ctx context.Context) client.Result {
			return e.SetVisibility(ctx, source, visible)
		})

	case key.Matches(msg, m.keys.Toggle):
		f, _, _, ok := m.filters.Current()
		if !ok {
			return m, nil
		}
		name, on := f.Name, !f.Enabled
		return m, m.run("filter "+name, func(ctx context.Context) client.Result {
			return e.SetFilterEnabled(ctx, source, name, on)
		})

	case key.Matches(msg, m.keys.Increase), key.Matches(msg, m.keys.Decrease):
		f, spec, onSetting, ok := m.filters.Current()
		if !ok || !onSetting {
			return m, nil
		}
		dir := 1
		if key.Matches(msg, m.keys.Decrease) {
			dir = -1
		}
		next, ok := filters.NextValue(spec, f.Settings[spec.Key], dir)
		if !ok {
			return m, nil
		}
		name := f.Name
		return m, m.run(name+" "+spec.Label, func(ctx context.Context) client.Result {
			return e.SetFilterSetting(ctx, source, name, spec.Key, next)
		})
	}
	return m, nil
}

// withSource runs fn for the mixer's selected source.
func (m Model) withSource(fn func(name string) tea.Cmd) (tea.Model, tea.Cmd) {
	src, ok := m.mixer.Selected()
	if !ok {
		return m, nil
	}
	return m, fn(src.Name)
}

func (m Model) connected() bool {
	return m.deps.Session.State() == client.StateAuthenticated
}

// run issues an OBS command off the UI goroutine and reports its result.
func (m Model) run(what string, fn func(ctx context.Context) client.Result) tea.Cmd {
	ctx := m.ctx
	return func() tea.Msg {
		return resultMsg{what: what, res: fn(ctx)}
	}
}

func (m Model) runErr(what string, fn func(ctx context.Context) error) tea.Cmd {
	return m.run(what, func(ctx context.Context) client.Result {
		if err := fn(ctx); err != nil {
			return client.Result{Status: client.StatusError, Command: what, Error: err.Error()}
		}
		return client.Result{Status: client.StatusOK, Command: what}
	})
}

// connect dials OBS off the UI goroutine. Manual attempts are remembered
// before dialing so a mistyped password is still there to correct.
func (m Model) connect(conn config.Connection, manual bool) tea.Cmd {
	session := m.deps.Session
	timeout := m.deps.Config.Client.RequestTimeout
	parent := m.ctx
	raw := conn.Host
	if conn.Secure && !strings.Contains(raw, "://") {
		raw = "wss://" + raw
	}
	store, log := m.deps.Store, m.deps.Log
	return func() tea.Msg {
		if manual && store != nil {
			if err := store.Save(conn); err != nil {
				log.Warn().Err(err).Msg("saving connection")
			}
		}
		ctx, cancel := context.WithTimeout(parent, timeout)
		defer cancel()
		return connectDoneMsg{conn: conn, err: session.Connect(ctx, raw, conn.Password)}
	}
}

func describeConnectError(err error) string {
	if errors.Is(err, client.ErrAuthFailed) {
		return "Authentication failed: check the password."
	}
	return "Could not connect: " + err.Error()
}

func frame() tea.Cmd {
	return tea.Tick(time.Second/mixer.FPS, func(time.Time) tea.Msg { return frameMsg{} })
}

func sampleHost(ctx context.Context) tea.Cmd {
	return func() tea.Msg {
		load, err := dashboard.SampleHost(ctx)
		return hostLoadMsg{load: load, err: err}
	}
}

// View renders the full TUI.
func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}

	var body string
	switch m.overlay {
	case OverlayConnection:
		body = m.center(m.connForm.View())
	case OverlayFilters:
		body = m.center(m.filters.View())
	case OverlayText:
		body = m.center(m.textForm.View())
	case OverlayDashboard:
		body = m.dashboard.View()
	case OverlayDebug:
		body = m.debug.View(m.width, m.height-4)
	case OverlayHelp:
		body = m.center(m.help.View())
	default:
		body = m.renderPanes()
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		m.statusBar.View(),
		body,
		m.footer.View(m.keys),
	)
}

func (m Model) renderPanes() string {
	if m.scenes.Full {
		return m.scenes.View()
	}
	if m.width < 100 {
		return lipgloss.JoinVertical(lipgloss.Left, m.scenes.View(), m.mixer.View())
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, m.scenes.View(), m.mixer.View())
}

func (m Model) center(s string) string {
	return lipgloss.Place(m.width, max(m.height-4, lipgloss.Height(s)), lipgloss.Center, lipgloss.Center, s,
		lipgloss.WithWhitespaceForeground(theme.ColorBg))
}
