package app

import (
	"context"
	"encoding/json"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"

	"github.com/dvangennip/web-remote-for-OBS/internal/client"
)

// Messages delivered by the Notifier.
type (
	changedMsg struct{}
	stateMsg   struct{ from, to client.State }
	droppedMsg struct{ info client.DisconnectInfo }
	logMsg     struct{ kind, message string }
)

// Notifier turns callbacks from the session, the mirror engine and the
// logger into Bubble Tea messages. Callbacks never block: mirror changes
// coalesce into one pending message, other messages are dropped when the UI
// falls behind.
type Notifier struct {
	changes chan struct{}
	states  chan stateMsg
	drops   chan droppedMsg
	logs    chan logMsg
}

// NewNotifier creates a Notifier. Wire Changed to mirror.Options.OnChange,
// StateChanged to Session.OnStateChange, register it with
// Session.AddLifecycle and add it as a log writer.
func NewNotifier() *Notifier {
	return &Notifier{
		changes: make(chan struct{}, 1),
		states:  make(chan stateMsg, 16),
		drops:   make(chan droppedMsg, 4),
		logs:    make(chan logMsg, 64),
	}
}

// Changed reports that mirrored state changed.
func (n *Notifier) Changed() {
	select {
	case n.changes <- struct{}{}:
	default:
	}
}

// watchedEvents are the pushed events shown in the debug log. Volume and
// filter chatter stays out; the mirror already reflects it.
var watchedEvents = append([]string{
	client.EventSwitchScenes,
	client.EventPreviewSceneChanged,
	client.EventScenesChanged,
	client.EventStudioModeSwitched,
	client.EventSourceCreated,
	client.EventSourceDestroyed,
	client.EventSourceRenamed,
}, client.OutputEventNames...)

// Watch forwards the names of structural OBS events to the debug log.
func (n *Notifier) Watch(r *client.Router) {
	for _, name := range watchedEvents {
		r.On(name, n.event)
	}
}

func (n *Notifier) event(ev client.Event) {
	select {
	case n.logs <- logMsg{kind: "evt", message: ev.EventName()}:
	default:
	}
}

// StateChanged reports a session state transition.
func (n *Notifier) StateChanged(from, to client.State) {
	select {
	case n.states <- stateMsg{from: from, to: to}:
	default:
	}
}

// Connected implements client.Lifecycle. The state transition already
// covers it.
func (n *Notifier) Connected(context.Context) {}

// Disconnected implements client.Lifecycle.
func (n *Notifier) Disconnected(info client.DisconnectInfo) {
	select {
	case n.drops <- droppedMsg{info: info}:
	default:
	}
}

// Write receives zerolog JSON lines and forwards them to the debug overlay.
func (n *Notifier) Write(p []byte) (int, error) {
	var line map[string]any
	if err := json.Unmarshal(p, &line); err != nil {
		return len(p), nil
	}
	msg := logMsg{kind: "log", message: formatLogLine(line)}
	if lvl, _ := line[zerolog.LevelFieldName].(string); lvl == "warn" || lvl == "error" || lvl == "fatal" {
		msg.kind = "err"
	}
	select {
	case n.logs <- msg:
	default:
	}
	return len(p), nil
}

// formatLogLine renders a log line as "component: message err=...".
func formatLogLine(line map[string]any) string {
	var b strings.Builder
	if c, ok := line["component"].(string); ok {
		b.WriteString(c)
		b.WriteString(": ")
	}
	if m, ok := line[zerolog.MessageFieldName].(string); ok {
		b.WriteString(m)
	}
	if e, ok := line[zerolog.ErrorFieldName].(string); ok {
		b.WriteString(" err=")
		b.WriteString(e)
	}
	return b.String()
}

// Wait returns a command that blocks until the next notification. The app
// issues it again after handling each message.
func (n *Notifier) Wait(ctx context.Context) tea.Cmd {
	return func() tea.Msg {
		select {
		case <-ctx.Done():
			return nil
		case <-n.changes:
			return changedMsg{}
		case s := <-n.states:
			return s
		case d := <-n.drops:
			return d
		case l := <-n.logs:
			return l
		}
	}
}
