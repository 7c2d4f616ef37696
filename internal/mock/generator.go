package mock

import (
	"context"
	"math/rand"
	"time"

	"github.com/dvangennip/web-remote-for-OBS/internal/client"
)

// Generator makes a fake studio look alive for demos: faders drift, the
// program scene rotates and a filter occasionally flips.
type Generator struct {
	server   *Server
	interval time.Duration
	rng      *rand.Rand
	tick     int
}

// NewGenerator creates a generator acting on server every interval.
func NewGenerator(server *Server, interval time.Duration, seed int64) *Generator {
	return &Generator{
		server:   server,
		interval: interval,
		rng:      rand.New(rand.NewSource(seed)),
	}
}

// Start runs the generator until ctx is cancelled.
func (g *Generator) Start(ctx context.Context) {
	go g.run(ctx)
}

func (g *Generator) run(ctx context.Context) {
	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.step()
		}
	}
}

// sceneEvery and filterEvery are in ticks.
const (
	sceneEvery  = 40
	filterEvery = 25
)

func (g *Generator) step() {
	g.tick++
	var events []event

	g.server.mu.Lock()
	st := &g.server.studio
	if len(st.Sources) > 0 {
		src := &st.Sources[g.rng.Intn(len(st.Sources))]
		if !src.Muted && src.Volume > 0 {
			vol := src.Volume + (g.rng.Float64()-0.5)*0.1
			vol = min(max(vol, 0.05), 1)
			src.Volume = vol
			events = append(events, event{updateType: client.EventSourceVolumeChanged, fields: map[string]any{
				"sourceName": src.Name, "volume": vol, "volumeDb": mulToDB(vol),
			}})
		}
	}

	if g.tick%sceneEvery == 0 && len(st.Scenes) > 1 {
		next := st.Scenes[g.rng.Intn(len(st.Scenes))]
		if next.Name != st.Current {
			st.Current = next.Name
			events = append(events, switchScenes(&next))
		}
	}

	if g.tick%filterEvery == 0 {
		for i := range st.Sources {
			src := &st.Sources[i]
			if len(src.Filters) == 0 {
				continue
			}
			f := &src.Filters[g.rng.Intn(len(src.Filters))]
			f.Enabled = !f.Enabled
			events = append(events, event{updateType: client.EventSourceFilterVisibilityChanged, fields: map[string]any{
				"sourceName": src.Name, "filterName": f.Name, "filterEnabled": f.Enabled,
			}})
			break
		}
	}
	g.server.mu.Unlock()

	g.server.broadcast(events)
}
