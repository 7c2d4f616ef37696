package mirror

import (
	"context"
	"errors"

	"github.com/dvangennip/web-remote-for-OBS/internal/client"
)

// screenshotTargets picks the scenes due for a thumbnail this tick: program
// and preview always, the others every ScreenshotIdleEvery ticks.
func (e *Engine) screenshotTargets() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	idle := e.opts.ScreenshotIdleEvery > 0 && (e.ticks-1)%e.opts.ScreenshotIdleEvery == 0
	var names []string
	for _, s := range e.scenes.Ordered() {
		if s.Program || s.Preview || idle {
			names = append(names, s.Name)
		}
	}
	return names
}

func (e *Engine) screenshotSize() (int, int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	w := e.opts.ScreenshotWidth
	v := e.status.Video
	if v.BaseWidth <= 0 || v.BaseHeight <= 0 {
		return w, w * 9 / 16
	}
	return w, w * v.BaseHeight / v.BaseWidth
}

// RefreshScreenshots captures thumbnails of the scenes due this tick.
func (e *Engine) RefreshScreenshots(ctx context.Context) error {
	names := e.screenshotTargets()
	if len(names) == 0 {
		return nil
	}
	w, h := e.screenshotSize()

	images := make(map[string]string, len(names))
	var errs []error
	for _, name := range names {
		var shot struct {
			Img string `json:"img"`
		}
		err := e.call(ctx, "TakeSourceScreenshot", client.Params{
			"sourceName": name, "embedPictureFormat": "jpg", "width": w, "height": h,
		}, &shot)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		images[name] = shot.Img
	}

	e.mu.Lock()
	for name, img := range images {
		if s, ok := e.scenes.Get(name); ok {
			s.Screenshot = img
			e.scenes.Changed(s)
		}
	}
	e.mu.Unlock()
	e.changed()
	return errors.Join(errs...)
}
