package mirror

import (
	"fmt"
	"math"
	"strconv"
)

// FilterKind is an audio filter type the panel knows how to control.
// Filters of any other type are ignored.
type FilterKind string

const (
	FilterNoiseGate        FilterKind = "noise_gate_filter"
	FilterNoiseSuppression FilterKind = "noise_suppress_filter_v2"
	FilterLimiter          FilterKind = "limiter_filter"
	FilterCompressor       FilterKind = "compressor_filter"
	FilterExpander         FilterKind = "expander_filter"
	FilterGain             FilterKind = "gain_filter"
	FilterDelay            FilterKind = "async_delay_filter"
	FilterMonitor          FilterKind = "audio_monitor"
	FilterNDIAudio         FilterKind = "ndi_audiofilter"
	FilterVST              FilterKind = "vst_filter"
	FilterInvertPolarity   FilterKind = "invert_polarity_filter"
)

// SettingFormat says how a setting is edited.
type SettingFormat int

const (
	FormatNumber SettingFormat = iota
	FormatString
	// FormatSelect picks one of Options (strings).
	FormatSelect
	// FormatIndexed picks one of Options (numbers) shown by Labels.
	FormatIndexed
	FormatBoolean
)

// SettingSpec describes one editable filter setting.
type SettingSpec struct {
	Key     string
	Label   string
	Format  SettingFormat
	Min     float64
	Max     float64
	Step    float64
	Unit    string
	Options []any
	Labels  []string
	Default any
}

type kindDef struct {
	title    string
	settings []SettingSpec
}

func number(key string, def, min, max, step float64, unit string) SettingSpec {
	return SettingSpec{Key: key, Label: key, Format: FormatNumber, Min: min, Max: max, Step: step, Unit: unit, Default: def}
}

func threshold(key string, def float64) SettingSpec { return number(key, def, -60, 0, 1, "dB") }
func gateThreshold(key string, def float64) SettingSpec {
	return number(key, def, -96, 0, 1, "dB")
}
func attack(def float64) SettingSpec  { return number("attack_time", def, 1, 500, 1, "ms") }
func release(def float64) SettingSpec { return number("release_time", def, 1, 1000, 1, "ms") }
func ratio(def float64) SettingSpec   { return number("ratio", def, 1, 20, 0.1, "") }
func outputGain() SettingSpec         { return number("output_gain", 0, -32, 32, 0.1, "dB") }

var filterKinds = map[FilterKind]kindDef{
	FilterNoiseGate: {"Noise gate", []SettingSpec{
		gateThreshold("close_threshold", -32),
		gateThreshold("open_threshold", -26),
		attack(25),
		number("hold_time", 200, 1, 1000, 1, "ms"),
		release(150),
	}},
	FilterNoiseSuppression: {"Noise suppression", []SettingSpec{
		{Key: "method", Label: "method", Format: FormatSelect, Options: []any{"speex", "rnnoise"}, Labels: []string{"Speex", "RNNoise"}, Default: "rnnoise"},
		threshold("suppress_level", -30),
	}},
	FilterLimiter: {"Limiter", []SettingSpec{
		threshold("threshold", -6),
		release(60),
	}},
	FilterCompressor: {"Compressor", []SettingSpec{
		ratio(10),
		threshold("threshold", -18),
		attack(6),
		release(60),
		outputGain(),
	}},
	FilterExpander: {"Expander", []SettingSpec{
		{Key: "presets", Label: "presets", Format: FormatSelect, Options: []any{"expander", "gate"}, Labels: []string{"Expander", "Gate"}, Default: "expander"},
		ratio(2),
		threshold("threshold", -40),
		attack(10),
		release(50),
		outputGain(),
	}},
	FilterGain: {"Gain", []SettingSpec{
		number("db", 0, -30, 30, 0.1, "dB"),
	}},
	FilterDelay: {"Video delay (async)", []SettingSpec{
		number("delay_ms", 0, 0, 500, 1, "ms"),
	}},
	FilterMonitor: {"Audio monitor", []SettingSpec{
		number("volume", 100, 0, 100, 1, "%"),
		{Key: "locked", Label: "volume_locked", Format: FormatBoolean, Options: []any{false, true}, Labels: []string{"Unlocked", "Locked"}, Default: false},
		{Key: "linked", Label: "volume_linked", Format: FormatBoolean, Options: []any{false, true}, Labels: []string{"Independent", "Linked to source"}, Default: false},
		{Key: "mute", Label: "mute", Format: FormatIndexed, Options: []any{0.0, 1.0, 2.0}, Labels: []string{"Independent", "Unmute if active", "Linked to source"}, Default: 0.0},
		number("delay", 0, 0, 2000, 50, "ms"),
	}},
	FilterNDIAudio: {"NDI audio output", []SettingSpec{
		{Key: "ndi_filter_ndiname", Label: "ndi_output_name", Format: FormatString, Default: "Dedicated NDI Audio output"},
	}},
	FilterVST:            {"VST plugin", nil},
	FilterInvertPolarity: {"Invert polarity", nil},
}

// ParseFilterKind reports whether typ is a supported filter type.
func ParseFilterKind(typ string) (FilterKind, bool) {
	k := FilterKind(typ)
	_, ok := filterKinds[k]
	return k, ok
}

// Title is the human name of the filter kind.
func (k FilterKind) Title() string {
	return filterKinds[k].title
}

// Schema returns the editable settings of the kind in display order.
func (k FilterKind) Schema() []SettingSpec {
	return filterKinds[k].settings
}

// Spec looks up one setting of the kind.
func (k FilterKind) Spec(key string) (SettingSpec, bool) {
	for _, s := range filterKinds[k].settings {
		if s.Key == key {
			return s, true
		}
	}
	return SettingSpec{}, false
}

// Settings merges reported over the kind's defaults. OBS omits settings left
// at their default, so defaults fill the gaps. Keys outside the schema are
// dropped.
func (k FilterKind) Settings(reported map[string]any) map[string]any {
	out := make(map[string]any, len(filterKinds[k].settings))
	for _, s := range filterKinds[k].settings {
		out[s.Key] = s.Default
		if v, ok := reported[s.Key]; ok && v != nil {
			if nv, err := s.Normalize(v); err == nil {
				out[s.Key] = nv
			}
		}
	}
	return out
}

// Normalize converts v into the setting's value type and clamps numbers
// into range, snapping to Step.
func (s SettingSpec) Normalize(v any) (any, error) {
	switch s.Format {
	case FormatNumber:
		f, err := toFloat(v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", s.Key, err)
		}
		if s.Step > 0 {
			f = s.Min + math.Round((f-s.Min)/s.Step)*s.Step
			// Strip binary noise from fractional steps.
			f = math.Round(f*1e6) / 1e6
		}
		return math.Min(math.Max(f, s.Min), s.Max), nil
	case FormatString:
		str, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("%s: want string, got %T", s.Key, v)
		}
		return str, nil
	case FormatBoolean:
		switch b := v.(type) {
		case bool:
			return b, nil
		case string:
			return strconv.ParseBool(b)
		}
		return nil, fmt.Errorf("%s: want bool, got %T", s.Key, v)
	case FormatIndexed:
		f, err := toFloat(v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", s.Key, err)
		}
		for _, o := range s.Options {
			if o.(float64) == f {
				return f, nil
			}
		}
		return nil, fmt.Errorf("%s: %v is not an option", s.Key, v)
	case FormatSelect:
		str, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("%s: want string, got %T", s.Key, v)
		}
		for _, o := range s.Options {
			if o.(string) == str {
				return str, nil
			}
		}
		return nil, fmt.Errorf("%s: %q is not an option", s.Key, str)
	}
	return nil, fmt.Errorf("%s: unknown format", s.Key)
}

// FormatValue renders a value with its unit for display.
func (s SettingSpec) FormatValue(v any) string {
	switch s.Format {
	case FormatNumber:
		f, err := toFloat(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		str := strconv.FormatFloat(f, 'f', -1, 64)
		if s.Unit != "" {
			str += " " + s.Unit
		}
		return str
	case FormatSelect, FormatIndexed, FormatBoolean:
		for i, o := range s.Options {
			if o == v && i < len(s.Labels) {
				return s.Labels[i]
			}
		}
	}
	return fmt.Sprint(v)
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case string:
		return strconv.ParseFloat(n, 64)
	}
	return 0, fmt.Errorf("want number, got %T", v)
}

// Filter is a mirrored audio filter.
type Filter struct {
	Name     string
	Kind     FilterKind
	Enabled  bool
	Settings map[string]any
}

func (f *Filter) clone() Filter {
	c := *f
	c.Settings = make(map[string]any, len(f.Settings))
	for k, v := range f.Settings {
		c.Settings[k] = v
	}
	return c
}
