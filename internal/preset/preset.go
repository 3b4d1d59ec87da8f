// Package preset holds the fixed, named parameter bundles shared by the VAD
// analyzer (C3) and the edit planner (C4) — spec §3's PresetConfig plus the
// fixed preset table of §6. Mirrors the teacher's weights.go in spirit (a
// small named-config record), but the values here are fixed by spec, not
// user-editable.
package preset

import "fmt"

// Config is a named bundle of VAD/trim/padding/fade parameters tuned per
// delivery platform (spec §3/§6).
type Config struct {
	Name             string
	MinSilenceS      float64
	MaxKeptSilenceS  float64
	SpeechPaddingS   float64
	CrossfadeS       float64
	VADThreshold     float64
}

// Fixed preset names, per spec §6.
const (
	LinkedIn       = "linkedin"
	YouTubeShorts  = "youtube_shorts"
	TikTok         = "tiktok"
	Podcast        = "podcast"
)

// defaultVADThreshold is applied uniformly across presets; the spec's §6
// table does not tabulate a per-preset value, only min_silence_s,
// max_kept_silence_s, speech_padding_s, and crossfade_s.
const defaultVADThreshold = 0.5

var table = map[string]Config{
	LinkedIn: {
		Name: LinkedIn, MinSilenceS: 0.50, MaxKeptSilenceS: 0.70,
		SpeechPaddingS: 0.15, CrossfadeS: 0.010, VADThreshold: defaultVADThreshold,
	},
	YouTubeShorts: {
		Name: YouTubeShorts, MinSilenceS: 0.30, MaxKeptSilenceS: 0.20,
		SpeechPaddingS: 0.10, CrossfadeS: 0.010, VADThreshold: defaultVADThreshold,
	},
	TikTok: {
		Name: TikTok, MinSilenceS: 0.20, MaxKeptSilenceS: 0.15,
		SpeechPaddingS: 0.08, CrossfadeS: 0.010, VADThreshold: defaultVADThreshold,
	},
	Podcast: {
		Name: Podcast, MinSilenceS: 0.80, MaxKeptSilenceS: 1.00,
		SpeechPaddingS: 0.20, CrossfadeS: 0.010, VADThreshold: defaultVADThreshold,
	},
}

// Lookup returns the fixed Config for name, or an error if name is not one
// of the four fixed preset names.
func Lookup(name string) (Config, error) {
	cfg, ok := table[name]
	if !ok {
		return Config{}, fmt.Errorf("unknown preset %q", name)
	}
	return cfg, nil
}

// Names returns the fixed preset names in table order.
func Names() []string {
	return []string{LinkedIn, YouTubeShorts, TikTok, Podcast}
}
