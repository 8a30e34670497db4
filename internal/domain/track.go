package domain

import "fmt"

// TrackType identifies the kind of samples a renderer or track carries.
type TrackType int

const (
	TrackTypeNone TrackType = iota
	TrackTypeVideo
	TrackTypeAudio
	TrackTypeText
	TrackTypeMetadata
)

func (t TrackType) String() string {
	switch t {
	case TrackTypeNone:
		return "none"
	case TrackTypeVideo:
		return "video"
	case TrackTypeAudio:
		return "audio"
	case TrackTypeText:
		return "text"
	case TrackTypeMetadata:
		return "metadata"
	default:
		return fmt.Sprintf("unknown(%d)", int(t))
	}
}

// Format describes one encoded track variant.
type Format struct {
	ID       string
	Type     TrackType
	Bitrate  int
	Language string
}

// TrackGroup is an immutable set of formats describing the same content.
type TrackGroup struct {
	Formats []Format
}

func (g TrackGroup) Type() TrackType {
	if len(g.Formats) == 0 {
		return TrackTypeNone
	}
	return g.Formats[0].Type
}

// TrackSelection picks an ordered subset of formats from one group; the
// first index is the selected format.
type TrackSelection struct {
	Group   TrackGroup
	Indexes []int
}

func (s TrackSelection) SelectedFormat() Format {
	return s.Group.Formats[s.Indexes[0]]
}

// RendererConfiguration is the per-renderer setup negotiated by track
// selection. Streams may only be replaced seamlessly between selections
// whose configurations are equal.
type RendererConfiguration struct {
	Tunneling bool
}

// TrackSelectorResult is the outcome of a track selection across all
// renderers. A nil entry disables the renderer at that index.
type TrackSelectorResult struct {
	Configs    []*RendererConfiguration
	Selections []*TrackSelection
	Info       any
}

// IsRendererEnabled reports whether the selection keeps renderer i active.
func (r *TrackSelectorResult) IsRendererEnabled(i int) bool {
	return r != nil && r.Configs[i] != nil
}

// IsEquivalent reports whether the selection and configuration for renderer
// i are unchanged between r and other, so the renderer can keep running.
func (r *TrackSelectorResult) IsEquivalent(other *TrackSelectorResult, i int) bool {
	if r == nil || other == nil {
		return r == other
	}
	a, b := r.Configs[i], other.Configs[i]
	if (a == nil) != (b == nil) {
		return false
	}
	if a != nil && *a != *b {
		return false
	}
	return trackSelectionEqual(r.Selections[i], other.Selections[i])
}

func trackSelectionEqual(a, b *TrackSelection) bool {
	if (a == nil) != (b == nil) {
		return false
	}
	if a == nil {
		return true
	}
	if len(a.Indexes) != len(b.Indexes) || len(a.Group.Formats) != len(b.Group.Formats) {
		return false
	}
	for i := range a.Indexes {
		if a.Indexes[i] != b.Indexes[i] {
			return false
		}
	}
	for i := range a.Group.Formats {
		if a.Group.Formats[i] != b.Group.Formats[i] {
			return false
		}
	}
	return true
}
