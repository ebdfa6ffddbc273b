package probe

import "sort"

// Kind separates recognition capabilities from synthesis capabilities.
type Kind string

const (
	KindRecognition Kind = "recognition"
	KindSynthesis   Kind = "synthesis"
)

// Availability is the probe result for one backend identifier.
type Availability string

const (
	Available   Availability = "available"
	Unavailable Availability = "unavailable"
	Unknown     Availability = "unknown"
)

// Well-known backend identifiers. The panel reports the first three for its
// platform; the cloud synthesizer lives server-side.
const (
	SynthNative  = "native-platform"
	SynthBridge  = "plugin-bridge"
	SynthBrowser = "in-browser"
	SynthCloud   = "cloud"

	RecogNative  = "native-engine"
	RecogBrowser = "browser-engine"
)

// Capability is one probed backend with its availability.
type Capability struct {
	ID           string       `json:"id"`
	Kind         Kind         `json:"kind"`
	Availability Availability `json:"availability"`
}

// Result is the ranked capability list for one session. Computed once at
// session initialization and cached for the session's lifetime.
type Result []Capability

var synthRank = map[string]int{
	SynthNative:  0,
	SynthBridge:  1,
	SynthBrowser: 2,
	SynthCloud:   3,
}

var recogRank = map[string]int{
	RecogNative:  0,
	RecogBrowser: 1,
}

func rankOf(c Capability) int {
	var r int
	var ok bool
	switch c.Kind {
	case KindSynthesis:
		r, ok = synthRank[c.ID]
	case KindRecognition:
		r, ok = recogRank[c.ID]
	}
	if !ok {
		return 100
	}
	return r
}

// Rank orders capabilities by platform preference. Known identifiers keep
// their preference order; unrecognized ones sort last. The sort is stable so
// equal-rank entries keep their reported order.
func Rank(caps []Capability) Result {
	out := make(Result, len(caps))
	copy(out, caps)
	sort.SliceStable(out, func(i, j int) bool { return rankOf(out[i]) < rankOf(out[j]) })
	return out
}

// Synthesis returns the ranked synthesis capabilities that are not known to
// be unavailable.
func (r Result) Synthesis() []Capability {
	var out []Capability
	for _, c := range r {
		if c.Kind == KindSynthesis && c.Availability != Unavailable {
			out = append(out, c)
		}
	}
	return out
}

// Recognition returns the best usable recognition capability, if any.
func (r Result) Recognition() (Capability, bool) {
	for _, c := range r {
		if c.Kind == KindRecognition && c.Availability == Available {
			return c, true
		}
	}
	return Capability{}, false
}

// FromHello parses the capability list a panel reports in its hello message.
// Unknown shapes are skipped rather than rejected; a panel that reports
// nothing simply probes as capability-less.
func FromHello(payload map[string]any) []Capability {
	raw, _ := payload["capabilities"].([]any)
	var out []Capability
	for _, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		id, _ := m["id"].(string)
		kind, _ := m["kind"].(string)
		avail, _ := m["availability"].(string)
		if id == "" || kind == "" {
			continue
		}
		a := Availability(avail)
		if a != Available && a != Unavailable {
			a = Unknown
		}
		out = append(out, Capability{ID: id, Kind: Kind(kind), Availability: a})
	}
	return out
}

// Merge combines server-side capabilities with panel-reported ones and ranks
// the result. Panel entries win on identifier collision; the panel knows its
// own platform best.
func Merge(server, panel []Capability) Result {
	seen := make(map[string]bool, len(panel))
	merged := make([]Capability, 0, len(server)+len(panel))
	for _, c := range panel {
		seen[c.ID] = true
		merged = append(merged, c)
	}
	for _, c := range server {
		if !seen[c.ID] {
			merged = append(merged, c)
		}
	}
	return Rank(merged)
}
