// SPDX-License-Identifier: AGPL-3.0-or-later

// Package telemetry holds the fan-out Hub (subscriber set, debounced
// broadcast) and the status Poll Loop that drives it.
package telemetry

import (
	"encoding/json"
	"math"
	"sync"

	"lydia-device/parse"
	"lydia-device/wire"
)

// Sink is the hub's only dependency on a transport: something that can
// accept an already-encoded frame. A failing Send marks the sink dead.
type Sink interface {
	Send(payload []byte) error
}

// Hub is the subscriber set plus the debounce cache. All operations are
// serialized by a single mutex; broadcast holds it for the whole
// iteration so membership changes never interleave with an in-flight
// broadcast.
type Hub struct {
	mu              sync.Mutex
	sinks           map[Sink]struct{}
	lastFingerprint []byte
	hasFingerprint  bool
}

// NewHub returns an empty Hub.
func NewHub() *Hub {
	return &Hub{sinks: make(map[Sink]struct{})}
}

// Add registers sink as a subscriber.
func (h *Hub) Add(sink Sink) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sinks[sink] = struct{}{}
}

// Remove deregisters sink, if present.
func (h *Hub) Remove(sink Sink) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.sinks, sink)
}

// Broadcast encodes f once and sends it to every current subscriber.
// Any sink whose Send fails is evicted before Broadcast returns.
func (h *Hub) Broadcast(f wire.Frame) error {
	payload, err := wire.Encode(f)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	var dead []Sink
	for sink := range h.sinks {
		if err := sink.Send(payload); err != nil {
			dead = append(dead, sink)
		}
	}
	for _, sink := range dead {
		delete(h.sinks, sink)
	}
	return nil
}

// fingerprintFields is the debounce-relevant subset of a parsed status
// (spec §3's Telemetry Snapshot Fingerprint).
type fingerprintFields struct {
	WorkState  *string         `json:"work_state"`
	WorkMode   *string         `json:"work_mode"`
	LaserState *string         `json:"laser_state"`
	PowerOut   *parse.PowerOut `json:"power_out"`
	Warning    *parse.MaskText `json:"warning"`
	Error      *parse.MaskText `json:"error"`
	Lock       *parse.MaskText `json:"lock"`
	IOFlags    map[string]int  `json:"io_flags"`
	Env        *envFingerprint `json:"env"`
	Pressure   *parse.ADCValue `json:"pressure"`
	TEM        *int            `json:"tem"`
}

// envFingerprint mirrors parse.Env but with NaN made JSON-representable:
// encoding/json refuses to marshal a bare NaN, so we substitute the
// string "NaN" — still a deterministic, comparable byte for debounce
// purposes even though it's never sent over the wire.
type envFingerprint struct {
	TempC   any `json:"temp_c"`
	PresKPa any `json:"pres_kpa"`
	Dew     any `json:"dew"`
}

func safeFloat(f float64) any {
	if math.IsNaN(f) {
		return "NaN"
	}
	return f
}

func fingerprint(p parse.Status) []byte {
	var env *envFingerprint
	if p.Env != nil {
		env = &envFingerprint{
			TempC:   safeFloat(p.Env.TempC),
			PresKPa: safeFloat(p.Env.PresKPa),
			Dew:     safeFloat(p.Env.Dew),
		}
	}

	fields := fingerprintFields{
		WorkState:  p.WorkState,
		WorkMode:   p.WorkMode,
		LaserState: p.LaserState,
		PowerOut:   p.PowerOut,
		Warning:    p.Warning,
		Error:      p.Error,
		Lock:       p.Lock,
		IOFlags:    p.IOFlags,
		Env:        env,
		Pressure:   p.Pressure,
		TEM:        p.TEM,
	}

	b, err := json.Marshal(fields)
	if err != nil {
		// fields contains only JSON-safe leaves (strings, ints, floats
		// that have already been NaN-guarded); this cannot happen.
		panic("telemetry: unmarshalable fingerprint: " + err.Error())
	}
	return b
}

// Changed reports whether p's debounce-relevant fields differ from the
// last parsed status seen by this Hub, updating the cache whenever they
// do. The first call always reports true.
func (h *Hub) Changed(p parse.Status) bool {
	fp := fingerprint(p)

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.hasFingerprint && string(fp) == string(h.lastFingerprint) {
		return false
	}
	h.lastFingerprint = fp
	h.hasFingerprint = true
	return true
}
