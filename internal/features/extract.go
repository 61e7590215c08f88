package features

import (
	"sort"
	"strconv"

	"github.com/danielpatrickdp/adaptive-form/internal/behavior"
)

// #region constants

const (
	pointerCeiling = 40.0 // mouse moves per second
	clickCeiling   = 2.0
	typingCeiling  = 8.0
	scrollCeiling  = 5.0

	hesitationGapMs   = 2000
	durationCeilingMs = 10 * 60 * 1000

	defaultTotalFields = 8

	// validationOnlyPenalty is the error-rate weight of a validation error
	// when no key presses give a denominator.
	validationOnlyPenalty = 0.25
)

// #endregion

// #region extract

// Extract summarizes one session's events into a Vector. Pure and O(n):
// the same slice always yields the same vector. The input is not modified;
// out-of-order timestamps are tolerated by stable-sorting a copy.
// An empty slice yields Default().
func Extract(events []behavior.Event) Vector {
	if len(events) == 0 {
		return Default()
	}

	ordered := make([]behavior.Event, len(events))
	copy(ordered, events)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Timestamp < ordered[j].Timestamp
	})

	var (
		moves, clicks, keys, corrections, validation, scrolls int
		hesitationMs                                          int64
		hour                                                  = -1
		totalFields                                           int
	)
	touched := make(map[string]struct{})

	for i, ev := range ordered {
		if i > 0 {
			if gap := ev.Timestamp - ordered[i-1].Timestamp; gap > hesitationGapMs {
				hesitationMs += gap
			}
		}

		switch ev.Type {
		case behavior.EventMouseMove:
			moves++
		case behavior.EventClick:
			clicks++
		case behavior.EventKeyPress:
			keys++
			if ev.IsCorrection() {
				corrections++
			}
		case behavior.EventScroll:
			scrolls++
		case behavior.EventValidationError:
			validation++
		}

		if ev.FieldName != "" {
			switch ev.Type {
			case behavior.EventFocus, behavior.EventKeyPress, behavior.EventClick, behavior.EventValidationError:
				touched[ev.FieldName] = struct{}{}
			}
		}

		if hour < 0 {
			if h, ok := payloadInt(ev.Payload, behavior.PayloadLocalHour); ok && h >= 0 && h < 24 {
				hour = h
			}
		}
		if totalFields == 0 {
			if n, ok := payloadInt(ev.Payload, behavior.PayloadTotalFields); ok && n > 0 {
				totalFields = n
			}
		}
	}

	durationMs := ordered[len(ordered)-1].Timestamp - ordered[0].Timestamp
	if durationMs < 0 {
		durationMs = 0
	}
	seconds := float64(durationMs) / 1000
	if seconds < 1 {
		seconds = 1
	}

	var v Vector
	v[PointerDensity] = float64(moves) / seconds / pointerCeiling
	v[ClickDensity] = float64(clicks) / seconds / clickCeiling
	v[TypingRate] = float64(keys) / seconds / typingCeiling
	v[ScrollDensity] = float64(scrolls) / seconds / scrollCeiling

	if durationMs > 0 {
		v[Hesitation] = float64(hesitationMs) / float64(durationMs)
	}

	switch {
	case keys > 0:
		v[ErrorRate] = float64(corrections+validation) / float64(keys)
	default:
		v[ErrorRate] = float64(validation) * validationOnlyPenalty
	}

	v[DeviceClass] = deviceEncoding(ordered[len(ordered)-1].DeviceHint.Normalize())

	v[TimeOfDay] = Neutral
	if hour >= 0 {
		v[TimeOfDay] = float64(hour) / 24
	}

	v[SessionDuration] = float64(durationMs) / durationCeilingMs

	v[CompletionEstimate] = Neutral
	if len(touched) > 0 {
		if totalFields == 0 {
			totalFields = defaultTotalFields
		}
		totalFields = max(totalFields, len(touched))
		perField := float64(durationMs) / float64(len(touched))
		v[CompletionEstimate] = perField * float64(totalFields) / durationCeilingMs
	}

	return v.Clamped()
}

// #endregion

// #region helpers

// WithDevice returns v with the device class taken from d, typically a hint
// supplied by the context provider. Unknown hints leave v unchanged.
func (v Vector) WithDevice(d behavior.DeviceHint) Vector {
	d = d.Normalize()
	if d == behavior.DeviceUnknown {
		return v
	}
	v[DeviceClass] = deviceEncoding(d)
	return v
}

func deviceEncoding(d behavior.DeviceHint) float64 {
	switch d {
	case behavior.DeviceDesktop:
		return 0
	case behavior.DeviceTablet:
		return 0.5
	case behavior.DeviceMobile:
		return 1
	}
	return Neutral
}

func payloadInt(p map[string]string, key string) (int, bool) {
	raw, ok := p[key]
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return n, true
}

// #endregion
