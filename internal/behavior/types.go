package behavior

import "strings"

// #region event-type

// EventType enumerates the interaction events the form client reports.
type EventType string

const (
	EventMouseMove       EventType = "mouse_move"
	EventClick           EventType = "click"
	EventKeyPress        EventType = "key_press"
	EventFocus           EventType = "focus"
	EventBlur            EventType = "blur"
	EventScroll          EventType = "scroll"
	EventValidationError EventType = "validation_error"
	EventSubmit          EventType = "submit"
	EventResize          EventType = "resize"
)

// #endregion

// #region device-hint

// DeviceHint is the client-reported device class.
type DeviceHint string

const (
	DeviceDesktop DeviceHint = "desktop"
	DeviceTablet  DeviceHint = "tablet"
	DeviceMobile  DeviceHint = "mobile"
	DeviceUnknown DeviceHint = "unknown"
)

// Normalize maps unrecognized hints to DeviceUnknown.
func (d DeviceHint) Normalize() DeviceHint {
	switch DeviceHint(strings.ToLower(string(d))) {
	case DeviceDesktop:
		return DeviceDesktop
	case DeviceTablet:
		return DeviceTablet
	case DeviceMobile:
		return DeviceMobile
	}
	return DeviceUnknown
}

// #endregion

// #region payload-keys

// Payload keys the feature extractor understands. Everything else is opaque.
const (
	PayloadKey         = "key"
	PayloadLocalHour   = "local_hour"
	PayloadTotalFields = "total_fields"
)

// #endregion

// #region event

// Event is a single client interaction. Produced upstream and never mutated.
// Timestamp is monotonic milliseconds since the client session started.
type Event struct {
	SessionID  string            `json:"session_id"`
	FormID     string            `json:"form_id"`
	Type       EventType         `json:"event_type"`
	FieldName  string            `json:"field_name,omitempty"`
	Timestamp  int64             `json:"timestamp"`
	Payload    map[string]string `json:"payload,omitempty"`
	DeviceHint DeviceHint        `json:"device_hint"`
}

// IsCorrection reports whether the event is a Backspace/Delete keystroke.
func (e Event) IsCorrection() bool {
	if e.Type != EventKeyPress {
		return false
	}
	switch e.Payload[PayloadKey] {
	case "Backspace", "Delete":
		return true
	}
	return false
}

// #endregion

// #region batch

// Batch is one ingestion unit: the events for a session since the last decision.
type Batch struct {
	SessionID string  `json:"session_id"`
	FormID    string  `json:"form_id"`
	Events    []Event `json:"events"`
}

// DeviceHint returns the hint of the latest event, or DeviceUnknown.
func (b Batch) DeviceHint() DeviceHint {
	var latest *Event
	for i := range b.Events {
		if latest == nil || b.Events[i].Timestamp >= latest.Timestamp {
			latest = &b.Events[i]
		}
	}
	if latest == nil {
		return DeviceUnknown
	}
	return latest.DeviceHint.Normalize()
}

// #endregion
