package engine

import "plugwatch/internal/device"

// Status wording matches what users of the original capstone hardware see,
// so it is kept verbatim.
const (
	statusOnBody  = "Power source is connected, socket is now turned on"
	statusOffBody = "Power source is disconnected, socket is now turned off"
)

// transitionMessage builds the notification for one observed transition.
func transitionMessage(field device.Field, value bool, src Source) (title, body string) {
	if field == device.FieldStatus {
		body = statusOffBody
		if value {
			body = statusOnBody
		}
		switch src {
		case SourceDevice:
			return "Status Update", body
		case SourceUser:
			return "Status Updated", body
		default:
			return "Status Changed", body
		}
	}

	// Function field.
	switch src {
	case SourceUser:
		onOff := "OFF"
		if value {
			onOff = "ON"
		}
		return "Function Updated", "Function is now " + onOff
	default:
		active := "Inactive"
		if value {
			active = "Active"
		}
		return "Function Changed", "Function is now " + active
	}
}

// statusMessage builds the short foreground status-bar line, or "" when
// the source does not surface one.
func statusMessage(field device.Field, value bool, src Source) string {
	switch src {
	case SourceDevice:
		state := "Inactive"
		if value {
			state = "Active"
		}
		return field.Label() + " " + state + " (from device)"
	case SourceUser:
		onOff := "OFF"
		if value {
			onOff = "ON"
		}
		return field.Label() + ": Turned " + onOff
	default:
		return ""
	}
}
