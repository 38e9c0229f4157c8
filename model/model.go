package model

// Outbound message types sent by the server.
const (
	MessageTypeSensor = "sensor"
	MessageTypeVideo  = "video"
)

// MessageTypeCommand is the only inbound message type clients may send.
const MessageTypeCommand = "command"

// SensorMessage carries one distance reading, in centimeters.
type SensorMessage struct {
	Type     string  `json:"type"`
	Distance float64 `json:"distance"`
}

// VideoMessage carries one encoded frame. Data is the hex-encoded frame
// payload, Size its decoded byte length.
type VideoMessage struct {
	Type string `json:"type"`
	Size int    `json:"size"`
	Data string `json:"data"`
}

// Inbound is the envelope for client messages.
type Inbound struct {
	Type    string `json:"type"`
	Command string `json:"command"`
}

// CommandKind is a recognized motion command.
type CommandKind string

const (
	CommandForward     CommandKind = "forward"
	CommandReverse     CommandKind = "reverse"
	CommandRotateLeft  CommandKind = "rot_left"
	CommandRotateRight CommandKind = "rot_right"
)
