package task

import "fmt"

type MessageKind int32

const (
	_ MessageKind = iota
	MessageKindStatus
	MessageKindSuccess
	MessageKindError
)

func (k MessageKind) String() string {
	switch k {
	case MessageKindStatus:
		return "STATUS"
	case MessageKindSuccess:
		return "SUCCESS"
	case MessageKindError:
		return "ERROR"
	default:
		return fmt.Sprintf("UNKNOWN KIND %d", k)
	}
}

// MessageReady marks the STATUS message a worker sends once its engine is loaded.
const MessageReady = "ENGINE LOADED"

// Message is what a worker reports back to the dispatcher.
type Message struct {
	Kind      MessageKind   `json:"kind"`
	WorkerID  string        `json:"worker_id"`
	RequestID string        `json:"request_id"`
	Message   string        `json:"message,omitempty"`
	Resize    *ResizeResult `json:"resize,omitempty"`
	Crop      *CropResult   `json:"crop,omitempty"`
	Error     string        `json:"error,omitempty"`
}

func (m Message) IsReady() bool {
	return m.Kind == MessageKindStatus && m.Message == MessageReady
}

type AssetMeta struct {
	Mime   string `json:"mime"`
	Size   int    `json:"size"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

type ResizeResult struct {
	Data  []byte    `json:"data"`
	Meta  AssetMeta `json:"meta"`
	Scale float64   `json:"scale"`
}

type CropResult struct {
	Data []byte `json:"data"`
}
