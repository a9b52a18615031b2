package proto

// Frame is the flat envelope for messages coming from the client.
// Fields beyond Type are populated per frame type.
type Frame struct {
	Type       string `json:"type"`
	Channel    string `json:"channel,omitempty"`
	Message    string `json:"message,omitempty"`
	DistrictID string `json:"districtId,omitempty"`
}

const (
	FrameChat            = "chat"
	FrameSubscribe       = "subscribe"
	FrameUnsubscribe     = "unsubscribe"
	FrameTyping          = "typing"
	FramePresenceRequest = "presence:request"
)

// MaxChatLength is the rune cap applied to chat text after trimming.
const MaxChatLength = 500
