package talk

// MessageState values
const (
	StatePublished = "published"
)

// MessageType values
const (
	TypeText    = "text"
	TypePicture = "picture"
	TypeVideo   = "video"
	TypeVoice   = "voice"
)

// Message is one timeline entry
type Message struct {
	ID          MessageID `json:"id"`
	State       string    `json:"state"`
	Type        string    `json:"type"`
	PublishedAt string    `json:"published_at"`
	Text        string    `json:"text,omitempty"`
	File        string    `json:"file,omitempty"`
}

// IsPublished reports whether the message is visible
func (m Message) IsPublished() bool {
	return m.State == StatePublished
}

// TimelineResponse is the timeline payload. Messages is nil when the API
// returns null or omits the field.
type TimelineResponse struct {
	Messages []Message `json:"messages"`
}

// TokenRequest is the token exchange payload
type TokenRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// TokenResponse is the token exchange result
type TokenResponse struct {
	AccessToken string `json:"access_token"`
}
