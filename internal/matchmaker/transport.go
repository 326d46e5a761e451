package matchmaker

import (
	"context"
	"errors"
)

// ErrPartnerUnreachable is returned by Transport.Forward when the recipient
// cannot be reached (blocked the bot, disconnected, unknown).
var ErrPartnerUnreachable = errors.New("partner unreachable")

// Content kinds relayed between partners.
const (
	KindText      = "text"
	KindPhoto     = "photo"
	KindVideo     = "video"
	KindAudio     = "audio"
	KindVoice     = "voice"
	KindDocument  = "document"
	KindSticker   = "sticker"
	KindAnimation = "animation"
	KindLocation  = "location"
)

// Reply is an outbound notice from the relay itself.
type Reply struct {
	Text           string     `json:"text"`
	Keyboard       [][]string `json:"keyboard,omitempty"`
	RemoveKeyboard bool       `json:"remove_keyboard,omitempty"`
}

// Content is a chat message forwarded verbatim to the partner.
type Content struct {
	Kind    string `json:"kind"`
	Text    string `json:"text,omitempty"`
	FileID  string `json:"file_id,omitempty"`
	Caption string `json:"caption,omitempty"`
	Data    []byte `json:"data,omitempty"`
}

// Transport delivers outbound traffic to users.
type Transport interface {
	Send(ctx context.Context, userID int64, r Reply) error
	// Forward returns an error wrapping ErrPartnerUnreachable when the
	// recipient cannot receive content.
	Forward(ctx context.Context, userID int64, c Content) error
}
