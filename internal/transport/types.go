package transport

import "context"

// Update is one inbound message from the chat platform.
type Update struct {
	Message *Message
}

type Message struct {
	ID           int
	ChatID       int64
	ThreadID     int // telegram forum topic thread id (0 if none)
	FromID       int64
	FromUsername string
	Text         string
}

type ChatTarget struct {
	ChatID   int64
	ThreadID int
}

type MessageRef struct {
	ChatID    int64
	MessageID int
}

type SendOptions struct {
	ParseMode      string
	DisablePreview bool
}

// Adapter is the notification sink plus the inbound command stream.
//
// Delivery is best-effort: a send either succeeds or returns an error; no
// retry guarantee is owed by callers.
type Adapter interface {
	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error

	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)

	// SendPhoto sends an image by URL with a caption. Implementations fall
	// back to SendText when the platform rejects the image.
	SendPhoto(ctx context.Context, to ChatTarget, photoURL, caption string, opt *SendOptions) (MessageRef, error)
}
