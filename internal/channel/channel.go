// Package channel contains the outbound transports. Each sender delivers
// to exactly one recipient per call; fan-out and outcome accounting live
// in the dispatcher.
package channel

import "context"

// EmailSender delivers one message to one mailbox.
type EmailSender interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}

// ChatSender delivers one message to one phone number through the chat
// gateway.
type ChatSender interface {
	Send(ctx context.Context, phone, message string) error
}
