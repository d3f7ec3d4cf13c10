package domain

import "context"

type RealtimeOptions struct {
	UserID       string
	Voice        string
	Instructions string
}

type RealtimeFrameType string

const (
	RealtimeText         RealtimeFrameType = "text"
	RealtimeAudio        RealtimeFrameType = "audio"
	RealtimeTurnComplete RealtimeFrameType = "turn_complete"
	RealtimeInterrupted  RealtimeFrameType = "interrupted"
	RealtimeError        RealtimeFrameType = "error"
)

// RealtimeFrame is one message on the client-facing realtime socket, in either
// direction. Audio data is base64 encoded.
type RealtimeFrame struct {
	Type     RealtimeFrameType `json:"type"`
	Text     string            `json:"text,omitempty"`
	Data     string            `json:"data,omitempty"`
	MimeType string            `json:"mime_type,omitempty"`
	Error    string            `json:"error,omitempty"`
}

// RealtimeSession is one live, bidirectional voice session with the provider.
type RealtimeSession interface {
	Send(frame RealtimeFrame) error
	Receive() (RealtimeFrame, error)
	Close() error
}

type RealtimeConnector interface {
	Connect(ctx context.Context, opts RealtimeOptions) (RealtimeSession, error)
}
