// Package stt transcribes a finished recording in one request. It backs the
// streaming channel when that one fails to deliver a transcript.
package stt

import "context"

type Provider interface {
	// Transcribe returns the transcript of audio encoded as format (a MIME
	// type such as "audio/webm;codecs=opus").
	Transcribe(ctx context.Context, audio []byte, format, language string) (text string, confidence float64, err error)
	Close() error
}
