// Package stt provides streaming speech-to-text.
//
// A Provider opens one Stream per conversation. Audio goes in as PCM16 mono
// through Write; transcripts and voice activity events come out of Results.
//
//	provider, _ := stt.NewDeepgram(stt.WithAPIKey(os.Getenv("DEEPGRAM_API_KEY")))
//	stream, _ := provider.Stream(ctx)
//	go func() {
//	    for r := range stream.Results() {
//	        if r.Event == stt.EventTranscript && r.SpeechFinal {
//	            fmt.Println(r.Text)
//	        }
//	    }
//	}()
//	stream.Write(pcm)
package stt

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors.
var (
	ErrNoAPIKey     = errors.New("stt: API key required")
	ErrStreamClosed = errors.New("stt: stream closed")
)

// Provider opens transcription streams.
type Provider interface {
	// Stream opens a live transcription stream bound to ctx.
	Stream(ctx context.Context) (Stream, error)

	// Close releases any resources held by the provider.
	Close() error
}

// Stream is one live transcription session.
type Stream interface {
	// Write sends PCM16 mono audio at the configured sample rate.
	Write(pcm16 []byte) error

	// Results delivers transcripts and events. It is closed when the stream ends.
	Results() <-chan Transcript

	// Close flushes pending audio and ends the stream.
	Close() error
}

// EventType distinguishes transcript results from voice activity events.
type EventType string

const (
	EventTranscript    EventType = "transcript"
	EventSpeechStarted EventType = "speech_started"
	EventUtteranceEnd  EventType = "utterance_end"
)

// Transcript is a recognition result or voice activity event.
type Transcript struct {
	Event EventType

	Text       string
	Confidence float64

	// IsFinal marks text that will not be revised.
	IsFinal bool

	// SpeechFinal marks the end of the speaker's turn (endpointing).
	SpeechFinal bool

	// Duration of audio covered by this result.
	Duration time.Duration
}
