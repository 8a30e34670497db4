package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a playback failure for the external event channel.
type ErrorKind int

const (
	ErrorKindSource ErrorKind = iota + 1
	ErrorKindRenderer
	ErrorKindUnexpected
	ErrorKindRemote
	ErrorKindOutOfMemory
)

func (k ErrorKind) String() string {
	switch k {
	case ErrorKindSource:
		return "source"
	case ErrorKindRenderer:
		return "renderer"
	case ErrorKindUnexpected:
		return "unexpected"
	case ErrorKindRemote:
		return "remote"
	case ErrorKindOutOfMemory:
		return "out-of-memory"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

var (
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrSeekOutOfRange    = errors.New("seek position out of timeline range")
	ErrPlayerReleased    = errors.New("player already released")
)

// PlaybackError is the tagged error surfaced on the engine's event channel.
type PlaybackError struct {
	Kind          ErrorKind
	RendererIndex int // IndexUnset unless Kind is ErrorKindRenderer
	Err           error
}

func (e *PlaybackError) Error() string {
	if e.Kind == ErrorKindRenderer {
		return fmt.Sprintf("playback error (%s, renderer %d): %v", e.Kind, e.RendererIndex, e.Err)
	}
	return fmt.Sprintf("playback error (%s): %v", e.Kind, e.Err)
}

func (e *PlaybackError) Unwrap() error { return e.Err }

func NewSourceError(err error) *PlaybackError {
	return &PlaybackError{Kind: ErrorKindSource, RendererIndex: IndexUnset, Err: err}
}

func NewRendererError(index int, err error) *PlaybackError {
	return &PlaybackError{Kind: ErrorKindRenderer, RendererIndex: index, Err: err}
}

func NewUnexpectedError(err error) *PlaybackError {
	return &PlaybackError{Kind: ErrorKindUnexpected, RendererIndex: IndexUnset, Err: err}
}

func NewRemoteError(err error) *PlaybackError {
	return &PlaybackError{Kind: ErrorKindRemote, RendererIndex: IndexUnset, Err: err}
}

func NewOutOfMemoryError(err error) *PlaybackError {
	return &PlaybackError{Kind: ErrorKindOutOfMemory, RendererIndex: IndexUnset, Err: err}
}

// AsPlaybackError coerces err into a PlaybackError, wrapping unknown errors
// as unexpected.
func AsPlaybackError(err error) *PlaybackError {
	var pe *PlaybackError
	if errors.As(err, &pe) {
		return pe
	}
	return NewUnexpectedError(err)
}
