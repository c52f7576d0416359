// Package testutil provides shared test doubles for the retrieval
// pipeline: a deterministic embedder and a scripted chat completer.
package testutil

import (
	"context"
	"strings"
	"sync"

	"github.com/Mikeyan-promax/Weplus-sub000/internal/chat"
)

// Embedder maps texts to fixed vectors by substring marker, falling back
// to Fallback for unmatched texts. Safe for concurrent use. The zero
// value is unusable; set Dim and Fallback.
type Embedder struct {
	Dim      int
	Markers  map[string][]float32
	Fallback []float32
	Err      error

	mu    sync.Mutex
	calls [][]string
}

func (e *Embedder) Dimension() int { return e.Dim }

// Embed records the call and returns one vector per text.
func (e *Embedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	e.calls = append(e.calls, append([]string(nil), texts...))
	e.mu.Unlock()

	if e.Err != nil {
		return nil, e.Err
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = e.Fallback
		for marker, vec := range e.Markers {
			if strings.Contains(text, marker) {
				out[i] = vec
				break
			}
		}
	}
	return out, nil
}

// Calls returns a copy of every Embed invocation's input.
func (e *Embedder) Calls() [][]string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([][]string(nil), e.calls...)
}

// Completer returns a scripted reply and records the last conversation.
type Completer struct {
	Reply string
	Err   error

	mu           sync.Mutex
	lastMessages []chat.Message
}

func (c *Completer) Complete(_ context.Context, messages []chat.Message) (string, error) {
	c.mu.Lock()
	c.lastMessages = append([]chat.Message(nil), messages...)
	c.mu.Unlock()

	if c.Err != nil {
		return "", c.Err
	}
	return c.Reply, nil
}

// LastMessages returns the conversation from the most recent call.
func (c *Completer) LastMessages() []chat.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]chat.Message(nil), c.lastMessages...)
}
