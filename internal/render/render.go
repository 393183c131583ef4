// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package render turns assistant markdown into styled terminal output.
//
// Rendering is comparatively expensive and the transcript re-renders on
// every streamed delta, so results are memoized in a small LRU keyed by
// content and wrap width.
package render

import (
	"container/list"
	"fmt"
	"sync"

	"github.com/charmbracelet/glamour"
)

// cacheSize bounds the memoized render results.
const cacheSize = 128

// Renderer renders markdown at a given wrap width, caching results.
// Safe for concurrent use.
type Renderer struct {
	mu        sync.Mutex
	theme     string
	renderers map[int]*glamour.TermRenderer
	cache     map[cacheKey]*list.Element
	order     *list.List
}

type cacheKey struct {
	content string
	width   int
}

type cacheEntry struct {
	key      cacheKey
	rendered string
}

// New creates a renderer for the given theme ("dark", "light", "auto").
func New(theme string) *Renderer {
	return &Renderer{
		theme:     theme,
		renderers: make(map[int]*glamour.TermRenderer),
		cache:     make(map[cacheKey]*list.Element),
		order:     list.New(),
	}
}

// Markdown renders content wrapped to width. Falls back to the raw text
// when rendering fails, so a malformed reply still displays.
func (r *Renderer) Markdown(content string, width int) string {
	if content == "" {
		return ""
	}
	if width < 10 {
		width = 10
	}

	key := cacheKey{content: content, width: width}

	r.mu.Lock()
	defer r.mu.Unlock()

	if el, ok := r.cache[key]; ok {
		r.order.MoveToFront(el)
		return el.Value.(*cacheEntry).rendered
	}

	tr, err := r.rendererFor(width)
	if err != nil {
		return content
	}
	out, err := tr.Render(content)
	if err != nil {
		return content
	}

	r.cache[key] = r.order.PushFront(&cacheEntry{key: key, rendered: out})
	for r.order.Len() > cacheSize {
		oldest := r.order.Back()
		r.order.Remove(oldest)
		delete(r.cache, oldest.Value.(*cacheEntry).key)
	}
	return out
}

// rendererFor returns the glamour renderer for a wrap width, creating it
// on first use. Renderers are per-width because word wrap is fixed at
// construction time.
func (r *Renderer) rendererFor(width int) (*glamour.TermRenderer, error) {
	if tr, ok := r.renderers[width]; ok {
		return tr, nil
	}

	opts := []glamour.TermRendererOption{glamour.WithWordWrap(width)}
	switch r.theme {
	case "dark":
		opts = append(opts, glamour.WithStandardStyle("dark"))
	case "light":
		opts = append(opts, glamour.WithStandardStyle("light"))
	default:
		opts = append(opts, glamour.WithAutoStyle())
	}

	tr, err := glamour.NewTermRenderer(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create renderer: %w", err)
	}
	r.renderers[width] = tr
	return tr, nil
}
