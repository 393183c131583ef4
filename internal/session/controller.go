// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"log"
	"strings"
	"sync"

	"github.com/driftapp/driftchat/internal/api"
	"github.com/driftapp/driftchat/internal/model"
)

// directoryPageSize is how many summaries one directory refresh fetches.
const directoryPageSize = 50

// sendErrorPrefix prefixes the inline error text a failed reply shows.
const sendErrorPrefix = "An error occurred: "

// =============================================================================
// COLLABORATOR INTERFACES
// =============================================================================

// Backend is the slice of the conversation API the controller uses.
// *api.Client satisfies it.
type Backend interface {
	Send(ctx context.Context, req api.SendRequest) (<-chan api.Frame, error)
	History(ctx context.Context, conversationID string) ([]model.Message, error)
	ListConversations(ctx context.Context, page, size int) ([]model.ConversationSummary, error)
	Rename(ctx context.Context, conversationID, title string) error
	Delete(ctx context.Context, conversationID string) error
}

// Store is the slice of local persistence the controller uses.
// *storage.ConversationStore satisfies it.
type Store interface {
	SaveMessages(conversationID string, messages []model.Message) error
	LoadMessages(conversationID string) ([]model.Message, error)
	DeleteMessages(conversationID string) error
	SaveSummaries(list []model.ConversationSummary) error
	LoadSummaries() ([]model.ConversationSummary, error)
}

// =============================================================================
// SNAPSHOT
// =============================================================================

// Snapshot is the read-only projection the UI renders from. Every field is
// a copy; mutating a snapshot has no effect on the controller.
type Snapshot struct {
	Messages             []model.Message
	Summaries            []model.ConversationSummary
	ActiveConversationID string
	Input                string
	ReasoningEnabled     bool
	SearchEnabled        bool

	// Sending reports whether a reply stream is open for the focused
	// conversation; streams bound to other conversations do not show here.
	Sending bool

	// IsLoadingMessages is set while the focused conversation's history
	// fetch is in flight; IsLoadingConversations while the directory
	// refresh is.
	IsLoadingMessages      bool
	IsLoadingConversations bool

	LastError string
}

// =============================================================================
// CONTROLLER
// =============================================================================

// streamBinding ties an open reply stream to the conversation it was sent
// from. Frames always apply to the bound timeline, never to whichever
// conversation happens to be focused when they arrive.
type streamBinding struct {
	conversationID string
	timeline       *model.Timeline
	cancel         context.CancelFunc
}

// Controller is the single writer of all conversation state. Intents and
// stream frames are serialized through one goroutine; Snapshot and Events
// are the only concurrent entry points.
type Controller struct {
	backend Backend
	store   Store

	calls  chan func()
	events chan struct{}
	done   chan struct{}

	ctx       context.Context
	ctxCancel context.CancelFunc

	mu   sync.RWMutex
	snap Snapshot

	// Fields below are owned by the run loop.
	summaries        []model.ConversationSummary
	activeID         string
	timeline         *model.Timeline
	timelines        map[string]*model.Timeline
	input            string
	reasoningEnabled bool
	searchEnabled    bool
	lastError        string
	pageSize         int

	// bindings holds every open reply stream, keyed by the timeline it
	// writes into. One stream per timeline; streams for different
	// conversations run concurrently.
	bindings map[*model.Timeline]*streamBinding

	loadingHistoryID string
	loadingDirectory bool
}

// Option configures a Controller at construction time.
type Option func(*Controller)

// WithPageSize sets how many summaries one directory refresh fetches.
func WithPageSize(n int) Option {
	return func(c *Controller) {
		if n > 0 {
			c.pageSize = n
		}
	}
}

// New creates a controller and starts its run loop.
func New(backend Backend, store Store, opts ...Option) *Controller {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		backend:   backend,
		store:     store,
		calls:     make(chan func(), 128),
		events:    make(chan struct{}, 1),
		done:      make(chan struct{}),
		ctx:       ctx,
		ctxCancel: cancel,
		timeline:  model.NewTimeline(),
		timelines: make(map[string]*model.Timeline),
		bindings:  make(map[*model.Timeline]*streamBinding),
		pageSize:  directoryPageSize,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.publish()
	go c.run()
	return c
}

// Apply queues an intent for the run loop. It never blocks the run loop
// itself and is safe from any goroutine.
func (c *Controller) Apply(intent Intent) {
	c.post(func() { c.dispatch(intent) })
}

// Snapshot returns the current read-only projection.
func (c *Controller) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snap
}

// Events signals after state changes. Signals coalesce; consumers re-read
// Snapshot on each tick rather than counting ticks.
func (c *Controller) Events() <-chan struct{} {
	return c.events
}

// Close stops the run loop and cancels every open stream.
func (c *Controller) Close() {
	c.ctxCancel()
	c.post(func() {
		for _, b := range c.bindings {
			b.cancel()
		}
		c.bindings = make(map[*model.Timeline]*streamBinding)
		close(c.done)
	})
}

func (c *Controller) run() {
	for {
		select {
		case fn := <-c.calls:
			fn()
		case <-c.done:
			return
		}
	}
}

func (c *Controller) post(fn func()) {
	select {
	case c.calls <- fn:
	case <-c.done:
	}
}

func (c *Controller) dispatch(intent Intent) {
	switch in := intent.(type) {
	case LoadConversations:
		c.loadConversations()
	case SelectConversation:
		c.noteTitle(in.ID, in.Title)
		c.selectConversation(in.ID)
	case NewConversation:
		c.newConversation()
	case UpdateInput:
		c.input = in.Text
		c.publish()
	case SendMessage:
		c.sendMessage(in.Text)
	case ToggleReasoning:
		c.reasoningEnabled = !c.reasoningEnabled
		c.publish()
	case ToggleSearch:
		c.searchEnabled = !c.searchEnabled
		c.publish()
	case RenameConversation:
		c.renameConversation(in.ID, in.Title)
	case DeleteConversation:
		c.deleteConversation(in.ID)
	}
}

// publish copies run-loop state into the shared snapshot and signals.
func (c *Controller) publish() {
	snap := Snapshot{
		Messages:               c.timeline.Snapshot(),
		Summaries:              append([]model.ConversationSummary(nil), c.summaries...),
		ActiveConversationID:   c.activeID,
		Input:                  c.input,
		ReasoningEnabled:       c.reasoningEnabled,
		SearchEnabled:          c.searchEnabled,
		Sending:                c.bindings[c.timeline] != nil,
		IsLoadingMessages:      c.loadingHistoryID != "" && c.loadingHistoryID == c.activeID,
		IsLoadingConversations: c.loadingDirectory,
		LastError:              c.lastError,
	}

	c.mu.Lock()
	c.snap = snap
	c.mu.Unlock()

	select {
	case c.events <- struct{}{}:
	default:
	}
}

// =============================================================================
// DIRECTORY
// =============================================================================

func (c *Controller) loadConversations() {
	// Cached list first so the UI is never empty on a cold start.
	if cached, err := c.store.LoadSummaries(); err != nil {
		log.Printf("summary cache load failed: %v", err)
	} else if len(cached) > 0 && len(c.summaries) == 0 {
		c.summaries = cached
		c.autoSelect()
		c.publish()
	}

	c.loadingDirectory = true
	c.publish()

	go func() {
		list, err := c.backend.ListConversations(c.ctx, 1, c.pageSize)
		c.post(func() {
			c.loadingDirectory = false
			if err != nil {
				c.lastError = err.Error()
				c.publish()
				return
			}
			c.summaries = list
			if err := c.store.SaveSummaries(list); err != nil {
				log.Printf("summary cache save failed: %v", err)
			}
			if len(list) == 0 && c.activeID != "" {
				c.newConversation()
				return
			}
			c.autoSelect()
			c.publish()
		})
	}()
}

// noteTitle records a caller-supplied title for a conversation the
// directory does not know yet, so the sidebar has something to show
// before the next refresh.
func (c *Controller) noteTitle(id, title string) {
	if id == "" || title == "" {
		return
	}
	for _, s := range c.summaries {
		if s.ID == id {
			return
		}
	}
	c.summaries = append(c.summaries, model.ConversationSummary{ID: id, Title: title})
}

// autoSelect focuses the first conversation when nothing is focused and
// no draft conversation is in progress.
func (c *Controller) autoSelect() {
	if c.activeID == "" && c.timeline.Len() == 0 && len(c.summaries) > 0 {
		c.selectConversation(c.summaries[0].ID)
	}
}

// =============================================================================
// SELECTION
// =============================================================================

func (c *Controller) selectConversation(id string) {
	if id == "" {
		return
	}
	// Reselecting the focused conversation is a no-op only once its
	// history actually arrived; an empty timeline retries the load.
	if id == c.activeID && c.timeline.Len() > 0 {
		return
	}

	tl, ok := c.timelines[id]
	if !ok {
		tl = model.NewTimeline()
		c.timelines[id] = tl
	}
	c.activeID = id
	c.timeline = tl
	c.lastError = ""

	// Cached history renders immediately; the network copy replaces it
	// when it lands, unless focus moved on in the meantime.
	if tl.Len() == 0 {
		if cached, err := c.store.LoadMessages(id); err != nil {
			log.Printf("history cache load failed for %s: %v", id, err)
		} else if len(cached) > 0 {
			tl.ReplaceAll(cached)
		}
	}
	c.loadingHistoryID = id
	c.publish()

	go func() {
		history, err := c.backend.History(c.ctx, id)
		c.post(func() {
			if c.loadingHistoryID == id {
				c.loadingHistoryID = ""
			}
			if err != nil {
				if c.activeID == id {
					c.lastError = err.Error()
				}
				c.publish()
				return
			}
			// Do not clobber a reply that is streaming into this timeline,
			// whichever conversation is focused right now.
			if _, open := c.bindings[tl]; open {
				c.publish()
				return
			}
			tl.ReplaceAll(history)
			if err := c.store.SaveMessages(id, history); err != nil {
				log.Printf("history cache save failed for %s: %v", id, err)
			}
			c.publish()
		})
	}()
}

func (c *Controller) newConversation() {
	// A fresh timeline pointer also fences off any stream still bound to
	// the previous draft; its frames keep applying to the old pointer.
	c.activeID = ""
	c.timeline = model.NewTimeline()
	c.input = ""
	c.lastError = ""
	c.loadingHistoryID = ""
	c.publish()
}

// =============================================================================
// SENDING AND STREAM FRAMES
// =============================================================================

func (c *Controller) sendMessage(text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	if _, open := c.bindings[c.timeline]; open {
		// One reply stream per conversation at a time.
		return
	}

	parentID := 0
	if last, ok := c.timeline.Last(); ok {
		parentID = last.ID
	}

	c.timeline.Append(model.NewUserMessage(text))
	c.timeline.Append(model.NewAssistantPlaceholder())
	c.input = ""
	c.lastError = ""

	req := api.NewSendRequest(c.activeID, text, c.reasoningEnabled, c.searchEnabled)
	req.ParentID = parentID

	streamCtx, cancel := context.WithCancel(c.ctx)
	b := &streamBinding{
		conversationID: c.activeID,
		timeline:       c.timeline,
		cancel:         cancel,
	}
	c.bindings[c.timeline] = b
	c.persist(b)
	c.publish()

	frames, err := c.backend.Send(streamCtx, req)
	if err != nil {
		c.failStream(b, err)
		return
	}

	go func() {
		for frame := range frames {
			f := frame
			c.post(func() { c.handleFrame(b, f) })
		}
		c.post(func() { c.finishStream(b) })
	}()
}

func (c *Controller) handleFrame(b *streamBinding, f api.Frame) {
	if f.Err != nil {
		c.failStream(b, f.Err)
		return
	}

	switch f.Type {
	case api.FrameNewConversation:
		c.adoptConversationID(b, f.ConversationID)
	case api.FrameMessage:
		b.timeline.AmendLast(model.IsAssistantLast, func(m model.Message) model.Message {
			return m.AppendDelta(f.Delta)
		})
		c.persist(b)
	case api.FrameReasoning:
		b.timeline.AmendLast(model.IsAssistantLast, func(m model.Message) model.Message {
			return m.AppendReasoningDelta(f.Delta)
		})
		c.persist(b)
	}

	if b.timeline == c.timeline {
		c.publish()
	}
}

// adoptConversationID reconciles a server-assigned id with the draft
// conversation the send originated from. First writer wins: the focused
// state only adopts the id when it still points at the same draft
// timeline the stream is bound to.
func (c *Controller) adoptConversationID(b *streamBinding, id string) {
	if b.conversationID != "" || id == "" {
		return
	}
	b.conversationID = id
	c.timelines[id] = b.timeline

	if c.activeID == "" && c.timeline == b.timeline {
		c.activeID = id
	}
	c.persist(b)
	c.publish()

	// The server now knows this conversation; pull its directory row in.
	c.loadConversations()
}

func (c *Controller) finishStream(b *streamBinding) {
	b.timeline.AmendLast(model.IsAssistantLast, func(m model.Message) model.Message {
		return m.FinishStreaming()
	})
	if last, ok := b.timeline.Last(); ok && last.Role == model.RoleAssistant && last.IsBlank() {
		log.Printf("reply stream for %q ended with no content", b.conversationID)
	}
	if c.bindings[b.timeline] == b {
		delete(c.bindings, b.timeline)
	}
	c.persist(b)
	c.publish()
}

func (c *Controller) failStream(b *streamBinding, err error) {
	log.Printf("reply stream failed: %v", err)
	b.timeline.AmendLast(model.IsAssistantLast, func(m model.Message) model.Message {
		return m.WithErrorText(sendErrorPrefix + err.Error())
	})
	if c.bindings[b.timeline] == b {
		delete(c.bindings, b.timeline)
	}
	b.cancel()
	c.persist(b)
	c.publish()
}

// persist writes the bound timeline through to local storage. A draft
// conversation has no key yet; it is persisted as soon as the server
// assigns one. Persistence failures are logged, never fatal.
func (c *Controller) persist(b *streamBinding) {
	if b.conversationID == "" {
		return
	}
	if err := c.store.SaveMessages(b.conversationID, b.timeline.Snapshot()); err != nil {
		log.Printf("persist failed for %s: %v", b.conversationID, err)
	}
}

// =============================================================================
// RENAME AND DELETE
// =============================================================================

func (c *Controller) renameConversation(id, title string) {
	title = strings.TrimSpace(title)
	if id == "" || title == "" {
		return
	}
	go func() {
		err := c.backend.Rename(c.ctx, id, title)
		c.post(func() {
			if err != nil {
				c.lastError = err.Error()
				c.publish()
				return
			}
			for i := range c.summaries {
				if c.summaries[i].ID == id {
					c.summaries[i].Title = title
				}
			}
			if err := c.store.SaveSummaries(c.summaries); err != nil {
				log.Printf("summary cache save failed: %v", err)
			}
			c.publish()
		})
	}()
}

func (c *Controller) deleteConversation(id string) {
	if id == "" {
		return
	}
	go func() {
		err := c.backend.Delete(c.ctx, id)
		c.post(func() {
			if err != nil {
				c.lastError = err.Error()
				c.publish()
				return
			}
			kept := c.summaries[:0]
			for _, s := range c.summaries {
				if s.ID != id {
					kept = append(kept, s)
				}
			}
			c.summaries = kept
			delete(c.timelines, id)
			if err := c.store.DeleteMessages(id); err != nil {
				log.Printf("local delete failed for %s: %v", id, err)
			}
			if c.activeID == id {
				c.newConversation()
				return
			}
			c.publish()
		})
	}()
}
