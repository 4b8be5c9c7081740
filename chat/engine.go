// Package chat implements the conversation sync engine: the single owner of
// the in-memory conversation state, mirrored to the durable store on every
// mutation.
//
// The engine keeps exactly one authoritative in-memory representation per
// process and notifies subscribers of changes; consumers read snapshots
// instead of holding their own copies. The durable store is a durability
// aid, not the source of truth while a conversation is active: a failed
// store write is logged and dropped, so memory may transiently lead disk.
package chat

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"chatsync/config"
	"chatsync/storage"
)

var (
	// ErrMissingCredential blocks Send before any side effect.
	ErrMissingCredential = errors.New("missing API credential")
	// ErrTitleGeneration aborts Send before any message is persisted.
	ErrTitleGeneration = errors.New("title generation failed")
	// ErrCompletionRequest reports an aborted stream; partial assistant
	// content already written stays as-is.
	ErrCompletionRequest = errors.New("completion request failed")
	// ErrSendInFlight rejects a Send that overlaps another on this engine.
	ErrSendInFlight = errors.New("a send is already in flight")
)

// Completer is the remote completion endpoint as the engine consumes it.
// provider.Client implements it.
type Completer interface {
	// Summarize returns a short descriptive title for a conversation
	// opening with prompt.
	Summarize(ctx context.Context, prompt string) (string, error)

	// Stream sends the message history and reports content deltas via
	// onDelta until the stream ends.
	Stream(ctx context.Context, model string, messages []storage.Message, onDelta func(delta string) error) error
}

// CredentialSource supplies the API credential gating Send.
// config.CredentialStore implements it.
type CredentialSource interface {
	APIKey() string
}

// Engine orchestrates conversation selection, message appends and streamed
// completions across the in-memory view and the durable store.
//
// The store may be nil when it could not be opened; the engine then runs
// memory-only. All methods are safe for concurrent use, but overlapping
// sends are rejected rather than interleaved (see Send).
type Engine struct {
	mu           sync.Mutex
	store        *storage.ChatStore
	completer    Completer
	creds        CredentialSource
	defaultModel string

	chats    map[string]storage.Conversation
	title    string
	model    string
	messages []storage.Message
	state    State
	sending  bool // held for the whole compound Send, set and cleared under mu

	listeners []func(Event)
}

// NewEngine creates an engine and hydrates the conversation directory from
// the store. A nil store degrades to memory-only operation.
func NewEngine(store *storage.ChatStore, completer Completer, creds CredentialSource, defaultModel string) *Engine {
	e := &Engine{
		store:        store,
		completer:    completer,
		creds:        creds,
		defaultModel: defaultModel,
		chats:        make(map[string]storage.Conversation),
		model:        defaultModel,
		state:        StateIdle,
	}
	e.hydrate()
	return e
}

func (e *Engine) hydrate() {
	if e.store == nil {
		return
	}

	chats, err := e.store.GetAll()
	if err != nil {
		if config.DebugLog != nil {
			config.DebugLog.Printf("[chat] failed to hydrate directory: %v", err)
		}
		return
	}

	e.chats = chats
}

// Subscribe registers fn to be called after every applied mutation.
// Callbacks run outside the engine lock and must not block for long.
func (e *Engine) Subscribe(fn func(Event)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners = append(e.listeners, fn)
}

func (e *Engine) notify(ev Event) {
	e.mu.Lock()
	listeners := append([]func(Event){}, e.listeners...)
	e.mu.Unlock()

	for _, fn := range listeners {
		fn(ev)
	}
}

// SelectConversation binds title as the active conversation and loads its
// messages from the directory cache, or an empty sequence if none exist.
// The conversation's stored model is resolved, falling back to the default.
func (e *Engine) SelectConversation(title string) {
	id := storage.DeriveConversationID(title)

	e.mu.Lock()
	e.title = title
	if conv, ok := e.chats[id]; ok {
		e.messages = append([]storage.Message(nil), conv.Messages...)
		e.model = conv.Model
		if e.model == "" {
			e.model = e.defaultModel
		}
	} else {
		e.messages = nil
		e.model = e.defaultModel
	}
	e.state = StateLoaded
	e.mu.Unlock()

	e.notify(Event{Kind: EventStateChanged, Title: title})
	e.notify(Event{Kind: EventMessagesChanged, Title: title})
}

// Send runs the compound send operation for the active conversation:
//
//  1. An empty prompt is a no-op.
//  2. A missing credential fails fast with no side effects.
//  3. If no title is bound yet, the endpoint generates one; failure aborts
//     before anything is persisted.
//  4. The user message and an empty assistant placeholder are appended to
//     memory and store.
//  5. The completion streams; the running concatenation of deltas replaces
//     the trailing assistant message's content on every chunk.
//  6. The engine returns to Loaded. A mid-stream failure leaves the
//     assistant message however far it got.
//
// Send blocks until the stream completes; run it on its own goroutine.
// A second Send while one is in flight returns ErrSendInFlight instead of
// interleaving read-modify-write cycles against the store.
func (e *Engine) Send(ctx context.Context, prompt string) error {
	if prompt == "" {
		return nil
	}
	if e.creds == nil || e.creds.APIKey() == "" {
		return ErrMissingCredential
	}

	e.mu.Lock()
	if e.sending {
		e.mu.Unlock()
		return ErrSendInFlight
	}
	e.sending = true
	title := e.title
	model := e.model
	if model == "" {
		model = e.defaultModel
	}
	history := append([]storage.Message(nil), e.messages...)
	if title == "" {
		e.state = StateAwaitingTitle
	}
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.sending = false
		e.mu.Unlock()
	}()

	if title == "" {
		e.notify(Event{Kind: EventStateChanged})

		generated, err := e.completer.Summarize(ctx, prompt)
		if err != nil || strings.TrimSpace(generated) == "" {
			e.mu.Lock()
			stillUnbound := e.title == ""
			if stillUnbound {
				e.state = StateIdle
			}
			e.mu.Unlock()
			if stillUnbound {
				e.notify(Event{Kind: EventStateChanged})
			}
			if err != nil {
				return fmt.Errorf("%w: %v", ErrTitleGeneration, err)
			}
			return ErrTitleGeneration
		}

		title = strings.TrimSpace(generated)
		e.mu.Lock()
		// A navigation during the summarize call wins the active slot; the
		// send then runs like a background stream, writing store and
		// directory but never the active view.
		if e.title == "" {
			e.title = title
		}
		e.mu.Unlock()
	}

	userMessage := storage.Message{Role: "user", Content: prompt, Timestamp: time.Now()}
	e.appendMessage(title, model, userMessage)

	// Placeholder the stream fills incrementally.
	e.appendMessage(title, model, storage.Message{Role: "assistant", Content: "", Timestamp: time.Now()})

	e.setActiveState(title, StateStreaming)

	request := append(history, userMessage)
	var reply strings.Builder

	streamErr := e.completer.Stream(ctx, model, request, func(delta string) error {
		reply.WriteString(delta)
		e.applyAssistantContent(title, reply.String())
		return nil
	})

	e.setActiveState(title, StateLoaded)

	if streamErr != nil {
		return fmt.Errorf("%w: %v", ErrCompletionRequest, streamErr)
	}
	return nil
}

// setActiveState applies a lifecycle transition only while title is still
// the active conversation. A stream that outlives a navigation keeps
// writing to storage but no longer drives the visible state.
func (e *Engine) setActiveState(title string, state State) {
	e.mu.Lock()
	active := e.title == title
	if active {
		e.state = state
	}
	e.mu.Unlock()

	if active {
		e.notify(Event{Kind: EventStateChanged, Title: title})
	}
}

// appendMessage mirrors one message into the durable store, the directory
// and, while title is still active, the in-memory view. Store failures are
// logged and dropped.
func (e *Engine) appendMessage(title, model string, message storage.Message) {
	id := storage.DeriveConversationID(title)

	if e.store != nil {
		if err := e.store.Upsert(id, message, title, model); err != nil {
			if config.DebugLog != nil {
				config.DebugLog.Printf("[chat] failed to persist message for %q: %v", title, err)
			}
		}
	}

	e.mu.Lock()
	conv, ok := e.chats[id]
	if !ok {
		conv = storage.Conversation{ID: id, Title: title, CreatedAt: time.Now()}
	}
	conv.Messages = append(conv.Messages, message)
	conv.Model = model
	conv.UpdatedAt = time.Now()
	e.chats[id] = conv

	active := e.title == title
	if active {
		e.messages = append(e.messages, message)
	}
	e.mu.Unlock()

	e.notify(Event{Kind: EventDirectoryChanged, Title: title})
	if active {
		e.notify(Event{Kind: EventMessagesChanged, Title: title})
	}
}

// applyAssistantContent replaces the trailing message's content with the
// reply as reconstructed so far, in store, directory and (while title is
// still active) the in-memory view.
func (e *Engine) applyAssistantContent(title, content string) {
	id := storage.DeriveConversationID(title)

	if e.store != nil {
		if err := e.store.UpdateLastMessageContent(id, content); err != nil {
			if config.DebugLog != nil {
				config.DebugLog.Printf("[chat] failed to persist streamed content for %q: %v", title, err)
			}
		}
	}

	e.mu.Lock()
	if conv, ok := e.chats[id]; ok && len(conv.Messages) > 0 {
		conv.Messages[len(conv.Messages)-1].Content = content
		conv.UpdatedAt = time.Now()
		e.chats[id] = conv
	}
	active := e.title == title
	if active && len(e.messages) > 0 {
		e.messages[len(e.messages)-1].Content = content
	}
	e.mu.Unlock()

	if active {
		e.notify(Event{Kind: EventMessagesChanged, Title: title})
	}
}

// DeleteConversation removes title's conversation from store and directory.
// Deleting the active conversation resets the engine to Idle.
func (e *Engine) DeleteConversation(title string) {
	id := storage.DeriveConversationID(title)

	if e.store != nil {
		if err := e.store.Delete(id); err != nil {
			if config.DebugLog != nil {
				config.DebugLog.Printf("[chat] failed to delete conversation %q: %v", title, err)
			}
		}
	}

	e.mu.Lock()
	delete(e.chats, id)
	active := e.title == title
	if active {
		e.title = ""
		e.messages = nil
		e.model = e.defaultModel
		e.state = StateIdle
	}
	e.mu.Unlock()

	e.notify(Event{Kind: EventDirectoryChanged, Title: title})
	if active {
		e.notify(Event{Kind: EventStateChanged})
	}
}

// DeleteAll removes every conversation and resets the engine to Idle.
func (e *Engine) DeleteAll() {
	if e.store != nil {
		if err := e.store.Clear(); err != nil {
			if config.DebugLog != nil {
				config.DebugLog.Printf("[chat] failed to clear conversations: %v", err)
			}
		}
	}

	e.mu.Lock()
	e.chats = make(map[string]storage.Conversation)
	e.title = ""
	e.messages = nil
	e.model = e.defaultModel
	e.state = StateIdle
	e.mu.Unlock()

	e.notify(Event{Kind: EventDirectoryChanged})
	e.notify(Event{Kind: EventStateChanged})
}

// RenameConversation retitles a conversation. Ids derive from titles, so
// the entry is re-keyed in store and directory; renaming the active
// conversation rebinds its title.
func (e *Engine) RenameConversation(oldTitle, newTitle string) error {
	if newTitle == "" {
		return fmt.Errorf("new title cannot be empty")
	}
	if oldTitle == newTitle {
		return nil
	}

	oldID := storage.DeriveConversationID(oldTitle)
	newID := storage.DeriveConversationID(newTitle)

	if e.store != nil {
		if err := e.store.Rename(oldID, newTitle); err != nil {
			return fmt.Errorf("failed to rename conversation: %w", err)
		}
	}

	e.mu.Lock()
	if conv, ok := e.chats[oldID]; ok {
		delete(e.chats, oldID)
		conv.ID = newID
		conv.Title = newTitle
		conv.UpdatedAt = time.Now()
		e.chats[newID] = conv
	}
	if e.title == oldTitle {
		e.title = newTitle
	}
	e.mu.Unlock()

	e.notify(Event{Kind: EventDirectoryChanged, Title: newTitle})
	return nil
}

// Conversations returns the directory listing, most recently updated first.
func (e *Engine) Conversations() []storage.Conversation {
	e.mu.Lock()
	conversations := make([]storage.Conversation, 0, len(e.chats))
	for _, conv := range e.chats {
		conversations = append(conversations, conv)
	}
	e.mu.Unlock()

	sort.Slice(conversations, func(i, j int) bool {
		return conversations[i].UpdatedAt.After(conversations[j].UpdatedAt)
	})

	return conversations
}

// Lookup returns the directory entry for a conversation id.
func (e *Engine) Lookup(id string) (storage.Conversation, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	conv, ok := e.chats[id]
	return conv, ok
}

// Messages returns a snapshot of the active conversation's messages.
func (e *Engine) Messages() []storage.Message {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]storage.Message(nil), e.messages...)
}

// Title returns the active conversation's title, empty when Idle.
func (e *Engine) Title() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.title
}

// Model returns the model resolved for the active conversation.
func (e *Engine) Model() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.model
}

// SetModel changes the model used for subsequent sends on the active
// conversation. Persisted with the next appended message.
func (e *Engine) SetModel(model string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if model != "" {
		e.model = model
	}
}

// State returns the active conversation's lifecycle state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}
