package chat

import (
	"strings"
	"time"

	"github.com/sahilm/fuzzy"

	"chatsync/storage"
)

// MessageMatch represents a search hit inside one conversation.
type MessageMatch struct {
	ConversationID string
	Title          string
	MessageIndex   int
	Role           string
	Content        string
	Preview        string
	Timestamp      time.Time
}

// SearchTitles fuzzy-matches query against conversation titles and returns
// the matching directory entries, best match first.
func (e *Engine) SearchTitles(query string) []storage.Conversation {
	if query == "" {
		return nil
	}

	conversations := e.Conversations()

	titles := make([]string, len(conversations))
	for i, conv := range conversations {
		titles[i] = conv.Title
	}

	matches := fuzzy.Find(query, titles)

	results := make([]storage.Conversation, 0, len(matches))
	for _, match := range matches {
		results = append(results, conversations[match.Index])
	}

	return results
}

// SearchMessages finds query as a case-insensitive substring across the
// messages of every conversation in the directory. System messages are
// excluded from results.
func (e *Engine) SearchMessages(query string) []MessageMatch {
	if query == "" {
		return []MessageMatch{}
	}

	queryLower := strings.ToLower(query)
	var matches []MessageMatch

	for _, conv := range e.Conversations() {
		for i, msg := range conv.Messages {
			if msg.Role == "system" {
				continue
			}

			if !strings.Contains(strings.ToLower(msg.Content), queryLower) {
				continue
			}

			preview := msg.Content
			if len(preview) > 100 {
				preview = preview[:100] + "..."
			}

			matches = append(matches, MessageMatch{
				ConversationID: conv.ID,
				Title:          conv.Title,
				MessageIndex:   i,
				Role:           msg.Role,
				Content:        msg.Content,
				Preview:        preview,
				Timestamp:      msg.Timestamp,
			})
		}
	}

	return matches
}
