package storage

import (
	"testing"

	"github.com/google/uuid"
)

func TestDeriveConversationIDDeterministic(t *testing.T) {
	titles := []string{
		"Trip planning",
		"Trip planning", // repeated on purpose
		"",
		"日本語のタイトル",
		"A much longer conversation title with punctuation, numbers 123 and symbols !@#",
	}

	for _, title := range titles {
		first := DeriveConversationID(title)
		second := DeriveConversationID(title)
		if first != second {
			t.Errorf("DeriveConversationID(%q) not deterministic: %s != %s", title, first, second)
		}
	}
}

func TestDeriveConversationIDDistinctTitles(t *testing.T) {
	corpus := []string{
		"Trip planning",
		"trip planning",
		"Trip planning ",
		"Grocery list",
		"Go concurrency questions",
		"",
		"a",
		"b",
	}

	seen := make(map[string]string)
	for _, title := range corpus {
		id := DeriveConversationID(title)
		if other, ok := seen[id]; ok {
			t.Errorf("titles %q and %q collided on id %s", title, other, id)
		}
		seen[id] = title
	}
}

func TestDeriveConversationIDIsValidUUID(t *testing.T) {
	for _, title := range []string{"", "Trip planning"} {
		id := DeriveConversationID(title)
		parsed, err := uuid.Parse(id)
		if err != nil {
			t.Fatalf("DeriveConversationID(%q) = %q is not a valid UUID: %v", title, id, err)
		}
		if parsed.Version() != 5 {
			t.Errorf("DeriveConversationID(%q) version = %d, want 5", title, parsed.Version())
		}
	}
}
