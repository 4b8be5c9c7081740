package storage

import "github.com/google/uuid"

// conversationNamespace is the fixed namespace for deriving conversation ids
// from titles. Changing it orphans every stored conversation.
var conversationNamespace = uuid.MustParse("8f3c9a5e-41d2-5b76-9c0e-6a1f2d84b357")

// DeriveConversationID maps a conversation title to its storage key. The
// mapping is a name-based (SHA-1) UUID: pure, deterministic, no uniqueness
// guarantee beyond the digest itself. Two conversations with the same title
// share one id and silently merge; that is the lookup contract, not a bug.
// An empty title still yields a valid id — "no conversation selected" is a
// convention handled by the sync engine, never by this function.
func DeriveConversationID(title string) string {
	return uuid.NewSHA1(conversationNamespace, []byte(title)).String()
}
