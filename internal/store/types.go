package store

// Message roles. Sync never edits a message after creation; the only
// later mutation allowed is an audio URL backfill.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Chat represents one conversation with a contact. A user has at most one
// non-tombstoned chat per contact. Deletion is a soft delete: the row stays
// addressable by id/contact so repeated deletes from other devices converge.
type Chat struct {
	ID             string
	UserID         string
	ContactID      string
	ContactName    string
	ContactEmoji   string
	ContactImage   string
	ContactPurpose string
	LastMessage    string
	LastMessageAt  int64 // unix millis
	CreatedAt      int64
	UpdatedAt      int64
	IsDeleted      bool
	DeletedAt      int64 // 0 while the chat is live
}

// Message is one entry in a chat's append-only sequence, ordered by
// CreatedAt ascending with Seq (insertion order) breaking ties.
type Message struct {
	Seq       int64
	ID        string
	ChatID    string
	Role      string
	Content   string
	AudioURL  string
	CreatedAt int64 // unix millis
}

// ChatUpdate carries a partial chat metadata update. Nil fields are left
// untouched.
type ChatUpdate struct {
	ContactName    *string
	ContactEmoji   *string
	ContactImage   *string
	ContactPurpose *string
	LastMessage    *string
	LastMessageAt  *int64
}

// Subscription is the user's billing state, written by the payment
// integration and read on every quota check.
type Subscription struct {
	UserID           string
	Plan             string
	Status           string
	CurrentPeriodEnd int64
	UpdatedAt        int64
}

// Voice is rarely-changing reference data describing an available TTS voice.
type Voice struct {
	ID        string
	Name      string
	Provider  string
	SampleURL string
}

// Token is an API token record; the raw token is never stored, only its
// sha256 hash.
type Token struct {
	TokenHash string
	UserID    string
	CreatedAt int64
	ExpiresAt int64 // 0 = no expiry
}
