package models

// ConversationListResult is one page of a conversation sync. The caller
// loops with the returned UpdatedAt cursor while Count == the requested
// limit; a short page terminates the sync.
type ConversationListResult struct {
	Items     []*Conversation `json:"items"`
	Removed   []string        `json:"removed,omitempty"`
	UpdatedAt int64           `json:"updatedAt"`
	Count     int             `json:"count"`
}

// ChatLogListResult is one page of a topic's log sync, ordered by seq
// descending.
type ChatLogListResult struct {
	Items   []*ChatLog `json:"items"`
	LastSeq int64      `json:"lastSeq"`
	HasMore bool       `json:"hasMore"`
}

// UserListResult is one page of a contact sync.
type UserListResult struct {
	Items     []*User  `json:"items"`
	Removed   []string `json:"removed,omitempty"`
	UpdatedAt int64    `json:"updatedAt"`
	HasMore   bool     `json:"hasMore"`
}

// UploadResult is the attachment metadata returned by the media
// endpoint after a successful upload.
type UploadResult struct {
	Path      string `json:"path"`
	FileName  string `json:"fileName,omitempty"`
	Thumbnail string `json:"thumbnail,omitempty"`
	Size      int64  `json:"size,omitempty"`
}
