// Package review defines stored provider reviews and reply records.
package review

import (
	"encoding/json"
	"time"
)

// Review is a provider review persisted for a user. The pair
// (Provider, ProviderReviewID) is the dedup boundary: upserting the same
// pair twice keeps a single row reflecting the latest write.
type Review struct {
	ID               string          `json:"id"`
	UserID           string          `json:"user_id"`
	Provider         string          `json:"provider"`
	ProviderReviewID string          `json:"provider_review_id"`
	LocationName     string          `json:"location_name"`
	Rating           *int            `json:"rating"`
	Text             string          `json:"text"`
	Author           string          `json:"author"`
	SourceURL        string          `json:"source_url,omitempty"`
	CreateTime       string          `json:"create_time,omitempty"`
	UpdateTime       string          `json:"update_time,omitempty"`
	Raw              json.RawMessage `json:"raw,omitempty"`
}

// InboxItem is the shape returned by the review inbox listing.
type InboxItem struct {
	ID              string `json:"id"`
	Platform        string `json:"platform"`
	ReviewerName    string `json:"reviewerName,omitempty"`
	Rating          *int   `json:"rating"`
	ReviewText      string `json:"reviewText"`
	SourceURL       string `json:"sourceUrl,omitempty"`
	ReviewCreatedAt string `json:"reviewCreatedAt,omitempty"`
}

// ReplyStatus is caller-supplied; no transitions are enforced.
type ReplyStatus string

const (
	StatusDrafted  ReplyStatus = "drafted"
	StatusApproved ReplyStatus = "approved"
	StatusPosted   ReplyStatus = "posted"
	StatusRejected ReplyStatus = "rejected"
)

// ValidStatus reports whether s is one of the recognised reply statuses.
func ValidStatus(s ReplyStatus) bool {
	switch s {
	case StatusDrafted, StatusApproved, StatusPosted, StatusRejected:
		return true
	}
	return false
}

// Reply records a drafted or saved response to a review.
type Reply struct {
	ID        string      `json:"id"`
	ReviewID  string      `json:"review_id"`
	UserID    string      `json:"user_id"`
	DraftText string      `json:"draft_text"`
	FinalText string      `json:"final_text"`
	Status    ReplyStatus `json:"status"`
	Tags      []string    `json:"tags"`
	Note      string      `json:"note"`
	PostedAt  *time.Time  `json:"posted_at,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
}
