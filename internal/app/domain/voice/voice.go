// Package voice defines brand voice profiles: free-text writing samples and
// the style guide generated from them. One profile per user, regenerated
// wholesale on each save.
package voice

import "time"

// Profile is a user's brand voice profile.
type Profile struct {
	UserID     string    `json:"user_id"`
	Samples    []string  `json:"samples"`
	StyleGuide string    `json:"style_guide"`
	UpdatedAt  time.Time `json:"updated_at"`
}
