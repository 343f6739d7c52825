package models

import "time"

const (
	// MinRating and MaxRating bound a review's star rating.
	MinRating = 1
	MaxRating = 5
	// MaxCommentLength is the maximum review comment length in characters.
	MaxCommentLength = 250
)

// Review is a user's rating of a completed trip. There is at most one review
// per (trip, user); a later submission replaces the earlier one.
type Review struct {
	ID        int64     `json:"id,omitempty"`
	TripID    int64     `json:"trip"`
	UserID    int64     `json:"user,omitempty"`
	Rating    int       `json:"rating"`
	Comment   string    `json:"comment"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// ValidRating reports whether r is within the accepted star range.
func ValidRating(r int) bool {
	return r >= MinRating && r <= MaxRating
}

// TruncateComment cuts s to MaxCommentLength characters.
func TruncateComment(s string) string {
	runes := []rune(s)
	if len(runes) <= MaxCommentLength {
		return s
	}
	return string(runes[:MaxCommentLength])
}
