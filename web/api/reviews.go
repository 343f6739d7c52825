package api

import (
	"context"

	"github.com/narvanalabs/travel-buddy/internal/models"
)

// ReviewRequest is the body of POST /trip-reviews/.
type ReviewRequest struct {
	TripID  int64  `json:"trip"`
	Rating  int    `json:"rating"`
	Comment string `json:"comment"`
}

// ListReviews fetches every review the user has written.
func (c *Client) ListReviews(ctx context.Context) ([]*models.Review, error) {
	var reviews []*models.Review
	if err := c.get(ctx, "/trip-reviews/", &reviews); err != nil {
		return nil, err
	}
	return reviews, nil
}

// SubmitReview creates or replaces the user's review of a trip.
func (c *Client) SubmitReview(ctx context.Context, req ReviewRequest) (*models.Review, error) {
	var review models.Review
	if err := c.post(ctx, "/trip-reviews/", req, &review); err != nil {
		return nil, err
	}
	return &review, nil
}
