package api

import (
	"context"
	"fmt"

	"github.com/narvanalabs/travel-buddy/internal/models"
)

// CheckTripDatesRequest asks the server whether a date range overlaps the user's trips.
type CheckTripDatesRequest struct {
	StartDate     models.Date `json:"startDate"`
	EndDate       models.Date `json:"endDate"`
	DestinationID int64       `json:"destinationId"`
}

// CheckTripDatesResponse reports an overlap with an existing trip.
type CheckTripDatesResponse struct {
	HasConflict bool `json:"hasConflict"`
}

// TripPlan describes a trip to create or to match against.
type TripPlan struct {
	DestinationID int64       `json:"destinationId"`
	Activities    []int64     `json:"activities"`
	StartDate     models.Date `json:"startDate"`
	EndDate       models.Date `json:"endDate"`
	MaxMembers    int         `json:"maxMembers,omitempty"`
	Description   string      `json:"description,omitempty"`
}

// SaveTripResponse is returned when a trip is created.
type SaveTripResponse struct {
	TripID  int64  `json:"trip_id"`
	Message string `json:"message,omitempty"`
}

// MyTrips fetches every trip the user created or joined, including cancelled ones.
func (c *Client) MyTrips(ctx context.Context) ([]*models.Trip, error) {
	var trips []*models.Trip
	if err := c.get(ctx, "/my-trips/", &trips); err != nil {
		return nil, err
	}
	return trips, nil
}

// GetTrip fetches a single trip with creator and member details.
func (c *Client) GetTrip(ctx context.Context, tripID int64) (*models.Trip, error) {
	var trip models.Trip
	if err := c.get(ctx, fmt.Sprintf("/trip/%d/", tripID), &trip); err != nil {
		return nil, err
	}
	return &trip, nil
}

// CheckTripDates asks the server for date overlaps with the user's existing trips.
func (c *Client) CheckTripDates(ctx context.Context, req CheckTripDatesRequest) (*CheckTripDatesResponse, error) {
	var resp CheckTripDatesResponse
	if err := c.post(ctx, "/check-trip-dates/", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SaveTrip creates a new trip with the user as creator.
func (c *Client) SaveTrip(ctx context.Context, plan TripPlan) (*SaveTripResponse, error) {
	var resp SaveTripResponse
	if err := c.post(ctx, "/save-trip/", plan, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CompatibleTrips lists other users' trips matching a plan, scored by the server.
func (c *Client) CompatibleTrips(ctx context.Context, plan TripPlan) ([]*models.Trip, error) {
	var trips []*models.Trip
	if err := c.post(ctx, "/compatible-trips/", plan, &trips); err != nil {
		return nil, err
	}
	return trips, nil
}

// JoinTrip adds the user to a trip.
func (c *Client) JoinTrip(ctx context.Context, tripID int64) (*MessageResponse, error) {
	return c.membershipAction(ctx, fmt.Sprintf("/join-trip/%d/", tripID))
}

// LeaveTrip removes the user from a trip they joined.
func (c *Client) LeaveTrip(ctx context.Context, tripID int64) (*MessageResponse, error) {
	return c.membershipAction(ctx, fmt.Sprintf("/trip/%d/leave/", tripID))
}

// CancelTrip cancels a trip the user created. The server notifies members.
func (c *Client) CancelTrip(ctx context.Context, tripID int64) (*MessageResponse, error) {
	return c.membershipAction(ctx, fmt.Sprintf("/trip/%d/cancel/", tripID))
}

// RemoveMember removes another member from a trip the user created.
func (c *Client) RemoveMember(ctx context.Context, tripID, memberID int64) (*MessageResponse, error) {
	return c.membershipAction(ctx, fmt.Sprintf("/trip/%d/remove-member/%d/", tripID, memberID))
}

func (c *Client) membershipAction(ctx context.Context, path string) (*MessageResponse, error) {
	var resp MessageResponse
	if err := c.post(ctx, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
