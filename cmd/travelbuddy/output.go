package main

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/narvanalabs/travel-buddy/internal/eligibility"
	apperrors "github.com/narvanalabs/travel-buddy/internal/errors"
	"github.com/narvanalabs/travel-buddy/internal/membership"
	"github.com/narvanalabs/travel-buddy/internal/models"
	"github.com/narvanalabs/travel-buddy/internal/planner"
)

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

func printProfile(w io.Writer, user *models.User, sub *models.Subscription) {
	fmt.Fprintf(w, "%s (id %d)\n", user.Username, user.ID)
	if name := strings.TrimSpace(user.FirstName + " " + user.LastName); name != "" {
		fmt.Fprintf(w, "  name:  %s\n", name)
	}
	if user.Email != "" {
		fmt.Fprintf(w, "  email: %s\n", user.Email)
	}
	if sub == nil || !sub.HasSubscription {
		fmt.Fprintln(w, "  plan:  free")
		return
	}
	fmt.Fprintf(w, "  plan:  %s, %d days left\n", sub.Plan, sub.DaysRemaining)
}

func printTrips(w io.Writer, trips []*models.Trip, userID int64) {
	if len(trips) == 0 {
		fmt.Fprintln(w, "No trips")
		return
	}
	tw := newTable(w)
	fmt.Fprintln(tw, "ID\tDESTINATION\tDATES\tSTATUS\tMEMBERS\tROLE")
	for _, t := range trips {
		role := "member"
		if t.IsCreator(userID) {
			role = "creator"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n",
			t.ID, t.Name(), dateRange(t), t.Status, headCount(t), role)
	}
	_ = tw.Flush()
}

func printTripDetail(w io.Writer, t *models.Trip, actions []eligibility.TripAction) {
	fmt.Fprintf(w, "Trip #%d to %s\n", t.ID, t.Name())
	if t.DestinationLocation != "" {
		fmt.Fprintf(w, "  where:   %s\n", t.DestinationLocation)
	}
	fmt.Fprintf(w, "  when:    %s\n", dateRange(t))
	fmt.Fprintf(w, "  status:  %s\n", t.Status)
	if info := t.CancelledByInfo; info != nil {
		fmt.Fprintf(w, "  cancelled by %s on %s\n", info.Username, info.CancelledAt.Format("2006-01-02"))
	}
	if t.Creator != nil && t.Creator.Username != "" {
		fmt.Fprintf(w, "  creator: %s\n", t.Creator.Username)
	}
	fmt.Fprintf(w, "  members: %s\n", headCount(t))
	for _, m := range t.Members {
		fmt.Fprintf(w, "    - %s (id %d)\n", displayName(m), m.ID)
	}
	if t.Description != "" {
		fmt.Fprintf(w, "  %s\n", t.Description)
	}

	if len(actions) == 0 {
		fmt.Fprintln(w, "  nothing you can do with this trip")
		return
	}
	names := make([]string, len(actions))
	for i, a := range actions {
		names[i] = strings.ReplaceAll(string(a), "_", "-")
	}
	fmt.Fprintf(w, "  actions: %s\n", strings.Join(names, ", "))
}

func printCompatible(w io.Writer, res *planner.Compatible) {
	if len(res.Trips) == 0 {
		fmt.Fprintln(w, "No compatible trips")
		return
	}
	tw := newTable(w)
	fmt.Fprintln(tw, "ID\tDESTINATION\tDATES\tMEMBERS\tSCORE")
	for _, t := range res.Trips {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%.1f\n",
			t.ID, t.Name(), dateRange(t), headCount(t), t.CompatibilityScore)
	}
	_ = tw.Flush()
	if hidden := res.Hidden(); hidden > 0 {
		fmt.Fprintf(w, "%d more compatible trips with a premium subscription\n", hidden)
	}
}

func printResult(w io.Writer, res *membership.Result) {
	switch res.Outcome {
	case membership.OutcomeNoOp:
		fmt.Fprintf(w, "Nothing to do: %s\n", res.Message)
	case membership.OutcomeDiscarded:
		fmt.Fprintln(w, "Interrupted before the server answered")
	default:
		if res.Message != "" {
			fmt.Fprintln(w, res.Message)
			return
		}
		fmt.Fprintf(w, "%s on trip #%d done\n", res.Op, res.TripID)
	}
}

func printReviews(w io.Writer, reviews []*models.Review) {
	if len(reviews) == 0 {
		fmt.Fprintln(w, "No reviews")
		return
	}
	tw := newTable(w)
	fmt.Fprintln(tw, "TRIP\tRATING\tCOMMENT")
	for _, r := range reviews {
		fmt.Fprintf(tw, "%d\t%s\t%s\n", r.TripID, stars(r.Rating), r.Comment)
	}
	_ = tw.Flush()
}

func printNotifications(w io.Writer, items []*models.Notification, unread int) {
	if len(items) == 0 {
		fmt.Fprintln(w, "No notifications")
		return
	}
	tw := newTable(w)
	fmt.Fprintln(tw, "ID\t\tWHEN\tWHAT")
	for _, n := range items {
		mark := " "
		if !n.Read {
			mark = "*"
		}
		when := n.FormattedDate
		if when == "" {
			when = n.CreatedAt.Local().Format("Jan 2 15:04")
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", n.ID, mark, when, n.Describe())
	}
	_ = tw.Flush()
	fmt.Fprintf(w, "%d unread\n", unread)
}

func printMessage(w io.Writer, msg *models.ChatMessage) {
	fmt.Fprintf(w, "[%s] %s: %s\n", msg.Timestamp.Local().Format("15:04"), msg.SenderUsername, msg.Message)
}

// printError shows the server's message and any field errors, without the
// code prefix Error() carries.
func printError(w io.Writer, err error) {
	var appErr *apperrors.Error
	if !errors.As(err, &appErr) {
		fmt.Fprintf(w, "Error: %v\n", err)
		return
	}
	if len(appErr.Fields) == 0 {
		fmt.Fprintf(w, "Error: %s\n", appErr.Message)
		return
	}
	fmt.Fprintln(w, "Error:")
	for _, f := range appErr.Fields {
		fmt.Fprintf(w, "  %s: %s\n", f.Field, f.Message)
	}
}

func dateRange(t *models.Trip) string {
	return fmt.Sprintf("%s..%s", t.StartDate, t.EndDate)
}

func headCount(t *models.Trip) string {
	if t.MaxMembers <= 0 {
		return fmt.Sprintf("%d", t.MemberCount())
	}
	return fmt.Sprintf("%d/%d", t.MemberCount(), t.MaxMembers+1)
}

func displayName(u models.UserRef) string {
	if u.Username != "" {
		return u.Username
	}
	return fmt.Sprintf("user %d", u.ID)
}

func stars(rating int) string {
	if rating < models.MinRating || rating > models.MaxRating {
		return fmt.Sprintf("%d", rating)
	}
	return strings.Repeat("*", rating) + strings.Repeat(".", models.MaxRating-rating)
}
