package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/narvanalabs/travel-buddy/internal/chat"
	"github.com/narvanalabs/travel-buddy/internal/eligibility"
	apperrors "github.com/narvanalabs/travel-buddy/internal/errors"
	"github.com/narvanalabs/travel-buddy/internal/membership"
	"github.com/narvanalabs/travel-buddy/internal/models"
	"github.com/narvanalabs/travel-buddy/internal/planner"
)

func newFlagSet(name string, c *cli) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(c.errOut)
	fs.Usage = func() {
		fmt.Fprintf(c.errOut, "Usage: travelbuddy %s %s\n", name, commands[name].args)
		fs.PrintDefaults()
	}
	return fs
}

func runLogin(ctx context.Context, c *cli, args []string) error {
	fs := newFlagSet("login", c)
	user := fs.String("user", "", "Username or email")
	password := fs.String("password", "", "Password (or set "+passwordEnv+")")
	if err := fs.Parse(args); err != nil {
		return err
	}

	pw := *password
	if pw == "" {
		pw = os.Getenv(passwordEnv)
	}
	if pw == "" && *user != "" {
		var err error
		if pw, err = c.prompt("Password: "); err != nil {
			return err
		}
	}

	s, err := c.app.Login(ctx, *user, pw)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Signed in as %s (id %d)\n", s.User.Username, s.User.ID)
	return nil
}

func runLogout(ctx context.Context, c *cli, _ []string) error {
	if err := c.app.Logout(ctx); err != nil {
		return err
	}
	fmt.Fprintln(c.out, "Signed out")
	return nil
}

func runWhoami(ctx context.Context, c *cli, _ []string) error {
	user, err := c.app.Client().Profile(ctx)
	if err != nil {
		return err
	}
	sub, err := c.app.Client().CheckSubscription(ctx)
	if err != nil {
		return err
	}
	printProfile(c.out, user, sub)
	return nil
}

func runTrips(ctx context.Context, c *cli, args []string) error {
	fs := newFlagSet("trips", c)
	filter := fs.String("filter", string(eligibility.FilterActive), "Which trips to list")
	refresh := fs.Bool("refresh", false, "Ignore the cached list")
	if err := fs.Parse(args); err != nil {
		return err
	}

	f := eligibility.TripFilter(*filter)
	if !f.IsValid() {
		return invalidArg("filter", "unknown filter "+strconv.Quote(*filter))
	}
	if *refresh {
		c.app.Trips.Cache().Invalidate()
	}

	trips, err := c.app.Trips.Trips(ctx, f)
	if err != nil {
		return err
	}
	printTrips(c.out, trips, c.app.Session.UserID())
	return nil
}

func runTrip(ctx context.Context, c *cli, args []string) error {
	if len(args) != 1 {
		return usageError("trip")
	}
	tripID, err := parseID("trip", args[0])
	if err != nil {
		return err
	}

	trip, err := c.app.Trips.Trip(ctx, tripID)
	if err != nil {
		return err
	}
	actions, err := c.app.Trips.Actions(ctx, tripID)
	if err != nil {
		return err
	}
	printTripDetail(c.out, trip, actions)
	return nil
}

// draftFlags binds the trip planning flags shared by check-dates,
// create-trip and compatible.
type draftFlags struct {
	dest        *int64
	start       *string
	end         *string
	activities  *string
	maxMembers  *int
	description *string
}

func bindDraft(fs *flag.FlagSet, full bool) *draftFlags {
	d := &draftFlags{
		dest:  fs.Int64("dest", 0, "Destination id"),
		start: fs.String("start", "", "First day, YYYY-MM-DD"),
		end:   fs.String("end", "", "Last day, YYYY-MM-DD"),
	}
	if full {
		d.activities = fs.String("activities", "", "Comma-separated activity ids")
		d.maxMembers = fs.Int("max", 0, "Maximum number of members besides you")
		d.description = fs.String("description", "", "Trip description")
	}
	return d
}

func (d *draftFlags) draft() (planner.Draft, error) {
	var draft planner.Draft
	draft.DestinationID = *d.dest

	start, err := parseOptionalDate("start", *d.start)
	if err != nil {
		return draft, err
	}
	end, err := parseOptionalDate("end", *d.end)
	if err != nil {
		return draft, err
	}
	draft.StartDate, draft.EndDate = start, end

	if d.activities != nil {
		if draft.Activities, err = parseIDList("activities", *d.activities); err != nil {
			return draft, err
		}
	}
	if d.maxMembers != nil {
		draft.MaxMembers = *d.maxMembers
	}
	if d.description != nil {
		draft.Description = *d.description
	}
	return draft, nil
}

func runCheckDates(ctx context.Context, c *cli, args []string) error {
	fs := newFlagSet("check-dates", c)
	flags := bindDraft(fs, false)
	if err := fs.Parse(args); err != nil {
		return err
	}
	draft, err := flags.draft()
	if err != nil {
		return err
	}

	if err := c.app.Planner.CheckDates(ctx, draft); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "%s to %s is free\n", draft.StartDate, draft.EndDate)
	return nil
}

func runCreateTrip(ctx context.Context, c *cli, args []string) error {
	fs := newFlagSet("create-trip", c)
	flags := bindDraft(fs, true)
	if err := fs.Parse(args); err != nil {
		return err
	}
	draft, err := flags.draft()
	if err != nil {
		return err
	}

	id, err := c.app.Planner.Create(ctx, draft)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Created trip #%d\n", id)
	return nil
}

func runCompatible(ctx context.Context, c *cli, args []string) error {
	fs := newFlagSet("compatible", c)
	flags := bindDraft(fs, false)
	activities := fs.String("activities", "", "Comma-separated activity ids")
	if err := fs.Parse(args); err != nil {
		return err
	}
	draft, err := flags.draft()
	if err != nil {
		return err
	}
	if draft.Activities, err = parseIDList("activities", *activities); err != nil {
		return err
	}

	res, err := c.app.Planner.Compatible(ctx, draft)
	if err != nil {
		return err
	}
	printCompatible(c.out, res)
	return nil
}

func tripArg(name string, args []string) (int64, error) {
	if len(args) != 1 {
		return 0, usageError(name)
	}
	return parseID("trip", args[0])
}

func runJoin(ctx context.Context, c *cli, args []string) error {
	tripID, err := tripArg("join", args)
	if err != nil {
		return err
	}
	return c.report(c.app.Trips.Join(ctx, tripID))
}

func runLeave(ctx context.Context, c *cli, args []string) error {
	tripID, err := tripArg("leave", args)
	if err != nil {
		return err
	}
	return c.report(c.app.Trips.Leave(ctx, tripID))
}

func runCancel(ctx context.Context, c *cli, args []string) error {
	tripID, err := tripArg("cancel", args)
	if err != nil {
		return err
	}
	return c.report(c.app.Trips.Cancel(ctx, tripID))
}

func runRemoveMember(ctx context.Context, c *cli, args []string) error {
	if len(args) != 2 {
		return usageError("remove-member")
	}
	tripID, err := parseID("trip", args[0])
	if err != nil {
		return err
	}
	memberID, err := parseID("member", args[1])
	if err != nil {
		return err
	}
	return c.report(c.app.Trips.RemoveMember(ctx, tripID, memberID))
}

func (c *cli) report(res *membership.Result, err error) error {
	if err != nil {
		return err
	}
	printResult(c.out, res)
	return nil
}

func runReview(ctx context.Context, c *cli, args []string) error {
	if len(args) < 2 {
		return usageError("review")
	}
	tripID, err := parseID("trip", args[0])
	if err != nil {
		return err
	}
	rating, err := strconv.Atoi(args[1])
	if err != nil {
		return invalidArg("rating", "must be a number from 1 to 5")
	}
	comment := strings.Join(args[2:], " ")

	trip, err := c.app.Trips.Trip(ctx, tripID)
	if err != nil {
		return err
	}
	// An existing review is replaced, so the ledger needs to know about it.
	if err := c.app.Reviews.Load(ctx); err != nil {
		return err
	}

	_, existed := c.app.Reviews.Lookup(tripID)
	review, err := c.app.Reviews.Submit(ctx, trip, rating, comment)
	if err != nil {
		return err
	}
	verb := "Rated"
	if existed {
		verb = "Updated your rating of"
	}
	fmt.Fprintf(c.out, "%s %s: %s\n", verb, trip.Name(), stars(review.Rating))
	return nil
}

func runReviews(ctx context.Context, c *cli, _ []string) error {
	if err := c.app.Reviews.Load(ctx); err != nil {
		return err
	}
	printReviews(c.out, c.app.Reviews.Reviews())
	return nil
}

func runNotifications(ctx context.Context, c *cli, args []string) error {
	fs := newFlagSet("notifications", c)
	chatStream := fs.Bool("chat", false, "Use the chat notification stream")
	read := fs.String("read", "", "Comma-separated notification ids to mark read")
	markAll := fs.Bool("mark-all", false, "Mark every notification read")
	clearAll := fs.Bool("clear", false, "Delete every notification")
	if err := fs.Parse(args); err != nil {
		return err
	}

	stream := c.app.Notifications.Trip()
	if *chatStream {
		stream = c.app.Notifications.Chat()
	}
	if _, err := stream.Fetch(ctx); err != nil {
		return err
	}

	switch {
	case *clearAll:
		if err := stream.ClearAll(ctx); err != nil {
			return err
		}
	case *markAll:
		if err := stream.MarkAllRead(ctx); err != nil {
			return err
		}
	case *read != "":
		ids, err := parseIDList("read", *read)
		if err != nil {
			return err
		}
		if err := stream.MarkRead(ctx, ids...); err != nil {
			return err
		}
	}

	printNotifications(c.out, stream.Items(), stream.UnreadCount())
	return nil
}

func runChat(ctx context.Context, c *cli, args []string) error {
	tripID, err := tripArg("chat", args)
	if err != nil {
		return err
	}

	conn, err := c.app.OpenChat(ctx, tripID)
	if err != nil {
		return err
	}
	defer func() { _ = c.app.CloseChat(tripID) }()

	history, err := conn.History(ctx)
	if err != nil {
		return err
	}
	for _, msg := range history {
		printMessage(c.out, msg)
	}

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(c.in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	messages, errs := conn.Messages(), conn.Errors()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-conn.Done():
			if conn.State() == chat.StateFailed {
				return apperrors.Transport(fmt.Errorf("chat connection lost after %d reconnects", conn.Reconnects()))
			}
			return nil
		case msg, ok := <-messages:
			if !ok {
				messages = nil
				continue
			}
			printMessage(c.out, msg)
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			printError(c.errOut, err)
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if strings.TrimSpace(line) == "" {
				continue
			}
			if err := conn.Send(ctx, line); err != nil {
				printError(c.errOut, err)
			}
		}
	}
}

func (c *cli) prompt(label string) (string, error) {
	fmt.Fprint(c.errOut, label)
	sc := bufio.NewScanner(c.in)
	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return "", err
		}
		return "", nil
	}
	return strings.TrimSpace(sc.Text()), nil
}

func parseID(field, s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimPrefix(s, "#"), 10, 64)
	if err != nil || id <= 0 {
		return 0, invalidArg(field, "must be a positive id")
	}
	return id, nil
}

func parseIDList(field, s string) ([]int64, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	ids := make([]int64, 0, len(parts))
	for _, p := range parts {
		id, err := parseID(field, strings.TrimSpace(p))
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func parseOptionalDate(field, s string) (*models.Date, error) {
	if s == "" {
		return nil, nil
	}
	d, err := models.ParseDate(s)
	if err != nil {
		return nil, invalidArg(field, "must be a date like 2026-07-01")
	}
	return &d, nil
}

func invalidArg(field, message string) error {
	var fields apperrors.FieldErrors
	fields.Add(field, message)
	return fields.ToError()
}

func usageError(name string) error {
	return apperrors.New(apperrors.CodeInvalidInput, "usage: travelbuddy "+name+" "+commands[name].args)
}
