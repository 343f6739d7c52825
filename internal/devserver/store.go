package devserver

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"

	"github.com/narvanalabs/travel-buddy/internal/eligibility"
	"github.com/narvanalabs/travel-buddy/internal/models"
	"github.com/narvanalabs/travel-buddy/web/api"
)

// httpError is a rejection rendered the way the real backend renders it:
// either {"error": message} or a map of field errors.
type httpError struct {
	status  int
	message string
	fields  map[string][]string
}

func (e *httpError) Error() string {
	if e.message != "" {
		return e.message
	}
	return fmt.Sprintf("invalid fields: %v", e.fields)
}

func badRequest(format string, args ...any) *httpError {
	return &httpError{status: http.StatusBadRequest, message: fmt.Sprintf(format, args...)}
}

func forbidden(message string) *httpError {
	return &httpError{status: http.StatusForbidden, message: message}
}

func notFound(message string) *httpError {
	return &httpError{status: http.StatusNotFound, message: message}
}

func fieldError(field, message string) *httpError {
	return &httpError{status: http.StatusBadRequest, fields: map[string][]string{field: {message}}}
}

// Destination is a place trips can be planned to.
type Destination struct {
	ID       int64
	Name     string
	Location string
}

type userRecord struct {
	models.User
	passwordHash   []byte
	subscription   models.Subscription
	accessVersion  int
	refreshVersion int
}

type tripRecord struct {
	trip       *models.Trip
	activities []int64
}

type tripNotification struct {
	userID  int64
	payload api.TripNotificationPayload
}

type chatNotification struct {
	userID  int64
	payload api.ChatNotificationPayload
}

// Store is the dev server's in-memory state. All methods are safe for concurrent use.
type Store struct {
	mu  sync.Mutex
	now func() time.Time

	users        map[int64]*userRecord
	destinations map[int64]*Destination
	trips        map[int64]*tripRecord
	reviews      map[[2]int64]*models.Review
	tripNotes    []*tripNotification
	chatNotes    []*chatNotification
	messages     map[int64][]*models.ChatMessage
	nextID       int64
}

// NewStore creates an empty store.
func NewStore(now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{
		now:          now,
		users:        make(map[int64]*userRecord),
		destinations: make(map[int64]*Destination),
		trips:        make(map[int64]*tripRecord),
		reviews:      make(map[[2]int64]*models.Review),
		messages:     make(map[int64][]*models.ChatMessage),
		nextID:       100,
	}
}

// Counts reports how many users and trips the store holds.
func (s *Store) Counts() (users, trips int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.users), len(s.trips)
}

func (s *Store) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *Store) today() models.Date {
	return models.DateOf(s.now())
}

// AddUser registers a user with a bcrypt-hashed password.
func (s *Store) AddUser(u models.User, password string) (int64, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		return 0, fmt.Errorf("hashing password: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if u.ID == 0 {
		u.ID = s.id()
	}
	s.users[u.ID] = &userRecord{User: u, passwordHash: hash}
	return u.ID, nil
}

// SetSubscription grants or revokes a premium plan.
func (s *Store) SetSubscription(userID int64, plan string, days int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return
	}
	if plan == "" {
		u.subscription = models.Subscription{}
		return
	}
	u.subscription = models.Subscription{
		HasSubscription: true,
		Plan:            plan,
		EndDate:         s.today().AddDays(days),
		DaysRemaining:   days,
	}
}

// AddDestination registers a destination.
func (s *Store) AddDestination(d Destination) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d.ID == 0 {
		d.ID = s.id()
	}
	c := d
	s.destinations[d.ID] = &c
	return d.ID
}

// AddTrip inserts a trip without any of the creation rules. Used for seeding.
func (s *Store) AddTrip(t *models.Trip, activities []int64) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := t.Clone()
	if c.ID == 0 {
		c.ID = s.id()
	}
	if c.Status == "" {
		c.Status = models.TripStatusUpcoming
	}
	s.trips[c.ID] = &tripRecord{trip: c, activities: activities}
	return c.ID
}

// Authenticate checks credentials by username or email.
func (s *Store) Authenticate(usernameOrEmail, password string) (*models.User, error) {
	s.mu.Lock()
	var match *userRecord
	for _, u := range s.users {
		if strings.EqualFold(u.Username, usernameOrEmail) || strings.EqualFold(u.Email, usernameOrEmail) {
			match = u
			break
		}
	}
	s.mu.Unlock()

	if match == nil {
		return nil, errors.New("unknown user")
	}
	if err := bcrypt.CompareHashAndPassword(match.passwordHash, []byte(password)); err != nil {
		return nil, errors.New("invalid password")
	}
	u := match.User
	return &u, nil
}

// TokenVersions returns the current access and refresh token versions of a user.
func (s *Store) TokenVersions(userID int64) (access, refresh int, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, found := s.users[userID]
	if !found {
		return 0, 0, false
	}
	return u.accessVersion, u.refreshVersion, true
}

// InvalidateAccessTokens makes every issued access token of a user fail
// validation. Refresh tokens keep working.
func (s *Store) InvalidateAccessTokens(userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[userID]; ok {
		u.accessVersion++
	}
}

// RevokeSessions invalidates every access and refresh token of a user.
func (s *Store) RevokeSessions(userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[userID]; ok {
		u.accessVersion++
		u.refreshVersion++
	}
}

// User returns a user's profile.
func (s *Store) User(userID int64) (*models.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return nil, false
	}
	c := u.User
	return &c, true
}

// Subscription returns a user's plan.
func (s *Store) Subscription(userID int64) models.Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[userID]; ok {
		return u.subscription
	}
	return models.Subscription{}
}

// view renders a trip the way the API returns it. Callers hold s.mu.
func (s *Store) view(rec *tripRecord) *models.Trip {
	t := rec.trip.Clone()
	t.Status = eligibility.EffectiveStatus(t, s.today())

	if creator, ok := s.users[t.CreatorID]; ok {
		t.Creator = &models.UserRef{ID: creator.ID, Username: creator.Username, ProfilePicture: creator.ProfilePicture}
	}
	for i, m := range t.Members {
		if u, ok := s.users[m.ID]; ok {
			t.Members[i] = models.UserRef{ID: u.ID, Username: u.Username, ProfilePicture: u.ProfilePicture}
		}
	}
	if d, ok := s.destinations[t.Destination.ID]; ok {
		t.Destination = models.DestinationRef{ID: d.ID, Name: d.Name, Location: d.Location}
		t.DestinationName = d.Name
		t.DestinationLocation = d.Location
	}
	return t
}

// MyTrips lists trips the user created or joined, soonest first.
func (s *Store) MyTrips(userID int64) []*models.Trip {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []*models.Trip{}
	for _, rec := range s.trips {
		if rec.trip.IsParticipant(userID) {
			out = append(out, s.view(rec))
		}
	}
	sortTrips(out)
	return out
}

// Trip returns one trip.
func (s *Store) Trip(tripID int64) (*models.Trip, *httpError) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.trips[tripID]
	if !ok {
		return nil, notFound("Trip not found")
	}
	return s.view(rec), nil
}

func sortTrips(trips []*models.Trip) {
	sort.Slice(trips, func(i, j int) bool {
		if !trips[i].StartDate.Equal(trips[j].StartDate) {
			return trips[i].StartDate.Before(trips[j].StartDate)
		}
		return trips[i].ID < trips[j].ID
	})
}

// overlapping returns a non-cancelled trip of userID overlapping the range,
// ignoring skipID. Callers hold s.mu.
func (s *Store) overlapping(userID int64, start, end models.Date, skipID int64) *models.Trip {
	probe := &models.Trip{StartDate: start, EndDate: end}
	for _, rec := range s.trips {
		t := rec.trip
		if t.ID == skipID || t.IsCancelled() || !t.IsParticipant(userID) {
			continue
		}
		if t.Overlaps(probe) {
			return t
		}
	}
	return nil
}

// HasConflict reports whether the range overlaps one of the user's trips.
func (s *Store) HasConflict(userID int64, start, end models.Date) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.overlapping(userID, start, end, 0) != nil
}

// SaveTrip creates a trip owned by userID.
func (s *Store) SaveTrip(userID int64, plan api.TripPlan) (int64, *httpError) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.destinations[plan.DestinationID]; !ok {
		return 0, fieldError("destinationId", "Invalid destination")
	}
	if plan.StartDate.IsZero() || plan.EndDate.IsZero() {
		return 0, badRequest("Start date and end date are required")
	}
	if plan.StartDate.Before(s.today().AddDays(eligibility.CreationLeadDays)) {
		return 0, badRequest("Trip must start at least 5 days from today")
	}
	if plan.EndDate.Before(plan.StartDate) {
		return 0, fieldError("endDate", "End date must be after start date")
	}
	if plan.MaxMembers < 1 {
		return 0, fieldError("maxMembers", "Ensure this value is greater than or equal to 1.")
	}
	if s.overlapping(userID, plan.StartDate, plan.EndDate, 0) != nil {
		return 0, badRequest("You already have a trip during these dates")
	}

	t := &models.Trip{
		ID:          s.id(),
		CreatorID:   userID,
		Destination: models.DestinationRef{ID: plan.DestinationID},
		StartDate:   plan.StartDate,
		EndDate:     plan.EndDate,
		MaxMembers:  plan.MaxMembers,
		Members:     []models.UserRef{},
		Description: plan.Description,
		Status:      models.TripStatusUpcoming,
	}
	s.trips[t.ID] = &tripRecord{trip: t, activities: append([]int64(nil), plan.Activities...)}
	return t.ID, nil
}

// CompatibleTrips finds other users' joinable trips to the same destination
// overlapping the plan's dates, scored by shared activities and date overlap.
func (s *Store) CompatibleTrips(userID int64, plan api.TripPlan) []*models.Trip {
	s.mu.Lock()
	defer s.mu.Unlock()

	probe := &models.Trip{StartDate: plan.StartDate, EndDate: plan.EndDate}
	today := s.today()
	out := []*models.Trip{}
	for _, rec := range s.trips {
		t := rec.trip
		if t.Destination.ID != plan.DestinationID || t.IsParticipant(userID) || t.IsFull() {
			continue
		}
		if eligibility.EffectiveStatus(t, today) != models.TripStatusUpcoming || !t.Overlaps(probe) {
			continue
		}
		v := s.view(rec)
		v.CompatibilityScore = compatibility(rec, plan)
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func compatibility(rec *tripRecord, plan api.TripPlan) float64 {
	shared, union := 0, map[int64]struct{}{}
	want := map[int64]struct{}{}
	for _, a := range plan.Activities {
		want[a] = struct{}{}
		union[a] = struct{}{}
	}
	for _, a := range rec.activities {
		if _, ok := want[a]; ok {
			shared++
		}
		union[a] = struct{}{}
	}
	activityScore := 0.0
	if len(union) > 0 {
		activityScore = float64(shared) / float64(len(union))
	}

	start, end := plan.StartDate, plan.EndDate
	if rec.trip.StartDate.After(start) {
		start = rec.trip.StartDate
	}
	if rec.trip.EndDate.Before(end) {
		end = rec.trip.EndDate
	}
	overlapDays := end.DaysSince(start) + 1
	planDays := plan.EndDate.DaysSince(plan.StartDate) + 1
	dateScore := 0.0
	if planDays > 0 && overlapDays > 0 {
		dateScore = float64(overlapDays) / float64(planDays)
	}

	return float64(int((activityScore*60+dateScore*40)*10)) / 10
}

// Join adds userID to a trip.
func (s *Store) Join(userID, tripID int64) *httpError {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.trips[tripID]
	if !ok {
		return notFound("Trip not found")
	}
	t := rec.trip
	switch {
	case t.IsCancelled():
		return badRequest("This trip has already been cancelled")
	case t.IsParticipant(userID):
		return badRequest("You are already a member of this trip")
	case t.IsFull():
		return badRequest("This trip is full")
	case eligibility.EffectiveStatus(t, s.today()) != models.TripStatusUpcoming:
		return badRequest("This trip has already started")
	}
	if other := s.overlapping(userID, t.StartDate, t.EndDate, t.ID); other != nil {
		return badRequest("You already have a trip during these dates")
	}

	t.Members = append(t.Members, models.UserRef{ID: userID})
	s.notifyTrip(t.CreatorID, t, models.NotificationNewMember, userID, "")
	s.notifyTrip(userID, t, models.NotificationTripJoined, 0, "")
	return nil
}

// Leave removes userID from a trip they joined.
func (s *Store) Leave(userID, tripID int64) *httpError {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.trips[tripID]
	if !ok {
		return notFound("Trip not found")
	}
	t := rec.trip
	switch {
	case t.IsCancelled():
		return badRequest("This trip has already been cancelled")
	case t.IsCreator(userID):
		return forbidden("Trip creator cannot leave the trip, cancel it instead")
	case !t.IsMember(userID):
		return badRequest("You are not a member of this trip")
	case !eligibility.CanModifyTrip(t, s.now()):
		return badRequest("You can only leave a trip up to 3 days before it starts")
	}

	t.RemoveMember(userID)
	s.notifyTrip(t.CreatorID, t, models.NotificationTripLeft, userID, "")
	return nil
}

// Cancel cancels a trip created by userID and notifies every member.
func (s *Store) Cancel(userID, tripID int64) *httpError {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.trips[tripID]
	if !ok {
		return notFound("Trip not found")
	}
	t := rec.trip
	switch {
	case !t.IsCreator(userID):
		return forbidden("Only the creator can cancel this trip")
	case t.IsCancelled():
		return badRequest("Trip is already cancelled")
	case !eligibility.CanModifyTrip(t, s.now()):
		return badRequest("Trips can only be cancelled up to 3 days before departure")
	}

	t.Status = models.TripStatusCancelled
	info := &models.CancellationInfo{IsCreator: true, CancelledAt: s.now()}
	if u, ok := s.users[userID]; ok {
		info.Username = u.Username
	}
	t.CancelledByInfo = info
	for _, m := range t.Members {
		s.notifyTrip(m.ID, t, models.NotificationTripCancelled, userID, "")
	}
	return nil
}

// RemoveMember removes memberID from a trip created by userID.
func (s *Store) RemoveMember(userID, tripID, memberID int64) *httpError {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.trips[tripID]
	if !ok {
		return notFound("Trip not found")
	}
	t := rec.trip
	switch {
	case !t.IsCreator(userID):
		return forbidden("Only the creator can remove members")
	case t.IsCancelled():
		return badRequest("This trip has already been cancelled")
	case !t.IsMember(memberID):
		return badRequest("User is not a member of this trip")
	case !eligibility.CanModifyTrip(t, s.now()):
		return badRequest("Members can only be removed up to 3 days before departure")
	}

	t.RemoveMember(memberID)
	s.notifyTrip(memberID, t, models.NotificationMemberRemoved, userID, "")
	return nil
}

// Reviews lists the reviews written by userID.
func (s *Store) Reviews(userID int64) []*models.Review {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []*models.Review{}
	for key, r := range s.reviews {
		if key[1] == userID {
			c := *r
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// SubmitReview creates or replaces userID's review of a completed trip.
// It reports whether a new review was created.
func (s *Store) SubmitReview(userID int64, req api.ReviewRequest) (*models.Review, bool, *httpError) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.trips[req.TripID]
	if !ok {
		return nil, false, fieldError("trip", "Invalid trip")
	}
	t := rec.trip
	if !t.IsParticipant(userID) {
		return nil, false, forbidden("Only trip members can review this trip")
	}
	if !eligibility.CanReview(t, s.today()) {
		return nil, false, badRequest("Reviews can only be submitted for completed trips")
	}
	if !models.ValidRating(req.Rating) {
		return nil, false, fieldError("rating", "Rating must be between 1 and 5")
	}
	if utf8.RuneCountInString(req.Comment) > models.MaxCommentLength {
		return nil, false, fieldError("comment", "Ensure this field has no more than 250 characters.")
	}

	key := [2]int64{req.TripID, userID}
	r, exists := s.reviews[key]
	if !exists {
		r = &models.Review{ID: s.id(), TripID: req.TripID, UserID: userID, CreatedAt: s.now()}
		s.reviews[key] = r
	}
	r.Rating = req.Rating
	r.Comment = req.Comment
	c := *r
	return &c, !exists, nil
}

// notifyTrip appends a trip-stream notification. Callers hold s.mu.
func (s *Store) notifyTrip(userID int64, t *models.Trip, typ models.NotificationType, relatedID int64, message string) {
	if userID == 0 {
		return
	}
	p := api.TripNotificationPayload{
		ID:               s.id(),
		NotificationType: string(typ),
		Trip:             t.ID,
		TripName:         s.tripName(t),
		Message:          message,
		CreatedAt:        s.now(),
	}
	if u, ok := s.users[relatedID]; ok {
		p.RelatedUserName = u.Username
		p.RelatedUserPicture = u.ProfilePicture
	}
	p.FormattedDate = p.CreatedAt.Format("Jan 2, 2006 15:04")
	s.tripNotes = append(s.tripNotes, &tripNotification{userID: userID, payload: p})
}

// Notify appends an arbitrary trip-stream notification, such as a review reminder.
func (s *Store) Notify(userID, tripID int64, typ string, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.trips[tripID]
	if !ok {
		return
	}
	p := api.TripNotificationPayload{
		ID:               s.id(),
		NotificationType: typ,
		Trip:             tripID,
		TripName:         s.tripName(rec.trip),
		Message:          message,
		CreatedAt:        s.now(),
	}
	s.tripNotes = append(s.tripNotes, &tripNotification{userID: userID, payload: p})
}

func (s *Store) tripName(t *models.Trip) string {
	if d, ok := s.destinations[t.Destination.ID]; ok {
		return d.Name
	}
	return t.Name()
}

// TripNotifications lists userID's trip notifications, newest first.
func (s *Store) TripNotifications(userID int64) []api.TripNotificationPayload {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []api.TripNotificationPayload{}
	for i := len(s.tripNotes) - 1; i >= 0; i-- {
		if n := s.tripNotes[i]; n.userID == userID {
			out = append(out, n.payload)
		}
	}
	return out
}

// ChatNotifications lists userID's chat notifications, newest first.
func (s *Store) ChatNotifications(userID int64) []api.ChatNotificationPayload {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []api.ChatNotificationPayload{}
	for i := len(s.chatNotes) - 1; i >= 0; i-- {
		if n := s.chatNotes[i]; n.userID == userID {
			out = append(out, n.payload)
		}
	}
	return out
}

// UpdateNotifications marks ids read, or deletes everything when clearAll is set.
func (s *Store) UpdateNotifications(userID int64, stream models.NotificationStream, update api.NotificationUpdate) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make(map[int64]struct{}, len(update.NotificationIDs))
	for _, id := range update.NotificationIDs {
		ids[id] = struct{}{}
	}

	switch stream {
	case models.StreamTrip:
		kept := s.tripNotes[:0]
		for _, n := range s.tripNotes {
			if n.userID == userID {
				if update.ClearAll {
					continue
				}
				if _, ok := ids[n.payload.ID]; ok {
					n.payload.IsRead = true
				}
			}
			kept = append(kept, n)
		}
		s.tripNotes = kept
	case models.StreamChat:
		kept := s.chatNotes[:0]
		for _, n := range s.chatNotes {
			if n.userID == userID {
				if update.ClearAll {
					continue
				}
				if _, ok := ids[n.payload.ID]; ok {
					n.payload.IsRead = true
				}
			}
			kept = append(kept, n)
		}
		s.chatNotes = kept
	}
}

// UnreadCount counts userID's unread notifications in a stream.
func (s *Store) UnreadCount(userID int64, stream models.NotificationStream) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	switch stream {
	case models.StreamTrip:
		for _, note := range s.tripNotes {
			if note.userID == userID && !note.payload.IsRead {
				n++
			}
		}
	case models.StreamChat:
		for _, note := range s.chatNotes {
			if note.userID == userID && !note.payload.IsRead {
				n++
			}
		}
	}
	return n
}

// CanChat reports whether userID takes part in the trip.
func (s *Store) CanChat(userID, tripID int64) *httpError {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.trips[tripID]
	if !ok {
		return notFound("Trip not found")
	}
	if !rec.trip.IsParticipant(userID) {
		return forbidden("Only trip members can access the chat")
	}
	return nil
}

// ChatHistory returns a trip's messages, oldest first.
func (s *Store) ChatHistory(tripID int64) []*models.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.ChatMessage, len(s.messages[tripID]))
	for i, m := range s.messages[tripID] {
		c := *m
		out[i] = &c
	}
	return out
}

// PostMessage stores a chat message and notifies the other participants.
func (s *Store) PostMessage(userID, tripID int64, text string) (*models.ChatMessage, *httpError) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fieldError("message", "This field may not be blank.")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.trips[tripID]
	if !ok {
		return nil, notFound("Trip not found")
	}
	if !rec.trip.IsParticipant(userID) {
		return nil, forbidden("Only trip members can access the chat")
	}

	now := s.now()
	msg := &models.ChatMessage{
		MessageID:          s.id(),
		TripID:             tripID,
		Message:            text,
		SenderID:           userID,
		Timestamp:          now,
		FormattedTimestamp: now.Format("15:04"),
	}
	sender := s.users[userID]
	if sender != nil {
		msg.SenderUsername = sender.Username
		msg.SenderProfilePicture = sender.ProfilePicture
	}
	s.messages[tripID] = append(s.messages[tripID], msg)

	preview := text
	if utf8.RuneCountInString(preview) > 50 {
		preview = string([]rune(preview)[:50]) + "..."
	}
	recipients := []int64{rec.trip.CreatorID}
	for _, m := range rec.trip.Members {
		recipients = append(recipients, m.ID)
	}
	for _, id := range recipients {
		if id == userID {
			continue
		}
		p := api.ChatNotificationPayload{
			ID:             s.id(),
			Trip:           tripID,
			TripName:       s.tripName(rec.trip),
			ChatMessage:    msg.MessageID,
			Sender:         userID,
			MessagePreview: preview,
			CreatedAt:      now,
		}
		if sender != nil {
			p.SenderName = sender.Username
			p.SenderPicture = sender.ProfilePicture
		}
		s.chatNotes = append(s.chatNotes, &chatNotification{userID: id, payload: p})
	}

	c := *msg
	return &c, nil
}
