package models

// User is the signed-in user's identity as returned by the login endpoint.
type User struct {
	ID             int64  `json:"id"`
	Username       string `json:"username"`
	Email          string `json:"email,omitempty"`
	FirstName      string `json:"first_name,omitempty"`
	LastName       string `json:"last_name,omitempty"`
	ProfilePicture string `json:"profile_picture,omitempty"`
	IsStaff        bool   `json:"is_staff,omitempty"`
}

// Tokens is the access/refresh token pair issued at login.
type Tokens struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// Subscription describes the user's premium plan.
type Subscription struct {
	HasSubscription bool   `json:"has_subscription"`
	Plan            string `json:"plan,omitempty"`
	EndDate         Date   `json:"end_date,omitempty"`
	DaysRemaining   int    `json:"days_remaining,omitempty"`
}
