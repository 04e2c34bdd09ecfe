package models

// User is the identity attached to a session by the auth provider.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Session is a bearer credential pair plus the identity it belongs to.
type Session struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	User         User   `json:"user"`
}
