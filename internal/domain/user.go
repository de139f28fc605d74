package domain

type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Session is the persisted identity of the signed-in user.
type Session struct {
	Token string `json:"token"`
	User  *User  `json:"user,omitempty"`
}

func (s Session) Authenticated() bool {
	return s.Token != ""
}
