package auth

// Identity is the request-scoped authorization context produced by the
// identity middleware. Handlers read these flags instead of inspecting the
// session directly.
type Identity struct {
	UserID  string `json:"user_id"`
	Email   string `json:"email"`
	IsAuth  bool   `json:"is_auth"`
	IsAdmin bool   `json:"is_admin"`
}
