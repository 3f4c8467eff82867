package transport

type SignInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type SignUpRequest struct {
	Email    string            `json:"email"`
	Password string            `json:"password"`
	Metadata map[string]string `json:"metadata"`
}

type ResetPasswordRequest struct {
	Email string `json:"email"`
}

type ResendRequest struct {
	Type  string `json:"type"`
	Email string `json:"email"`
}
