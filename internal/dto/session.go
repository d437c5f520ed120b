package dto

// CreateSessionRequest resolves an email into a session.
type CreateSessionRequest struct {
	Email string `json:"email" form:"email" validate:"required,email,max=320"`
}

// RequestMeta carries client details recorded in audit logs.
type RequestMeta struct {
	IP        string
	UserAgent string
}
