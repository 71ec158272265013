package sessions

import (
	"context"
	"errors"
	"strings"
)

// Roles carried by identity tokens.
const (
	RoleDoctor  = "doctor"
	RolePatient = "patient"
)

// ErrNoSubject is returned when verified claims carry no subject.
var ErrNoSubject = errors.New("token has no subject")

// Session is the acting identity of one request. It is built once from
// verified token claims and passed explicitly into every boundary call.
type Session struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
	Email  string `json:"email,omitempty"`
	// Token is the raw bearer token, kept so it can be revoked.
	Token string `json:"-"`
}

// IsDoctor reports whether the session acts for clinic staff.
func (s *Session) IsDoctor() bool { return s != nil && s.Role == RoleDoctor }

// FromClaims builds a Session from verified claims. The role comes from the
// top-level "app_role" claim, falling back to user_metadata.role.
func FromClaims(claims map[string]interface{}) (*Session, error) {
	sub, _ := claims["sub"].(string)
	if strings.TrimSpace(sub) == "" {
		return nil, ErrNoSubject
	}
	s := &Session{UserID: sub}
	s.Email, _ = claims["email"].(string)
	if role, ok := claims["app_role"].(string); ok && role != "" {
		s.Role = role
	} else if md, ok := claims["user_metadata"].(map[string]interface{}); ok {
		s.Role, _ = md["role"].(string)
	}
	s.Role = strings.ToLower(strings.TrimSpace(s.Role))
	return s, nil
}

type ctxKey struct{}

// WithSession returns a child context carrying s.
func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

// FromContext returns the session stored by WithSession, or nil.
func FromContext(ctx context.Context) *Session {
	s, _ := ctx.Value(ctxKey{}).(*Session)
	return s
}
