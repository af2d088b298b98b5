package auth

import (
	"context"

	"github.com/google/uuid"
)

// Role names understood by the claims pipeline.
const (
	RolePatient      = "patient"
	RolePractitioner = "practitioner"
	RoleBilling      = "billing"
	RoleAdmin        = "admin"
)

// Identity is the authenticated caller as supplied by the identity
// collaborator: who they are, their role, and the patient/provider rows
// their role scopes them to.
type Identity struct {
	UserID     string
	Role       string
	PatientID  *uuid.UUID
	ProviderID *uuid.UUID
}

// IsZero reports whether no identity was established.
func (id Identity) IsZero() bool { return id.UserID == "" }

type contextKey string

const identityKey contextKey = "identity"

// WithIdentity returns a context carrying the identity.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// FromContext extracts the identity established by the middleware.
// The zero Identity means the request was not authenticated.
func FromContext(ctx context.Context) Identity {
	id, _ := ctx.Value(identityKey).(Identity)
	return id
}
