// Package access is the seam to the invite/delegation collaborator. The
// delegation system itself (token lifecycle, physician grants) lives outside
// this service; the pipeline only ever asks "may this actor read/write this
// patient's scope".
package access

import (
	"context"

	"github.com/google/uuid"
)

type Authorizer interface {
	Authorize(ctx context.Context, actorID, patientUserID uuid.UUID) (bool, error)
}

// OwnerOnly permits a patient to act on their own record and nothing else.
// Deployments with delegation swap in an implementation backed by the grant
// store.
type OwnerOnly struct{}

func (OwnerOnly) Authorize(ctx context.Context, actorID, patientUserID uuid.UUID) (bool, error) {
	return actorID == patientUserID, nil
}

// AuthorizerFunc adapts a function to the Authorizer interface.
type AuthorizerFunc func(ctx context.Context, actorID, patientUserID uuid.UUID) (bool, error)

func (f AuthorizerFunc) Authorize(ctx context.Context, actorID, patientUserID uuid.UUID) (bool, error) {
	return f(ctx, actorID, patientUserID)
}
