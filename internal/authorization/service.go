package authorization

import "context"

// Service decides whether a roster role may perform action on object.
type Service interface {
	Authorize(ctx context.Context, role string, object string, action string) error
}
