// Package repo defines the persistence boundary consumed by the domain.
//
// Implementations live under internal/storage. Add, Update and Delete only
// stage changes; nothing becomes visible to other units of work until
// UnitOfWork.SaveChanges succeeds.
package repo

import "context"

// Entity is anything with a stable identity.
type Entity interface {
	EntityID() string
}

// Repository provides lookup and staged mutation of entities of type T.
type Repository[T Entity] interface {
	// GetByID returns *domainerr.NotFoundError when id does not exist.
	GetByID(ctx context.Context, id string) (T, error)
	GetAll(ctx context.Context) ([]T, error)
	Add(ctx context.Context, entity T) error
	Update(ctx context.Context, entity T) error
	Delete(ctx context.Context, entity T) error
}

// UnitOfWork commits every change staged since the last commit.
type UnitOfWork interface {
	// SaveChanges returns the number of persisted changes. On error nothing
	// is persisted and the staged changes are kept until Discard.
	SaveChanges(ctx context.Context) (int, error)
	// Discard drops every staged change.
	Discard()
}
