package services

import (
	"context"
	"time"

	"github.com/andre-fig/backoffice/db"
)

// RedirectStore persists the lifecycle of scheduled redirects.
// Records are never deleted, status is the only removal signal.
type RedirectStore interface {
	Create(ctx context.Context, r *db.ScheduledRedirect) error
	Get(ctx context.Context, id string) (*db.ScheduledRedirect, error)
	ListByStatus(ctx context.Context, statuses ...db.RedirectStatus) ([]db.ScheduledRedirect, error)
	ListDueForActivation(ctx context.Context, now time.Time) ([]db.ScheduledRedirect, error)

	// FindOverlapping returns live records for the same source and sector whose
	// window intersects [start, end). A nil end means open-ended.
	FindOverlapping(ctx context.Context, sourceUserID, sectorCode string, start time.Time, end *time.Time) ([]db.ScheduledRedirect, error)

	// UpdateStatus moves a record from one status to another. It fails with
	// ErrConflict when the stored status is no longer from.
	UpdateStatus(ctx context.Context, id string, from, to db.RedirectStatus) error
	UpdateEndDate(ctx context.Context, id string, endDate time.Time) error
}

// AccountStore reads and mutates the routing table embedded in account configuration
type AccountStore interface {
	FindByAllowedGroup(ctx context.Context, groupID string) (*db.Account, error)
	FindByOverride(ctx context.Context, sectorCode, destinationUserID string) (*db.Account, error)
	List(ctx context.Context) ([]db.Account, error)

	// SetOverride installs sector -> destination, replacing any previous value
	SetOverride(ctx context.Context, accountID, sectorCode, destinationUserID string) error

	// RemoveOverride deletes the sector slot only while it still points at
	// expectedDestination and reports whether anything was removed
	RemoveOverride(ctx context.Context, accountID, sectorCode, expectedDestination string) (bool, error)
}

// ConversationStore holds conversation ownership and conversation-scoped tags
type ConversationStore interface {
	HasChats(ctx context.Context, userID string) (bool, error)

	// ReassignAll drops the tags of every chat owned by from and moves them to to
	ReassignAll(ctx context.Context, from, to string) (int64, error)

	// ReassignSector is ReassignAll restricted to chats whose subject is sectorCode
	ReassignSector(ctx context.Context, from, to, sectorCode string) (int64, error)
}

// Directory resolves users, their groups and sectors
type Directory interface {
	GetUser(ctx context.Context, userID string) (*db.DirectoryUser, error)
	ListUsers(ctx context.Context, q db.DirectoryUserQuery) (*db.DirectoryUserPage, error)
	MatchesApplication(ctx context.Context, userID, appID string) (bool, error)

	// FindUserBySector returns the first user, other than exclude, whose
	// sector memberships include sectorCode
	FindUserBySector(ctx context.Context, sectorCode, exclude string) (*db.DirectoryUser, error)
}
