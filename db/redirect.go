package db

import "time"

// RedirectStatus is the lifecycle state of a scheduled redirect
type RedirectStatus string

const (
	RedirectStatusScheduled RedirectStatus = "scheduled"
	RedirectStatusActive    RedirectStatus = "active"
	RedirectStatusCompleted RedirectStatus = "completed"
	RedirectStatusCancelled RedirectStatus = "cancelled"
)

// IsTerminal reports whether no further transition is possible from s
func (s RedirectStatus) IsTerminal() bool {
	return s == RedirectStatusCompleted || s == RedirectStatusCancelled
}

// ScheduledRedirect is a durable intent to move a sector's conversations
// from one agent to another for a time window.
// JSON names follow the admin UI contract (camelCase).
type ScheduledRedirect struct {
	ID                string         `json:"id"`
	SourceUserID      string         `json:"sourceUserId"`
	DestinationUserID string         `json:"destinationUserId"`
	SectorCode        string         `json:"sectorCode"`
	StartDate         time.Time      `json:"startDate"`
	EndDate           *time.Time     `json:"endDate"` // nil = open-ended
	Status            RedirectStatus `json:"status"`
	CreatedAt         time.Time      `json:"createdAt"`
	UpdatedAt         time.Time      `json:"updatedAt"`
}

// IsDueForActivation reports whether a scheduled record should be activated at now
func (r *ScheduledRedirect) IsDueForActivation(now time.Time) bool {
	return r.Status == RedirectStatusScheduled && !r.StartDate.After(now)
}

// IsDueForCompletion reports whether an active record's window has ended at now.
// Open-ended records are never due.
func (r *ScheduledRedirect) IsDueForCompletion(now time.Time) bool {
	return r.Status == RedirectStatusActive && r.EndDate != nil && !r.EndDate.After(now)
}

// ImmediateRedirectRequest represents the request body for an immediate redirect
type ImmediateRedirectRequest struct {
	SourceUserID      string `json:"sourceUserId" binding:"required"`
	DestinationUserID string `json:"destinationUserId" binding:"required"`
}

// RedirectOutcome is returned by an immediate redirect
type RedirectOutcome struct {
	Message           string `json:"message"`
	AccountID         string `json:"accountId"`
	SectorCode        string `json:"sectorCode"`
	ReassignedChats   int64  `json:"reassignedChats"`
	SourceUserID      string `json:"sourceUserId"`
	DestinationUserID string `json:"destinationUserId"`
}

// CreateScheduledRedirectRequest represents the request body for scheduling a redirect
type CreateScheduledRedirectRequest struct {
	SourceUserID      string     `json:"sourceUserId" binding:"required"`
	DestinationUserID string     `json:"destinationUserId" binding:"required"`
	SectorCode        string     `json:"sectorCode" binding:"required"`
	StartDate         time.Time  `json:"startDate" binding:"required"`
	EndDate           *time.Time `json:"endDate"`
}

// UpdateRedirectEndDateRequest represents the request body for changing an end date
type UpdateRedirectEndDateRequest struct {
	EndDate time.Time `json:"endDate" binding:"required"`
}

// Summary kinds
const (
	RedirectKindOverride  = "override"
	RedirectKindScheduled = "scheduled"
)

// RedirectSummary is the normalized listing shape for both ad-hoc overrides
// and scheduled records
type RedirectSummary struct {
	ID                  string          `json:"id"`
	Kind                string          `json:"kind"`
	Status              string          `json:"status"` // "active" for overrides, "scheduled" for records
	RecordStatus        *RedirectStatus `json:"recordStatus,omitempty"`
	AccountID           string          `json:"accountId,omitempty"`
	SectorCode          string          `json:"sectorCode"`
	SectorName          string          `json:"sectorName"`
	SourceUserID        string          `json:"sourceUserId"`
	SourceUserName      string          `json:"sourceUserName"`
	DestinationUserID   string          `json:"destinationUserId"`
	DestinationUserName string          `json:"destinationUserName"`
	StartDate           *time.Time      `json:"startDate"`
	EndDate             *time.Time      `json:"endDate"`
}
