package services

import (
	"fmt"
	"strings"
)

// RedirectRef identifies something an operator can remove: either a
// persisted scheduled record or an ad-hoc override living in an account.
type RedirectRef interface {
	redirectRef()
	String() string
}

// ScheduledRef points at a scheduled redirect record
type ScheduledRef struct {
	ID string
}

// OverrideRef points at an override slot by sector and expected destination
type OverrideRef struct {
	SectorCode        string
	DestinationUserID string
}

func (ScheduledRef) redirectRef() {}
func (OverrideRef) redirectRef()  {}

func (r ScheduledRef) String() string { return r.ID }

func (r OverrideRef) String() string { return OverrideID(r.SectorCode, r.DestinationUserID) }

// OverrideID builds the composite key used to list and remove ad-hoc overrides
func OverrideID(sectorCode, destinationUserID string) string {
	return sectorCode + ":" + destinationUserID
}

// ParseRedirectRef decodes the legacy "id + scheduled flag" removal form
func ParseRedirectRef(id string, scheduled bool) (RedirectRef, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: redirect id is required", ErrBadRequest)
	}
	if scheduled {
		return ScheduledRef{ID: id}, nil
	}

	// User ids never contain ':', sector codes might
	idx := strings.LastIndex(id, ":")
	if idx <= 0 || idx == len(id)-1 {
		return nil, fmt.Errorf("%w: override id must be sectorCode:destinationUserId, got %q", ErrBadRequest, id)
	}
	return OverrideRef{SectorCode: id[:idx], DestinationUserID: id[idx+1:]}, nil
}
