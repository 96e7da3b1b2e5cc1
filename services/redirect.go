package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/andre-fig/backoffice/db"
)

// RedirectService moves conversation ownership between agents, either
// immediately or over a scheduled window, and keeps scheduled records
// consistent with the account routing overrides.
type RedirectService struct {
	Store     RedirectStore
	Accounts  AccountStore
	Chats     ConversationStore
	Directory Directory
	Logger    *zap.Logger

	// Now is the clock, replaced in tests
	Now func() time.Time
}

func NewRedirectService(store RedirectStore, accounts AccountStore, chats ConversationStore, directory Directory, logger *zap.Logger) *RedirectService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedirectService{
		Store:     store,
		Accounts:  accounts,
		Chats:     chats,
		Directory: directory,
		Logger:    logger,
		Now:       time.Now,
	}
}

func (s *RedirectService) now() time.Time {
	if s.Now == nil {
		return time.Now().UTC()
	}
	return s.Now().UTC()
}

// RedirectImmediately hands the source's chats to the destination and routes
// the source's primary sector to the destination from now on
func (s *RedirectService) RedirectImmediately(ctx context.Context, req db.ImmediateRedirectRequest) (*db.RedirectOutcome, error) {
	plan := &redirectPlan{}
	if err := s.resolveUsers(ctx, plan, req.SourceUserID, req.DestinationUserID); err != nil {
		return nil, err
	}

	sectorCode := plan.source.PrimarySectorCode()
	if sectorCode == "" || plan.source.PrimaryGroupID() == "" {
		return nil, fmt.Errorf("%w: user %s has no valid sectors or groups", ErrNotFound, plan.source.ID)
	}

	// Validate the account before touching any conversation
	if err := s.resolveAccount(ctx, plan); err != nil {
		return nil, err
	}

	affected, err := s.reassignOwnedChats(ctx, plan.source.ID, plan.destination.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to reassign chats: %w", err)
	}

	if err := s.installOverride(ctx, plan.account, sectorCode, plan.destination.ID); err != nil {
		return nil, fmt.Errorf("failed to install override: %w", err)
	}

	s.Logger.Info("immediate redirect applied",
		zap.String("source", plan.source.ID),
		zap.String("destination", plan.destination.ID),
		zap.String("account_id", plan.account.ID),
		zap.String("sector", sectorCode))

	return &db.RedirectOutcome{
		Message:           fmt.Sprintf("Chats of %s redirected to %s", plan.source.ID, plan.destination.ID),
		AccountID:         plan.account.ID,
		SectorCode:        sectorCode,
		ReassignedChats:   affected,
		SourceUserID:      plan.source.ID,
		DestinationUserID: plan.destination.ID,
	}, nil
}

// CreateScheduledRedirect validates and persists a redirect in SCHEDULED.
// Nothing is routed until the reconciliation loop activates it.
func (s *RedirectService) CreateScheduledRedirect(ctx context.Context, req db.CreateScheduledRedirectRequest) (*db.ScheduledRedirect, error) {
	sectorCode := strings.TrimSpace(req.SectorCode)
	if req.SourceUserID == "" || req.DestinationUserID == "" || sectorCode == "" {
		return nil, fmt.Errorf("%w: sourceUserId, destinationUserId and sectorCode are required", ErrBadRequest)
	}
	if req.SourceUserID == req.DestinationUserID {
		return nil, fmt.Errorf("%w: source and destination must differ", ErrBadRequest)
	}

	plan := &redirectPlan{}
	if err := s.resolveUsers(ctx, plan, req.SourceUserID, req.DestinationUserID); err != nil {
		return nil, err
	}

	start := req.StartDate.UTC()
	if start.Before(s.now()) {
		return nil, fmt.Errorf("%w: startDate must not be in the past", ErrBadRequest)
	}
	var end *time.Time
	if req.EndDate != nil {
		e := req.EndDate.UTC()
		if !e.After(start) {
			return nil, fmt.Errorf("%w: endDate must be after startDate", ErrBadRequest)
		}
		end = &e
	}

	overlapping, err := s.Store.FindOverlapping(ctx, req.SourceUserID, sectorCode, start, end)
	if err != nil {
		return nil, err
	}
	if len(overlapping) > 0 {
		return nil, fmt.Errorf("%w: redirect %s already covers sector %s for user %s",
			ErrConflict, overlapping[0].ID, sectorCode, req.SourceUserID)
	}

	rec := &db.ScheduledRedirect{
		SourceUserID:      req.SourceUserID,
		DestinationUserID: req.DestinationUserID,
		SectorCode:        sectorCode,
		StartDate:         start,
		EndDate:           end,
		Status:            db.RedirectStatusScheduled,
	}
	if err := s.Store.Create(ctx, rec); err != nil {
		return nil, err
	}

	s.Logger.Info("redirect scheduled",
		zap.String("redirect_id", rec.ID),
		zap.String("sector", rec.SectorCode),
		zap.Time("start_date", rec.StartDate))
	return rec, nil
}

// GetScheduledRedirect returns a single record
func (s *RedirectService) GetScheduledRedirect(ctx context.Context, id string) (*db.ScheduledRedirect, error) {
	return s.Store.Get(ctx, id)
}

// CancelScheduledRedirect cancels a SCHEDULED record. An ACTIVE record is
// ended now instead, since ACTIVE -> CANCELLED is not a legal transition.
// Cancelling a cancelled record is a no-op.
func (s *RedirectService) CancelScheduledRedirect(ctx context.Context, id string) (*db.ScheduledRedirect, error) {
	rec, err := s.Store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	switch rec.Status {
	case db.RedirectStatusCancelled:
		return rec, nil
	case db.RedirectStatusCompleted:
		return nil, fmt.Errorf("%w: redirect %s is already completed", ErrConflict, id)
	case db.RedirectStatusScheduled:
		if err := s.Store.UpdateStatus(ctx, id, db.RedirectStatusScheduled, db.RedirectStatusCancelled); err != nil {
			return nil, err
		}
		s.Logger.Info("redirect cancelled", zap.String("redirect_id", id))
	case db.RedirectStatusActive:
		if err := s.Store.UpdateEndDate(ctx, id, s.now()); err != nil {
			return nil, err
		}
		// A failure here leaves the record ACTIVE with a past end date, the
		// next reconciliation cycle completes it
		if _, err := s.DeactivateDue(ctx, *rec); err != nil {
			return nil, fmt.Errorf("failed to end active redirect: %w", err)
		}
	}

	return s.Store.Get(ctx, id)
}

// RemoveActiveOverride deletes an ad-hoc override and hands the sector's chats
// back to another member of the sector
func (s *RedirectService) RemoveActiveOverride(ctx context.Context, sectorCode, destinationUserID string) error {
	account, err := s.Accounts.FindByOverride(ctx, sectorCode, destinationUserID)
	if err != nil {
		return err
	}

	removed, err := s.Accounts.RemoveOverride(ctx, account.ID, sectorCode, destinationUserID)
	if err != nil {
		return err
	}
	if !removed {
		return fmt.Errorf("%w: override %s changed concurrently", ErrNotFound, OverrideID(sectorCode, destinationUserID))
	}

	log := s.Logger.With(zap.String("account_id", account.ID), zap.String("sector", sectorCode))
	log.Info("override removed", zap.String("destination", destinationUserID))

	owner, err := s.Directory.FindUserBySector(ctx, sectorCode, destinationUserID)
	if err != nil {
		log.Warn("no fallback owner for sector, chats stay with destination", zap.Error(err))
		return nil
	}
	affected, err := s.Chats.ReassignSector(ctx, destinationUserID, owner.ID, sectorCode)
	if err != nil {
		log.Warn("failed to return chats after override removal", zap.String("owner", owner.ID), zap.Error(err))
		return nil
	}
	log.Info("chats returned to sector owner", zap.String("owner", owner.ID), zap.Int64("affected", affected))
	return nil
}

// RemoveRedirect dispatches a removal to the right mechanism
func (s *RedirectService) RemoveRedirect(ctx context.Context, ref RedirectRef) error {
	switch r := ref.(type) {
	case ScheduledRef:
		_, err := s.CancelScheduledRedirect(ctx, r.ID)
		return err
	case OverrideRef:
		return s.RemoveActiveOverride(ctx, r.SectorCode, r.DestinationUserID)
	default:
		return fmt.Errorf("%w: unknown redirect reference %v", ErrBadRequest, ref)
	}
}

// UpdateEndDate moves the end of a live record's window
func (s *RedirectService) UpdateEndDate(ctx context.Context, id string, endDate time.Time) (*db.ScheduledRedirect, error) {
	rec, err := s.Store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.Status.IsTerminal() {
		return nil, fmt.Errorf("%w: redirect %s is %s", ErrConflict, id, rec.Status)
	}

	end := endDate.UTC()
	if !end.After(rec.StartDate) {
		return nil, fmt.Errorf("%w: endDate must be after startDate", ErrBadRequest)
	}
	if err := s.Store.UpdateEndDate(ctx, id, end); err != nil {
		return nil, err
	}

	rec.EndDate = &end
	s.Logger.Info("redirect end date updated", zap.String("redirect_id", id), zap.Time("end_date", end))
	return rec, nil
}

// ListRedirects returns live overrides from every account followed by
// scheduled and active records. Name lookups are best effort.
func (s *RedirectService) ListRedirects(ctx context.Context) ([]db.RedirectSummary, error) {
	accounts, err := s.Accounts.List(ctx)
	if err != nil {
		return nil, err
	}
	records, err := s.Store.ListByStatus(ctx, db.RedirectStatusScheduled, db.RedirectStatusActive)
	if err != nil {
		return nil, err
	}

	names := newUserNameCache(s.Directory)
	out := make([]db.RedirectSummary, 0, len(records))

	for _, account := range accounts {
		sectors := make([]string, 0, len(account.Overrides))
		for sector := range account.Overrides {
			sectors = append(sectors, sector)
		}
		sort.Strings(sectors)

		for _, sector := range sectors {
			dest := account.Overrides[sector]
			out = append(out, db.RedirectSummary{
				ID:                  OverrideID(sector, dest),
				Kind:                db.RedirectKindOverride,
				Status:              "active",
				AccountID:           account.ID,
				SectorCode:          sector,
				SectorName:          sector,
				DestinationUserID:   dest,
				DestinationUserName: names.name(ctx, dest),
			})
		}
	}

	for i := range records {
		rec := records[i]
		status := rec.Status
		sectorName := rec.SectorCode
		if source := names.user(ctx, rec.SourceUserID); source != nil {
			if name, ok := source.SectorName(rec.SectorCode); ok && name != "" {
				sectorName = name
			}
		}
		start := rec.StartDate
		out = append(out, db.RedirectSummary{
			ID:                  rec.ID,
			Kind:                db.RedirectKindScheduled,
			Status:              "scheduled",
			RecordStatus:        &status,
			SectorCode:          rec.SectorCode,
			SectorName:          sectorName,
			SourceUserID:        rec.SourceUserID,
			SourceUserName:      names.name(ctx, rec.SourceUserID),
			DestinationUserID:   rec.DestinationUserID,
			DestinationUserName: names.name(ctx, rec.DestinationUserID),
			StartDate:           &start,
			EndDate:             rec.EndDate,
		})
	}

	return out, nil
}

// ListUserSectors returns the sectors a user belongs to
func (s *RedirectService) ListUserSectors(ctx context.Context, userID string) ([]db.Sector, error) {
	user, err := s.Directory.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	sectors := make([]db.Sector, 0, len(user.Structs.Sectors))
	for _, sector := range user.Structs.Sectors {
		sectors = append(sectors, db.Sector{Code: sector.Code, Name: sector.Name})
	}
	return sectors, nil
}

// ListDirectoryUsers is a pass-through used by the operator user pickers
func (s *RedirectService) ListDirectoryUsers(ctx context.Context, q db.DirectoryUserQuery) (*db.DirectoryUserPage, error) {
	return s.Directory.ListUsers(ctx, q)
}

// userNameCache memoizes lookups for the duration of one listing
type userNameCache struct {
	dir   Directory
	users map[string]*db.DirectoryUser
}

func newUserNameCache(dir Directory) *userNameCache {
	return &userNameCache{dir: dir, users: map[string]*db.DirectoryUser{}}
}

func (c *userNameCache) user(ctx context.Context, id string) *db.DirectoryUser {
	if id == "" {
		return nil
	}
	if u, ok := c.users[id]; ok {
		return u
	}
	u, err := c.dir.GetUser(ctx, id)
	if err != nil && !errors.Is(err, ErrNotFound) {
		// Transient failures are not memoized
		return nil
	}
	c.users[id] = u
	return u
}

func (c *userNameCache) name(ctx context.Context, id string) string {
	if u := c.user(ctx, id); u != nil && u.Name != "" {
		return u.Name
	}
	return id
}
