package services

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/andre-fig/backoffice/db"
)

// StepError names the step of an activation or deactivation that failed.
// Steps before it have been applied and are safe to re-run.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string { return e.Step + ": " + e.Err.Error() }

func (e *StepError) Unwrap() error { return e.Err }

type effectStep struct {
	name string
	run  func(ctx context.Context) error
}

// runSteps applies steps in order and stops at the first failure.
// Every step must be idempotent, a failed plan is simply retried later.
func runSteps(ctx context.Context, steps []effectStep) error {
	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return &StepError{Step: step.name, Err: err}
		}
		if err := step.run(ctx); err != nil {
			return &StepError{Step: step.name, Err: err}
		}
	}
	return nil
}

// redirectPlan holds everything resolved before any mutation happens
type redirectPlan struct {
	source      *db.DirectoryUser
	destination *db.DirectoryUser
	account     *db.Account
}

// resolveUsers looks both users up in the directory
func (s *RedirectService) resolveUsers(ctx context.Context, plan *redirectPlan, sourceID, destinationID string) error {
	source, err := s.Directory.GetUser(ctx, sourceID)
	if err != nil {
		return fmt.Errorf("source user %s: %w", sourceID, err)
	}
	destination, err := s.Directory.GetUser(ctx, destinationID)
	if err != nil {
		return fmt.Errorf("destination user %s: %w", destinationID, err)
	}
	plan.source = source
	plan.destination = destination
	return nil
}

// resolveAccount finds the account owning the source's primary group and
// checks that the source is provisioned on that account's application
func (s *RedirectService) resolveAccount(ctx context.Context, plan *redirectPlan) error {
	groupID := plan.source.PrimaryGroupID()
	if groupID == "" {
		return fmt.Errorf("%w: user %s has no group", ErrNotFound, plan.source.ID)
	}

	account, err := s.Accounts.FindByAllowedGroup(ctx, groupID)
	if err != nil {
		return err
	}

	ok, err := s.Directory.MatchesApplication(ctx, plan.source.ID, account.AppID)
	if err != nil {
		return fmt.Errorf("failed to check application of user %s: %w", plan.source.ID, err)
	}
	if !ok {
		return fmt.Errorf("%w: user %s is not provisioned on application %s of account %s",
			ErrNotFound, plan.source.ID, account.AppID, account.ID)
	}

	plan.account = account
	return nil
}

// reassignOwnedChats moves every chat of from to to, purging their tags.
// Owning nothing is not an error.
func (s *RedirectService) reassignOwnedChats(ctx context.Context, from, to string) (int64, error) {
	has, err := s.Chats.HasChats(ctx, from)
	if err != nil {
		return 0, err
	}
	if !has {
		s.Logger.Warn("source user owns no chats, skipping reassignment", zap.String("user_id", from))
		return 0, nil
	}

	affected, err := s.Chats.ReassignAll(ctx, from, to)
	if err != nil {
		return 0, err
	}
	s.Logger.Info("chats reassigned",
		zap.String("from", from), zap.String("to", to), zap.Int64("affected", affected))
	return affected, nil
}

// installOverride writes the routing slot. A different existing value is
// replaced, the last writer wins.
func (s *RedirectService) installOverride(ctx context.Context, account *db.Account, sectorCode, destinationUserID string) error {
	if current, ok := account.Override(sectorCode); ok && current != destinationUserID {
		s.Logger.Warn("replacing existing override",
			zap.String("account_id", account.ID),
			zap.String("sector", sectorCode),
			zap.String("previous", current),
			zap.String("destination", destinationUserID))
	}
	if err := s.Accounts.SetOverride(ctx, account.ID, sectorCode, destinationUserID); err != nil {
		return err
	}
	if account.Overrides == nil {
		account.Overrides = map[string]string{}
	}
	account.Overrides[sectorCode] = destinationUserID
	return nil
}

// ActivateDue runs the activation sequence for one scheduled record.
// A record that is no longer SCHEDULED, or not yet due, is left alone.
// Returns whether the record was activated.
func (s *RedirectService) ActivateDue(ctx context.Context, rec db.ScheduledRedirect) (bool, error) {
	current, err := s.Store.Get(ctx, rec.ID)
	if err != nil {
		return false, &StepError{Step: "reload", Err: err}
	}
	if !current.IsDueForActivation(s.now()) {
		return false, nil
	}

	log := s.Logger.With(zap.String("redirect_id", current.ID), zap.String("sector", current.SectorCode))
	plan := &redirectPlan{}

	err = runSteps(ctx, []effectStep{
		{"resolve_users", func(ctx context.Context) error {
			return s.resolveUsers(ctx, plan, current.SourceUserID, current.DestinationUserID)
		}},
		{"resolve_account", func(ctx context.Context) error {
			return s.resolveAccount(ctx, plan)
		}},
		{"reassign_chats", func(ctx context.Context) error {
			_, err := s.reassignOwnedChats(ctx, current.SourceUserID, current.DestinationUserID)
			return err
		}},
		{"install_override", func(ctx context.Context) error {
			return s.installOverride(ctx, plan.account, current.SectorCode, current.DestinationUserID)
		}},
		{"mark_active", func(ctx context.Context) error {
			return s.Store.UpdateStatus(ctx, current.ID, db.RedirectStatusScheduled, db.RedirectStatusActive)
		}},
	})
	if err != nil {
		var stepErr *StepError
		if errors.As(err, &stepErr) && stepErr.Step == "mark_active" && errors.Is(err, ErrConflict) {
			return false, s.settleLostActivation(ctx, current, plan, log, err)
		}
		log.Error("redirect activation failed", zap.Error(err))
		return false, err
	}

	log.Info("redirect activated",
		zap.String("account_id", plan.account.ID),
		zap.String("destination", current.DestinationUserID))
	return true, nil
}

// settleLostActivation handles a record whose status changed while it was
// being activated. A cancellation wins: the override installed for it is
// removed while the slot still points at its destination.
func (s *RedirectService) settleLostActivation(ctx context.Context, rec *db.ScheduledRedirect, plan *redirectPlan, log *zap.Logger, cause error) error {
	latest, err := s.Store.Get(ctx, rec.ID)
	if err != nil {
		return &StepError{Step: "reload", Err: err}
	}

	switch latest.Status {
	case db.RedirectStatusCancelled:
		removed, err := s.Accounts.RemoveOverride(ctx, plan.account.ID, rec.SectorCode, rec.DestinationUserID)
		if err != nil {
			log.Error("failed to undo override of cancelled redirect", zap.Error(err))
			return &StepError{Step: "undo_override", Err: err}
		}
		log.Warn("redirect cancelled during activation, override undone",
			zap.String("account_id", plan.account.ID),
			zap.Bool("removed", removed))
		return nil
	case db.RedirectStatusActive:
		// another cycle activated it first
		log.Info("redirect already activated")
		return nil
	default:
		log.Error("redirect activation failed", zap.Error(cause))
		return cause
	}
}

// DeactivateDue runs the deactivation sequence for one active record whose
// end date has passed. Returns whether the record was completed.
func (s *RedirectService) DeactivateDue(ctx context.Context, rec db.ScheduledRedirect) (bool, error) {
	current, err := s.Store.Get(ctx, rec.ID)
	if err != nil {
		return false, &StepError{Step: "reload", Err: err}
	}
	if !current.IsDueForCompletion(s.now()) {
		return false, nil
	}

	log := s.Logger.With(zap.String("redirect_id", current.ID), zap.String("sector", current.SectorCode))
	plan := &redirectPlan{}

	err = runSteps(ctx, []effectStep{
		{"resolve_source", func(ctx context.Context) error {
			source, err := s.Directory.GetUser(ctx, current.SourceUserID)
			if err != nil {
				return fmt.Errorf("source user %s: %w", current.SourceUserID, err)
			}
			plan.source = source
			return nil
		}},
		{"resolve_account", func(ctx context.Context) error {
			groupID := plan.source.PrimaryGroupID()
			if groupID == "" {
				return fmt.Errorf("%w: user %s has no group", ErrNotFound, plan.source.ID)
			}
			account, err := s.Accounts.FindByAllowedGroup(ctx, groupID)
			if err != nil {
				return err
			}
			plan.account = account
			return nil
		}},
		{"remove_override", func(ctx context.Context) error {
			removed, err := s.Accounts.RemoveOverride(ctx, plan.account.ID, current.SectorCode, current.DestinationUserID)
			if err != nil {
				return err
			}
			if !removed {
				log.Info("override already gone or owned by another redirect", zap.String("account_id", plan.account.ID))
			}
			return nil
		}},
		{"return_chats", func(ctx context.Context) error {
			affected, err := s.Chats.ReassignSector(ctx, current.DestinationUserID, current.SourceUserID, current.SectorCode)
			if err != nil {
				return err
			}
			log.Info("chats returned to source", zap.Int64("affected", affected))
			return nil
		}},
		{"mark_completed", func(ctx context.Context) error {
			return s.Store.UpdateStatus(ctx, current.ID, db.RedirectStatusActive, db.RedirectStatusCompleted)
		}},
	})
	if err != nil {
		log.Error("redirect deactivation failed", zap.Error(err))
		return false, err
	}

	log.Info("redirect completed")
	return true, nil
}
