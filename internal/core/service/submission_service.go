package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/IDiwizerI/seller-bot/internal/core/domain"
	"github.com/IDiwizerI/seller-bot/internal/port"
)

var ErrNoDraft = errors.New("no submission in progress")

var stepRules = map[domain.DraftStep]string{
	domain.StepName:        "required,max=100",
	domain.StepDescription: "required,max=1000",
	domain.StepPrice:       "required,max=50",
	domain.StepContact:     "required,max=100",
}

type SubmissionService struct {
	gate     *EligibilityService
	sessions port.SessionRepository
	store    port.Store
	notifier port.Notifier
	events   port.EventPublisher
	validate *validator.Validate
	skipWord string
	log      *slog.Logger
	now      func() time.Time
}

func NewSubmissionService(gate *EligibilityService, sessions port.SessionRepository, store port.Store,
	notifier port.Notifier, events port.EventPublisher, skipWord string, log *slog.Logger) *SubmissionService {
	return &SubmissionService{
		gate:     gate,
		sessions: sessions,
		store:    store,
		notifier: notifier,
		events:   events,
		validate: validator.New(),
		skipWord: skipWord,
		log:      discardIfNil(log),
		now:      time.Now,
	}
}

type CaptureResult struct {
	// Next is the step now awaited, domain.StepDone once the listing exists.
	Next    domain.DraftStep
	Listing domain.Listing
}

// Start opens a draft of the given kind, replacing any previous one.
func (s *SubmissionService) Start(ctx context.Context, userID int64, kind domain.ListingKind) error {
	if err := s.gate.Check(ctx, userID); err != nil {
		s.abandon(ctx, userID)
		return err
	}
	return s.sessions.SaveDraft(ctx, userID, domain.NewDraft(kind))
}

// Capture feeds one message into the user's draft. The gate is consulted on
// every step; an ineligible user loses the draft.
func (s *SubmissionService) Capture(ctx context.Context, userID int64, in domain.Incoming) (CaptureResult, error) {
	draft, ok, err := s.sessions.GetDraft(ctx, userID)
	if err != nil {
		return CaptureResult{}, fmt.Errorf("load draft: %w", err)
	}
	if !ok {
		return CaptureResult{}, ErrNoDraft
	}

	if err := s.gate.Check(ctx, userID); err != nil {
		s.abandon(ctx, userID)
		return CaptureResult{}, err
	}

	if rule, ok := stepRules[draft.Step]; ok && in.Text != "" {
		if err := s.validate.Var(strings.TrimSpace(in.Text), rule); err != nil {
			return CaptureResult{Next: draft.Step}, fmt.Errorf("%w: %s: %v", domain.ErrValidation, draft.Step, err)
		}
	}

	next, err := draft.Capture(in, s.skipWord)
	if err != nil {
		return CaptureResult{Next: draft.Step}, err
	}
	if next.Done() && next.Photo != "" {
		if n := PhotoCaptionLen(next.Listing(userID)); n > MaxCaptionLen {
			return CaptureResult{Next: draft.Step}, fmt.Errorf(
				"%w: with a photo the post would be %d characters, the limit is %d; send %s to post without the photo or /cancel and shorten the description",
				domain.ErrValidation, n, MaxCaptionLen, s.skipWord)
		}
	}
	if !next.Done() {
		if err := s.sessions.SaveDraft(ctx, userID, next); err != nil {
			return CaptureResult{Next: draft.Step}, fmt.Errorf("save draft: %w", err)
		}
		return CaptureResult{Next: next.Step}, nil
	}

	listing := next.Listing(userID)
	listing.CreatedAt = s.now()
	listing, err = s.store.CreateListing(ctx, listing)
	if err != nil {
		return CaptureResult{Next: draft.Step}, fmt.Errorf("create listing: %w", err)
	}
	s.abandon(ctx, userID)

	s.notifyAdmins(ctx, listing)
	s.events.Publish(ctx, domain.Event{
		Type: domain.EventListingSubmitted, ListingID: listing.ID, ActorID: userID, At: s.now(),
	})

	return CaptureResult{Next: domain.StepDone, Listing: listing}, nil
}

// Abandon drops the user's draft, if any.
func (s *SubmissionService) Abandon(ctx context.Context, userID int64) {
	s.abandon(ctx, userID)
}

func (s *SubmissionService) abandon(ctx context.Context, userID int64) {
	if err := s.sessions.ClearDraft(ctx, userID); err != nil {
		s.log.WarnContext(ctx, "clear draft failed", "user_id", userID, "err", err)
	}
}

func (s *SubmissionService) notifyAdmins(ctx context.Context, l domain.Listing) {
	admins, err := s.store.ListAdmins(ctx)
	if err != nil {
		s.log.ErrorContext(ctx, "list admins failed", "listing_id", l.ID, "err", err)
		return
	}
	card := moderationCard(l)
	effects := make([]effect, 0, len(admins))
	for _, a := range admins {
		effects = append(effects, sendEffect(s.notifier, "notify admin", a.UserID, card))
	}
	runEffects(ctx, s.log, []any{"listing_id", l.ID}, effects...)
}
