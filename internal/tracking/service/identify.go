package service

import (
	"context"
	"errors"
	"strings"

	"leadintent_backend/internal/events"
	"leadintent_backend/internal/scoring"
	"leadintent_backend/internal/tracking/repository"
	"leadintent_backend/internal/tracking/transport"
	"leadintent_backend/platform/apperr"
	"leadintent_backend/platform/phone"
	"leadintent_backend/platform/sanitize"

	"github.com/google/uuid"
)

// Identify ties an anonymous visitor to an identity and merges the anonymous
// score history into it. Merges are additive snapshots: the anonymous rollup
// is kept (marked merged) rather than deleted, and a second merge attempt for
// the same anonymous id is refused instead of double-adding. The band
// re-evaluation uses the identity's pre-merge emitted band as history, so an
// identity that already alerted at "hot" stays quiet unless the merged total
// pushes it higher.
func (s *Service) Identify(ctx context.Context, req transport.IdentifyRequest) (transport.IdentifyResponse, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" {
		return transport.IdentifyResponse{}, apperr.Validation("email is required")
	}

	var phoneNumber *string
	if req.Phone != nil && *req.Phone != "" {
		normalized := phone.NormalizeE164(*req.Phone)
		phoneNumber = &normalized
	}

	identity, created, err := s.store.UpsertIdentity(ctx, email, sanitize.TextPtr(req.Name), phoneNumber, req.Source)
	if err != nil {
		return transport.IdentifyResponse{}, apperr.Wrap(apperr.KindInternal, "failed to upsert identity", err)
	}
	if created {
		s.logger.Info("identity created", "identityId", identity.ID.String())
	}

	// Refuse a repeat merge: the anonymous aggregate was already added once.
	anonRollup, exists, err := s.store.GetRollup(ctx, req.AnonymousID)
	if err != nil {
		return transport.IdentifyResponse{}, apperr.Wrap(apperr.KindInternal, "failed to read anonymous rollup", err)
	}
	if exists && anonRollup.MergedInto != nil {
		identRollup, _, err := s.store.GetRollup(ctx, identity.ID)
		if err != nil {
			return transport.IdentifyResponse{}, apperr.Wrap(apperr.KindInternal, "failed to read identity rollup", err)
		}
		return transport.IdentifyResponse{
			IdentityID:             identity.ID,
			Merged:                 false,
			PreviousAnonymousScore: anonRollup.TotalScore,
			PreviousIdentityScore:  identRollup.TotalScore,
			TotalIdentityScore:     identRollup.TotalScore,
			Band:                   string(scoring.BandFromScore(identRollup.TotalScore)),
		}, nil
	}

	merge, err := s.store.MergeAnonymous(ctx, req.AnonymousID, identity.ID, s.now())
	if err != nil {
		return transport.IdentifyResponse{}, apperr.Wrap(apperr.KindInternal, "identity merge failed", err)
	}

	band := scoring.BandFromScore(merge.TotalIdentityScore)
	var prev *scoring.Band
	if merge.PreMergeEmittedBand != nil {
		b := scoring.Band(*merge.PreMergeEmittedBand)
		prev = &b
	}

	emitted := false
	if scoring.ShouldEmit(prev, band) {
		signal := repository.IntentSignal{
			ID:        uuid.New(),
			SubjectID: identity.ID,
			LeadID:    &identity.ID,
			Band:      string(band),
			Score7d:   merge.Score7d,
			Score30d:  merge.Score30d,
			Payload: map[string]any{
				"trigger":      "identity_merge",
				"anonymous_id": req.AnonymousID.String(),
			},
		}
		switch err := s.store.EmitSignal(ctx, signal); {
		case err == nil:
			emitted = true
			s.logger.SignalEmitted(identity.ID.String(), string(band), merge.Score7d, merge.Score30d)
		case errors.Is(err, repository.ErrSignalSuperseded):
			// A concurrent ingest for this identity beat the merge to it.
		default:
			s.logger.ScoringError("emit_signal", identity.ID.String(), err)
		}
	}

	s.bus.Publish(ctx, events.IdentityMerged{
		BaseEvent:        events.NewBaseEvent(),
		AnonymousID:      req.AnonymousID,
		LeadID:           identity.ID,
		TotalScore:       merge.TotalIdentityScore,
		Band:             string(band),
		ThresholdEmitted: emitted,
	})

	s.logger.Info("anonymous identity merged",
		"anonymousId", req.AnonymousID.String(),
		"identityId", identity.ID.String(),
		"repointedEvents", merge.RepointedEvents,
		"totalScore", merge.TotalIdentityScore)

	return transport.IdentifyResponse{
		IdentityID:             identity.ID,
		Merged:                 true,
		PreviousAnonymousScore: merge.PrevAnonymousScore,
		PreviousIdentityScore:  merge.PrevIdentityScore,
		TotalIdentityScore:     merge.TotalIdentityScore,
		Band:                   string(band),
		ThresholdEmitted:       emitted,
	}, nil
}
