package service

import (
	"context"
	"time"

	"lanedesk/internal/allocation/repository"
	"lanedesk/pkg/config"
	apperrors "lanedesk/pkg/errors"
	"lanedesk/pkg/model"
)

// BlockEndSource lists end times of open occupancy blocks still
// ending in the future, soonest first. Any resource kind counts; a
// departing locker frees a lane just like a room does.
type BlockEndSource interface {
	UpcomingEndTimes(ctx context.Context, after time.Time, limit int) ([]time.Time, error)
}

type WaitlistInfo struct {
	Tier     string     `json:"tier"`
	Position int        `json:"position"`
	ETA      *time.Time `json:"eta,omitempty"`
}

type WaitlistEstimator interface {
	ComputeWaitlistInfo(ctx context.Context, tier string) (*WaitlistInfo, error)
}

type waitlistEstimator struct {
	waitlist repository.WaitlistRepository
	blocks   BlockEndSource
	cfg      *config.Config
}

func NewWaitlistEstimator(waitlist repository.WaitlistRepository, blocks BlockEndSource, cfg *config.Config) WaitlistEstimator {
	return &waitlistEstimator{
		waitlist: waitlist,
		blocks:   blocks,
		cfg:      cfg,
	}
}

// ComputeWaitlistInfo reads the database at call time, never caches
// and never mutates. Position is one past the current ACTIVE queue;
// the ETA is the end of the position-th upcoming block plus a
// turnaround buffer, or unknown when fewer blocks are in flight.
func (e *waitlistEstimator) ComputeWaitlistInfo(ctx context.Context, tier string) (*WaitlistInfo, error) {
	if !validTier(tier) {
		return nil, apperrors.InvalidInput("Unknown tier: " + tier)
	}

	count, err := e.waitlist.CountActive(ctx, tier)
	if err != nil {
		return nil, apperrors.Internal("Failed to count waitlist entries", err)
	}
	position := int(count) + 1

	ends, err := e.blocks.UpcomingEndTimes(ctx, time.Now().UTC(), position)
	if err != nil {
		return nil, apperrors.Internal("Failed to read upcoming block end times", err)
	}

	info := &WaitlistInfo{Tier: tier, Position: position}
	if len(ends) >= position {
		eta := ends[position-1].Add(e.cfg.WaitlistETABuffer)
		info.ETA = &eta
	}
	return info, nil
}

func validTier(tier string) bool {
	switch tier {
	case model.TierStandard, model.TierDouble, model.TierSpecial, model.TierLocker:
		return true
	}
	return false
}
