package swap

import (
	"context"
	"fmt"
	"time"

	"github.com/ggonzalez94/bungee-cli/internal/bungee"
	clierr "github.com/ggonzalez94/bungee-cli/internal/errors"
)

type PollOptions struct {
	// ShortInterval applies to the first ShortAttempts queries so fast
	// settlements are detected promptly; LongInterval applies afterwards to
	// keep the aggregate call rate under the backend's rate limit.
	ShortInterval time.Duration
	LongInterval  time.Duration
	ShortAttempts int
	MaxAttempts   int

	// sleep is swapped out by tests.
	sleep func(ctx context.Context, d time.Duration) error
}

func DefaultPollOptions() PollOptions {
	return PollOptions{
		ShortInterval: 3 * time.Second,
		LongInterval:  15 * time.Second,
		ShortAttempts: 10,
		MaxAttempts:   50,
	}
}

func (o *PollOptions) normalize() {
	if o.ShortInterval <= 0 {
		o.ShortInterval = 3 * time.Second
	}
	if o.LongInterval <= 0 {
		o.LongInterval = o.ShortInterval
	}
	if o.ShortAttempts <= 0 {
		o.ShortAttempts = 10
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 50
	}
	if o.sleep == nil {
		o.sleep = sleepCtx
	}
}

type StatusFunc func(ctx context.Context, settlementID string) (bungee.StatusResult, error)

type SettlementStatus struct {
	Code              int
	Name              string
	OriginTxHash      string
	DestinationTxHash string
	Attempts          int
}

// PollSettlement queries settlement status until a terminal code or the
// attempt ceiling. Terminal failure codes map to distinct error kinds so
// callers can react differently (a refund needs no follow-up, an expiry
// might be retried with a fresh quote). Status codes are monotonic per
// settlement id; once terminal, no further queries happen.
func PollSettlement(ctx context.Context, statusFn StatusFunc, settlementID string, opts PollOptions) (SettlementStatus, error) {
	opts.normalize()

	for attempt := 1; attempt <= opts.MaxAttempts; attempt++ {
		result, err := statusFn(ctx, settlementID)
		if err != nil {
			return SettlementStatus{}, err
		}

		status := SettlementStatus{
			Code:              result.Code,
			Name:              bungee.StatusName(result.Code),
			OriginTxHash:      result.OriginTxHash,
			DestinationTxHash: result.DestinationTxHash,
			Attempts:          attempt,
		}

		switch result.Code {
		case bungee.StatusCompleted, bungee.StatusCompletedPartial:
			return status, nil
		case bungee.StatusExpired:
			return status, clierr.New(clierr.CodeSettlementExpired, fmt.Sprintf("settlement %s expired before execution", settlementID))
		case bungee.StatusCancelled:
			return status, clierr.New(clierr.CodeSettlementCancelled, fmt.Sprintf("settlement %s was cancelled", settlementID))
		case bungee.StatusRefunded:
			return status, clierr.New(clierr.CodeSettlementRefunded, fmt.Sprintf("settlement %s was refunded; funds returned to the wallet", settlementID))
		}

		if attempt == opts.MaxAttempts {
			break
		}
		interval := opts.ShortInterval
		if attempt >= opts.ShortAttempts {
			interval = opts.LongInterval
		}
		if err := opts.sleep(ctx, interval); err != nil {
			return SettlementStatus{}, clierr.Wrap(clierr.CodeInternal, "polling interrupted", err)
		}
	}

	// The swap may still settle remotely after we stop watching, so the
	// timeout carries the id and a tracking reference instead of dropping it.
	return SettlementStatus{}, clierr.New(clierr.CodePollTimeout,
		fmt.Sprintf("no terminal status after %d attempts; track settlement %s at %s", opts.MaxAttempts, settlementID, bungee.TrackingURL(settlementID)))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
