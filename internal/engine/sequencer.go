package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/datallboy/hlsget/internal/domain"
	"github.com/datallboy/hlsget/internal/infra/config"
	"github.com/datallboy/hlsget/internal/infra/logger"
)

// errInvariant marks a result stream that breaks the one-result-per-index contract.
var errInvariant = errors.New("result stream invariant violated")

// Sequencer turns the unordered result stream of a Run into ordered sink calls.
type Sequencer struct {
	policy string
	state  *domain.PipelineState
	cancel context.CancelCauseFunc
	logger *logger.Logger
}

// NewSequencer builds a sequencer. cancel must stop the context the Run was
// started with; it is called with the failure that ended the run.
func NewSequencer(policy string, state *domain.PipelineState, cancel context.CancelCauseFunc, l *logger.Logger) *Sequencer {
	if policy == "" {
		policy = config.PolicyFailFast
	}
	return &Sequencer{policy: policy, state: state, cancel: cancel, logger: l}
}

// Consume drains run until its result channel closes, handing successes to
// sink in ascending index order. It returns an *domain.AbortedError when the
// run was given up; under the partial policy failed indices are skipped and
// listed in the summary instead.
func (q *Sequencer) Consume(ctx context.Context, run *Run, sink Sink) (Summary, error) {
	var sum Summary

	total := run.Total()
	seen := make([]bool, total)
	pending := make(map[int]domain.SegmentResult)
	cursor := 0

	var abortErr error
	abort := func(err error) {
		if abortErr == nil {
			abortErr = err
			q.state.Cancel()
			q.cancel(err)
		}
	}

	for res := range run.Results() {
		if res.Index < 0 || res.Index >= total {
			abort(fmt.Errorf("%w: index %d outside [0, %d)", errInvariant, res.Index, total))
			continue
		}
		if seen[res.Index] {
			abort(fmt.Errorf("%w: duplicate result for index %d", errInvariant, res.Index))
			continue
		}
		seen[res.Index] = true

		switch res.Outcome {
		case domain.OutcomeSuccess:
			q.state.Completed.Add(1)
			q.state.BytesWritten.Add(uint64(res.BytesWritten))
			q.logger.Debug("Segment %d completed: %d bytes in %d attempt(s)", res.Index, res.BytesWritten, res.Attempts)

		case domain.OutcomeFailure:
			q.state.Failed.Add(1)
			sum.Failed = append(sum.Failed, domain.SegmentFailure{
				Index:    res.Index,
				Attempts: res.Attempts,
				Reason:   errString(res.Err),
			})
			q.logger.Error("[FAIL] Segment %d permanently failed: %v", res.Index, res.Err)

			if q.policy == config.PolicyFailFast || run.Segment(res.Index).Init {
				abort(failureCause(res))
			}

		case domain.OutcomeCancelled:
			abort(cancelCause(ctx, res))
		}

		if abortErr != nil {
			run.Release()
			continue
		}

		pending[res.Index] = res

		for {
			next, ok := pending[cursor]
			if !ok {
				break
			}
			delete(pending, cursor)

			if next.Outcome == domain.OutcomeSuccess {
				if err := sink.Accept(next); err != nil {
					abort(fmt.Errorf("%w: append segment %d: %w", domain.ErrIO, next.Index, err))
				} else {
					sum.Emitted++
					sum.Bytes += uint64(next.BytesWritten)
				}
			}

			run.Release()
			cursor++

			if abortErr != nil {
				break
			}
		}
	}

	sort.Slice(sum.Failed, func(i, j int) bool { return sum.Failed[i].Index < sum.Failed[j].Index })

	if abortErr == nil && cursor != total {
		abortErr = fmt.Errorf("%w: stream closed at index %d of %d", errInvariant, cursor, total)
	}
	if abortErr != nil {
		return sum, &domain.AbortedError{Cause: abortErr, Failed: sum.Failed}
	}

	return sum, nil
}

func failureCause(res domain.SegmentResult) error {
	if res.Err != nil {
		return res.Err
	}
	return fmt.Errorf("%w: segment %d failed", domain.ErrFetch, res.Index)
}

func cancelCause(ctx context.Context, res domain.SegmentResult) error {
	if res.Err != nil && errors.Is(res.Err, domain.ErrCancelled) {
		return res.Err
	}
	return fmt.Errorf("%w: %w", domain.ErrCancelled, context.Cause(ctx))
}

func errString(err error) string {
	if err == nil {
		return "unknown error"
	}
	return err.Error()
}
