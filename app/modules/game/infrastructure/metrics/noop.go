package gamemetrics

import (
	"context"
	"time"
)

type noop struct{}

// NewNoop returns metrics that discard everything.
func NewNoop() GameMetrics { return noop{} }

func (noop) RecordOperationAttempt(context.Context, string, string)                 {}
func (noop) RecordOperationSuccess(context.Context, string, string)                 {}
func (noop) RecordOperationFailure(context.Context, string, string)                 {}
func (noop) RecordOperationDuration(context.Context, string, string, time.Duration) {}
func (noop) RecordGameCreated(context.Context, bool)                                {}
func (noop) RecordRoundStarted(context.Context, int)                                {}
func (noop) RecordGuessPoints(context.Context, string, int)                         {}
func (noop) RecordGameEnded(context.Context)                                        {}
func (noop) RecordFeedEvent(context.Context, string, string)                        {}
