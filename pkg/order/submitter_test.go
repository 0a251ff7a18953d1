package order

import (
	"context"
	"errors"
	"testing"

	"github.com/MLOpsArtisan/TradePulse-ver1.2/pkg/core"
	"github.com/stretchr/testify/require"
)

// scriptedBroker answers each request through respond and keeps them all
type scriptedBroker struct {
	requests []core.OrderRequest
	respond  func(core.OrderRequest) (core.RetCode, error)
}

func (b *scriptedBroker) SubmitOrder(_ context.Context, request core.OrderRequest) (core.OrderResult, error) {
	b.requests = append(b.requests, request)
	code, err := b.respond(request)
	if err != nil {
		return core.OrderResult{}, err
	}
	return core.OrderResult{Code: code, Ticket: int64(len(b.requests)), Price: request.Price, Volume: request.Volume}, nil
}

var withStops = Submission{Symbol: "ETHUSD", Side: core.SideBuy, Volume: 0.1, Price: 2000, StopLoss: 1990, TakeProfit: 2020}

func TestSubmitterRetriesWithoutStops(t *testing.T) {
	broker := &scriptedBroker{respond: func(r core.OrderRequest) (core.RetCode, error) {
		if r.HasStops() {
			return core.RetInvalidStops, nil
		}
		return core.RetDone, nil
	}}

	result := NewSubmitter(broker, WithTag(77, "TradePulse_bot-with-a-very-long-identifier")).Submit(context.Background(), withStops)

	require.Equal(t, StatusFilled, result.Status)
	require.NoError(t, result.Err())
	require.Len(t, result.Attempts, 2)
	require.True(t, result.Attempts[0].WithStops)
	require.False(t, result.Attempts[1].WithStops)
	require.Equal(t, core.FillReturn, result.Attempts[1].FillMode)
	require.Equal(t, int64(2), result.Order.Ticket)

	require.Equal(t, int64(77), broker.requests[0].Magic)
	require.Len(t, broker.requests[0].Comment, 31)
	require.Equal(t, DefaultDeviation, broker.requests[0].Deviation)
	require.Zero(t, broker.requests[1].StopLoss)
}

func TestSubmitterWalksFillModes(t *testing.T) {
	broker := &scriptedBroker{respond: func(r core.OrderRequest) (core.RetCode, error) {
		if r.FillMode != core.FillFOK {
			return core.RetInvalidFill, nil
		}
		return core.RetDone, nil
	}}
	submitter := NewSubmitter(broker)

	result := submitter.Submit(context.Background(), withStops)
	require.Equal(t, StatusFilled, result.Status)
	require.Len(t, result.Attempts, 3)
	require.True(t, result.Request.HasStops())

	// the accepted fill mode is tried first next time
	result = submitter.Submit(context.Background(), withStops)
	require.Len(t, result.Attempts, 1)
	require.Equal(t, core.FillFOK, result.Attempts[0].FillMode)
}

func TestSubmitterAbandonsOnFatalCode(t *testing.T) {
	broker := &scriptedBroker{respond: func(core.OrderRequest) (core.RetCode, error) {
		return core.RetNoMoney, nil
	}}

	result := NewSubmitter(broker).Submit(context.Background(), withStops)
	require.Equal(t, StatusAbandoned, result.Status)
	require.Len(t, result.Attempts, 1)
	require.ErrorIs(t, result.Err(), ErrSubmissionAbandoned)
}

func TestSubmitterExhaustsCombinations(t *testing.T) {
	broker := &scriptedBroker{respond: func(r core.OrderRequest) (core.RetCode, error) {
		if r.FillMode == core.FillIOC {
			return 0, errors.New("connection reset")
		}
		return core.RetRequote, nil
	}}

	result := NewSubmitter(broker).Submit(context.Background(), withStops)
	require.Equal(t, StatusFailed, result.Status)
	require.Len(t, result.Attempts, 6)
	require.Equal(t, core.RetRequote, result.LastCode)
	require.ErrorIs(t, result.Err(), ErrSubmissionFailed)
	require.Error(t, result.Attempts[1].Err)
}

func TestSubmitterWithoutRequestedStops(t *testing.T) {
	broker := &scriptedBroker{respond: func(core.OrderRequest) (core.RetCode, error) {
		return core.RetInvalidStops, nil
	}}

	sub := withStops
	sub.StopLoss, sub.TakeProfit = 0, 0
	result := NewSubmitter(broker).Submit(context.Background(), sub)
	require.Equal(t, StatusFailed, result.Status)
	require.Len(t, result.Attempts, 3)
}

func TestClassify(t *testing.T) {
	tests := map[core.RetCode]Outcome{
		core.RetDone:             OutcomeSuccess,
		core.RetPlaced:           OutcomeSuccess,
		core.RetInvalidStops:     OutcomeRetryWithoutStops,
		core.RetInvalidFill:      OutcomeNextFillMode,
		core.RetMarketClosed:     OutcomeFatal,
		core.RetClientDisablesAT: OutcomeFatal,
		core.RetRequote:          OutcomeTransient,
		core.RetTooManyRequests:  OutcomeTransient,
		core.RetCode(1):          OutcomeTransient,
	}
	for code, outcome := range tests {
		require.Equal(t, outcome, Classify(code), code.String())
	}
}
