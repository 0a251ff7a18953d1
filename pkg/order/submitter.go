package order

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/MLOpsArtisan/TradePulse-ver1.2/pkg/core"
	"github.com/MLOpsArtisan/TradePulse-ver1.2/pkg/logger"
)

const (
	// DefaultDeviation is the slippage accepted when none is configured
	DefaultDeviation   = 20
	maxCommentLength   = 31
	defaultCallTimeout = 10 * time.Second
)

// Errors wrapped by Result.Err
var (
	ErrSubmissionFailed    = errors.New("order submission failed")
	ErrSubmissionAbandoned = errors.New("order submission abandoned")
)

// OrderBroker is the part of the broker the submitter needs
type OrderBroker interface {
	SubmitOrder(ctx context.Context, request core.OrderRequest) (core.OrderResult, error)
}

// Status is the final state of a submission
type Status string

const (
	StatusFilled    Status = "filled"
	StatusFailed    Status = "failed"
	StatusAbandoned Status = "abandoned"
)

// Submission is a market order to place, with optional absolute stop prices
type Submission struct {
	Symbol     string
	Side       core.Side
	Volume     float64
	Price      float64
	StopLoss   float64
	TakeProfit float64
}

// Attempt records one combination sent to the broker
type Attempt struct {
	FillMode  core.FillMode
	WithStops bool
	Code      core.RetCode
	Outcome   Outcome
	Err       error
}

func (a Attempt) String() string {
	stops := "without stops"
	if a.WithStops {
		stops = "with stops"
	}
	if a.Err != nil {
		return fmt.Sprintf("%s %s: %v", a.FillMode, stops, a.Err)
	}
	return fmt.Sprintf("%s %s: %s", a.FillMode, stops, a.Code)
}

// Result is the outcome of Submitter.Submit
type Result struct {
	Status   Status
	Order    core.OrderResult
	Request  core.OrderRequest
	LastCode core.RetCode
	Attempts []Attempt
}

// Err returns nil for a filled submission
func (r Result) Err() error {
	switch r.Status {
	case StatusFilled:
		return nil
	case StatusAbandoned:
		return fmt.Errorf("%w: %s", ErrSubmissionAbandoned, r.LastCode)
	default:
		return fmt.Errorf("%w after %d attempts: %s", ErrSubmissionFailed, len(r.Attempts), r.LastCode)
	}
}

// Submitter places orders by walking stop and fill mode combinations until
// the broker accepts one.
type Submitter struct {
	broker      OrderBroker
	log         logger.Logger
	fillModes   []core.FillMode
	deviation   int
	magic       int64
	comment     string
	callTimeout time.Duration

	mu        sync.Mutex
	preferred core.FillMode
}

// SubmitterOption configures a Submitter
type SubmitterOption func(*Submitter)

// WithTag tags every order with the correlation tag and comment
func WithTag(magic int64, comment string) SubmitterOption {
	return func(s *Submitter) {
		s.magic = magic
		s.comment = TruncateComment(comment)
	}
}

// WithFillModes sets the fill modes tried, in order
func WithFillModes(modes ...core.FillMode) SubmitterOption {
	return func(s *Submitter) {
		s.fillModes = modes
	}
}

// WithDeviation sets the accepted slippage in points
func WithDeviation(points int) SubmitterOption {
	return func(s *Submitter) {
		s.deviation = points
	}
}

// WithCallTimeout bounds every broker call
func WithCallTimeout(timeout time.Duration) SubmitterOption {
	return func(s *Submitter) {
		s.callTimeout = timeout
	}
}

// WithSubmitterLogger sets the submitter logger
func WithSubmitterLogger(log logger.Logger) SubmitterOption {
	return func(s *Submitter) {
		s.log = log
	}
}

// NewSubmitter creates a submitter sending orders to broker
func NewSubmitter(broker OrderBroker, options ...SubmitterOption) *Submitter {
	s := &Submitter{
		broker:      broker,
		log:         logger.Nop(),
		fillModes:   core.FillModes,
		deviation:   DefaultDeviation,
		callTimeout: defaultCallTimeout,
	}
	for _, option := range options {
		option(s)
	}
	return s
}

// TruncateComment limits an order comment to what brokers accept
func TruncateComment(comment string) string {
	if len(comment) > maxCommentLength {
		return comment[:maxCommentLength]
	}
	return comment
}

// modes returns the fill modes with the last accepted one first
func (s *Submitter) modes() []core.FillMode {
	s.mu.Lock()
	preferred := s.preferred
	s.mu.Unlock()

	if preferred == "" || len(s.fillModes) == 0 || s.fillModes[0] == preferred {
		return s.fillModes
	}

	modes := make([]core.FillMode, 0, len(s.fillModes))
	modes = append(modes, preferred)
	for _, mode := range s.fillModes {
		if mode != preferred {
			modes = append(modes, mode)
		}
	}
	return modes
}

// Submit sends the order, first with stops and then without, across every
// fill mode. It stops at the first success or at a fatal result code.
func (s *Submitter) Submit(ctx context.Context, sub Submission) Result {
	base := core.OrderRequest{
		Symbol:     sub.Symbol,
		Side:       sub.Side,
		Volume:     sub.Volume,
		Price:      sub.Price,
		StopLoss:   sub.StopLoss,
		TakeProfit: sub.TakeProfit,
		Deviation:  s.deviation,
		Magic:      s.magic,
		Comment:    s.comment,
	}

	stopConfigs := []bool{false}
	if base.HasStops() {
		stopConfigs = []bool{true, false}
	}

	result := Result{Status: StatusFailed, Request: base}
	log := s.log.WithFields(map[string]any{
		"symbol": sub.Symbol,
		"side":   sub.Side,
		"volume": sub.Volume,
	})

	for _, withStops := range stopConfigs {
	modes:
		for _, mode := range s.modes() {
			request := base
			request.FillMode = mode
			if !withStops {
				request.StopLoss, request.TakeProfit = 0, 0
			}

			attempt := s.attempt(ctx, request, withStops)
			result.Attempts = append(result.Attempts, attempt.Attempt)
			log.Debugf("order attempt %d: %s", len(result.Attempts), attempt)

			if attempt.Err != nil {
				continue
			}
			result.LastCode = attempt.Code

			switch attempt.Outcome {
			case OutcomeSuccess:
				result.Status, result.Request = StatusFilled, request
				s.mu.Lock()
				s.preferred = mode
				s.mu.Unlock()
				log.Infof("order filled: ticket %d at %.5f (%s)", attempt.order.Ticket, attempt.order.Price, attempt)
				result.Order = attempt.order
				return result
			case OutcomeFatal:
				result.Status = StatusAbandoned
				log.Warnf("order abandoned: %s", attempt.Code.Description())
				return result
			case OutcomeRetryWithoutStops:
				if withStops {
					break modes
				}
			}
		}
	}

	log.Warnf("order failed after %d attempts, last code %s", len(result.Attempts), result.LastCode)
	return result
}

type attemptResult struct {
	Attempt
	order core.OrderResult
}

func (s *Submitter) attempt(ctx context.Context, request core.OrderRequest, withStops bool) attemptResult {
	if s.callTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.callTimeout)
		defer cancel()
	}

	attempt := attemptResult{Attempt: Attempt{FillMode: request.FillMode, WithStops: withStops}}
	res, err := s.broker.SubmitOrder(ctx, request)
	if err != nil {
		attempt.Err = err
		attempt.Outcome = OutcomeTransient
		return attempt
	}

	attempt.Code = res.Code
	attempt.Outcome = Classify(res.Code)
	attempt.order = res
	return attempt
}
