package order

import "github.com/MLOpsArtisan/TradePulse-ver1.2/pkg/core"

// Outcome tells the submitter what to do after a broker result code
type Outcome int

const (
	// OutcomeTransient moves on to the next combination
	OutcomeTransient Outcome = iota
	OutcomeSuccess
	OutcomeRetryWithoutStops
	OutcomeNextFillMode
	// OutcomeFatal abandons the whole submission
	OutcomeFatal
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeRetryWithoutStops:
		return "retry_without_stops"
	case OutcomeNextFillMode:
		return "next_fill_mode"
	case OutcomeFatal:
		return "fatal"
	default:
		return "transient"
	}
}

var outcomes = map[core.RetCode]Outcome{
	core.RetDone:             OutcomeSuccess,
	core.RetPlaced:           OutcomeSuccess,
	core.RetDonePartial:      OutcomeSuccess,
	core.RetInvalidStops:     OutcomeRetryWithoutStops,
	core.RetInvalidFill:      OutcomeNextFillMode,
	core.RetInvalidVolume:    OutcomeFatal,
	core.RetTradeDisabled:    OutcomeFatal,
	core.RetMarketClosed:     OutcomeFatal,
	core.RetNoMoney:          OutcomeFatal,
	core.RetServerDisablesAT: OutcomeFatal,
	core.RetClientDisablesAT: OutcomeFatal,
}

// Classify maps a broker result code to an Outcome
func Classify(code core.RetCode) Outcome {
	if outcome, ok := outcomes[code]; ok {
		return outcome
	}
	return OutcomeTransient
}
