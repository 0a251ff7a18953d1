package core

import "fmt"

// RetCode is a broker trade server return code
type RetCode int

const (
	RetRequote           RetCode = 10004
	RetReject            RetCode = 10006
	RetCancel            RetCode = 10007
	RetPlaced            RetCode = 10008
	RetDone              RetCode = 10009
	RetDonePartial       RetCode = 10010
	RetError             RetCode = 10011
	RetTimeout           RetCode = 10012
	RetInvalid           RetCode = 10013
	RetInvalidVolume     RetCode = 10014
	RetInvalidPrice      RetCode = 10015
	RetInvalidStops      RetCode = 10016
	RetTradeDisabled     RetCode = 10017
	RetMarketClosed      RetCode = 10018
	RetNoMoney           RetCode = 10019
	RetPriceChanged      RetCode = 10020
	RetPriceOff          RetCode = 10021
	RetInvalidExpiration RetCode = 10022
	RetOrderChanged      RetCode = 10023
	RetTooManyRequests   RetCode = 10024
	RetNoChanges         RetCode = 10025
	RetServerDisablesAT  RetCode = 10026
	RetClientDisablesAT  RetCode = 10027
	RetLocked            RetCode = 10028
	RetFrozen            RetCode = 10029
	RetInvalidFill       RetCode = 10030
	RetConnection        RetCode = 10031
)

var retCodeDescriptions = map[RetCode]string{
	RetRequote:           "requote",
	RetReject:            "request rejected",
	RetCancel:            "request canceled by trader",
	RetPlaced:            "order placed",
	RetDone:              "request completed",
	RetDonePartial:       "only part of the request was completed",
	RetError:             "request processing error",
	RetTimeout:           "request canceled by timeout",
	RetInvalid:           "invalid request",
	RetInvalidVolume:     "invalid volume in the request",
	RetInvalidPrice:      "invalid price in the request",
	RetInvalidStops:      "invalid stops in the request",
	RetTradeDisabled:     "trade is disabled",
	RetMarketClosed:      "market is closed",
	RetNoMoney:           "not enough money to complete the request",
	RetPriceChanged:      "prices changed",
	RetPriceOff:          "there are no quotes to process the request",
	RetInvalidExpiration: "invalid order expiration date in the request",
	RetOrderChanged:      "order state changed",
	RetTooManyRequests:   "too frequent requests",
	RetNoChanges:         "no changes in request",
	RetServerDisablesAT:  "autotrading disabled by server",
	RetClientDisablesAT:  "autotrading disabled by client terminal",
	RetLocked:            "request locked for processing",
	RetFrozen:            "order or position frozen",
	RetInvalidFill:       "invalid order filling type",
	RetConnection:        "no connection with the trade server",
}

// Description returns a human readable description of the code
func (c RetCode) Description() string {
	if desc, ok := retCodeDescriptions[c]; ok {
		return desc
	}
	return fmt.Sprintf("unknown return code %d", int(c))
}

func (c RetCode) String() string {
	return fmt.Sprintf("%d (%s)", int(c), c.Description())
}
