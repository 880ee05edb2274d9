package kalshi

import (
	"fmt"

	"github.com/bozweather/trader/internal/model"
)

// rawMarket is one bracket market as returned by the exchange's
// get_event_markets endpoint.
type rawMarket struct {
	Ticker       string   `json:"ticker"`
	Status       string   `json:"status"`
	FloorStrike  *float64 `json:"floor_strike"`
	CapStrike    *float64 `json:"cap_strike"`
	YesBid       int64    `json:"yes_bid"`
	YesAsk       int64    `json:"yes_ask"`
	NoBid        int64    `json:"no_bid"`
	NoAsk        int64    `json:"no_ask"`
	LastPrice    int64    `json:"last_price"`
	CloseTimeISO string   `json:"close_time"`
}

// parseBracket converts one rawMarket into a model.Bracket, deriving the
// semantic bound shape and label from (floor_strike, cap_strike):
//
//	(floor, cap)   -> middle bracket
//	(none, cap)    -> bottom edge, "Below {cap+1}"
//	(floor, none)  -> top edge, "{floor} or above"
func parseBracket(raw rawMarket) (model.Bracket, error) {
	b := model.Bracket{
		Ticker:         raw.Ticker,
		Status:         raw.Status,
		LowerBoundF:    raw.FloorStrike,
		UpperBoundF:    raw.CapStrike,
		YesBidCents:    model.Cents(raw.YesBid),
		YesAskCents:    model.Cents(raw.YesAsk),
		NoBidCents:     model.Cents(raw.NoBid),
		NoAskCents:     model.Cents(raw.NoAsk),
		LastPriceCents: model.Cents(raw.LastPrice),
	}

	switch {
	case raw.FloorStrike != nil && raw.CapStrike != nil:
		b.Label = fmt.Sprintf("%g-%g", *raw.FloorStrike, *raw.CapStrike)
	case raw.FloorStrike == nil && raw.CapStrike != nil:
		b.Label = fmt.Sprintf("Below %g", *raw.CapStrike+1)
	case raw.FloorStrike != nil && raw.CapStrike == nil:
		b.Label = fmt.Sprintf("%g or above", *raw.FloorStrike)
	default:
		return model.Bracket{}, fmt.Errorf("kalshi: bracket %s has neither floor nor cap strike", raw.Ticker)
	}

	return b, nil
}

type rawEvent struct {
	EventTicker string      `json:"event_ticker"`
	Markets     []rawMarket `json:"markets"`
}

// parseEvent converts a raw event+markets payload into a model.MarketEvent.
// A single malformed bracket is skipped and its error returned alongside
// the event rather than failing the whole event — six brackets minus one
// bad one is still usable. ListEventsFor logs these errors;
// GetEventMarkets discards them.
func parseEvent(raw rawEvent, city, targetDate string) (model.MarketEvent, []error) {
	event := model.MarketEvent{EventID: raw.EventTicker, City: city, TargetDate: targetDate}
	var errs []error
	for _, m := range raw.Markets {
		b, err := parseBracket(m)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		event.Brackets = append(event.Brackets, b)
	}
	return event, errs
}
