// README: Pricing service computes category fares and Normal-ride bid steps.
package pricing

import (
	"context"
	"errors"
	"fmt"

	"quickauto/internal/types"
)

var (
	ErrUnknownCategory = errors.New("unknown ride category")
	ErrInvalidBid      = errors.New("bid must be a multiple of 10 between 10 and 40")
	ErrInvalidParty    = errors.New("persons must be at least 1 and luggage between 0 and persons")
)

type Service struct{}

func NewService() *Service {
	return &Service{}
}

func RateFor(category string) (Rate, bool) {
	r, ok := rates[category]
	return r, ok
}

func (s *Service) Quote(ctx context.Context, req Request) (types.Money, error) {
	res, err := s.Calculate(ctx, req)
	if err != nil {
		return types.Money{}, err
	}
	return types.Rupees(res.Total), nil
}

func (s *Service) Calculate(_ context.Context, req Request) (Result, error) {
	rate, ok := RateFor(req.Category)
	if !ok {
		return Result{}, fmt.Errorf("%w: %q", ErrUnknownCategory, req.Category)
	}
	res := Result{Currency: types.CurrencyINR, Breakdown: map[string]int64{}}

	switch {
	case rate.Bidding():
		bid := req.Bid
		if bid == 0 {
			bid = rate.BidFloor
		}
		if bid < rate.BidFloor || bid > rate.BidCap || bid%rate.BidStep != 0 {
			return Result{}, ErrInvalidBid
		}
		res.Breakdown["bid"] = bid
	case rate.PerPerson > 0:
		if req.Persons < 1 || req.Luggage < 0 || req.Luggage > req.Persons {
			return Result{}, ErrInvalidParty
		}
		res.Breakdown["base"] = rate.BaseFare
		res.Breakdown["persons"] = rate.PerPerson * int64(req.Persons)
		res.Breakdown["luggage"] = rate.PerLuggage * int64(req.Luggage)
	default:
		res.Breakdown["base"] = rate.BaseFare
	}

	for _, v := range res.Breakdown {
		res.Total += v
	}
	return res, nil
}

// NextBid raises a Normal bid by one step, stopping at the cap.
func NextBid(current int64) int64 {
	if current < NormalBidFloor {
		return NormalBidFloor
	}
	next := current + NormalBidStep
	if next > NormalBidCap {
		return NormalBidCap
	}
	return next
}
