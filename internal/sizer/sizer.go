// Package sizer computes position size from account balance and risk inputs.
// Pure computation: no I/O, safe to re-invoke with a refreshed entry price.
package sizer

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrInvalidInput marks inputs the calculation is undefined for. It is
// returned to the caller, never logged as a system fault.
var ErrInvalidInput = errors.New("invalid sizing input")

var hundred = decimal.NewFromInt(100)

// Input holds the calculator inputs. Target is optional; the reward/risk
// ratio is only computed when it is set.
type Input struct {
	Balance float64 // account value, > 0
	RiskPct float64 // percent of balance to risk, (0, 100]
	Entry   float64 // planned entry price, > 0
	Stop    float64 // stop price, > 0, != Entry
	Target  *float64
}

// Result is the sizing outcome. Shares of 0 is a valid result: the stop
// distance is too wide to risk even one share, which the caller must surface
// rather than treat as an error.
type Result struct {
	Shares        int64
	RiskAmount    decimal.Decimal // balance × riskPct / 100
	PerShareRisk  decimal.Decimal // |entry − stop|
	PositionValue decimal.Decimal // entry × shares, rounded up to the cent
	AccountPct    decimal.Decimal // position value as % of balance
	RewardRisk    *decimal.Decimal
	Potential     *decimal.Decimal // |target − entry| × shares
}

// Size validates the inputs and computes the share size and risk metrics.
func Size(in Input) (Result, error) {
	if in.Balance <= 0 {
		return Result{}, fmt.Errorf("%w: balance must be positive", ErrInvalidInput)
	}
	if in.RiskPct <= 0 || in.RiskPct > 100 {
		return Result{}, fmt.Errorf("%w: risk percent must be in (0, 100]", ErrInvalidInput)
	}
	if in.Entry <= 0 || in.Stop <= 0 {
		return Result{}, fmt.Errorf("%w: entry and stop must be positive", ErrInvalidInput)
	}
	if in.Entry == in.Stop {
		return Result{}, fmt.Errorf("%w: zero stop distance", ErrInvalidInput)
	}
	if in.Target != nil && *in.Target <= 0 {
		return Result{}, fmt.Errorf("%w: target must be positive when set", ErrInvalidInput)
	}

	balance := decimal.NewFromFloat(in.Balance)
	entry := decimal.NewFromFloat(in.Entry)
	stop := decimal.NewFromFloat(in.Stop)

	riskAmount := balance.Mul(decimal.NewFromFloat(in.RiskPct)).Div(hundred)
	perShareRisk := entry.Sub(stop).Abs()
	shares := riskAmount.Div(perShareRisk).Floor().IntPart()

	sharesDec := decimal.NewFromInt(shares)
	positionValue := entry.Mul(sharesDec).RoundUp(2)

	out := Result{
		Shares:        shares,
		RiskAmount:    riskAmount,
		PerShareRisk:  perShareRisk,
		PositionValue: positionValue,
		AccountPct:    positionValue.Div(balance).Mul(hundred).RoundDown(2),
	}

	if in.Target != nil {
		target := decimal.NewFromFloat(*in.Target)
		perShareReward := target.Sub(entry).Abs()
		rr := perShareReward.Div(perShareRisk)
		potential := perShareReward.Mul(sharesDec)
		out.RewardRisk = &rr
		out.Potential = &potential
	}

	return out, nil
}
