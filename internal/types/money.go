// README: Common money value object used across modules.
package types

// CurrencyINR is the only currency the campus service charges in.
const CurrencyINR = "INR"

type Money struct {
	Amount   int64
	Currency string
}

func Rupees(amount int64) Money {
	return Money{Amount: amount, Currency: CurrencyINR}
}
