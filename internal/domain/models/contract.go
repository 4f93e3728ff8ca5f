package models

import "time"

// ContractClass groups instruments that share expiration conventions.
type ContractClass string

const (
	ClassIndex     ContractClass = "index"
	ClassCommodity ContractClass = "commodity"
)

// ExpirationRule names the rule that derives a contract's last trading day.
type ExpirationRule string

const (
	// RuleWeeklyFriday expires every Friday at the exchange close (index futures).
	RuleWeeklyFriday ExpirationRule = "weekly_friday"
	// RuleThirdLastBusinessDay expires on the 3rd-from-last business day of the contract month.
	RuleThirdLastBusinessDay ExpirationRule = "third_last_business_day"
	// RuleBeforeTwentyFifth expires 3 business days before the 25th of the month preceding delivery.
	RuleBeforeTwentyFifth ExpirationRule = "before_25th_prior_month"
	// RuleThirdFriday expires on the 3rd Friday of the contract month.
	RuleThirdFriday ExpirationRule = "third_friday"
)

// Contract is a tradable instrument and its nightly recomputed state.
type Contract struct {
	Symbol      string         `json:"symbol"`
	Name        string         `json:"name"`
	QuoteSymbol string         `json:"quote_symbol,omitempty"` // upstream ticker, empty = Symbol
	TickSize    float64        `json:"tick_size"`
	Class       ContractClass  `json:"contract_class"`
	Rule        ExpirationRule `json:"rule"`

	Price         float64 `json:"price"`
	PreviousClose float64 `json:"previous_close"`
	WeeklyIV      float64 `json:"weekly_iv"` // annualized
	DailyIV       float64 `json:"daily_iv"`  // annualized override for single-session moves, 0 = use WeeklyIV

	DaysRemaining    int       `json:"days_remaining"`
	Expiration       time.Time `json:"expiration"`
	IsExpirationWeek bool      `json:"is_expiration_week"`

	// LastForecastIV is the previous run's model output, used as the prior by
	// memoryful models. Zero means no prior.
	LastForecastIV float64   `json:"last_forecast_iv"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// SessionIV returns the annualized IV used for single-session moves.
func (c Contract) SessionIV() float64 {
	if c.DailyIV > 0 {
		return c.DailyIV
	}
	return c.WeeklyIV
}

// Ticker is the symbol requested from the quote provider.
func (c Contract) Ticker() string {
	if c.QuoteSymbol != "" {
		return c.QuoteSymbol
	}
	return c.Symbol
}

// Quote is one market-data snapshot for a contract.
type Quote struct {
	Symbol        string    `json:"symbol"`
	LastPrice     float64   `json:"last_price"`
	PreviousClose float64   `json:"previous_close"`
	Change        float64   `json:"change"`
	ChangePercent float64   `json:"change_percent"`
	Timestamp     time.Time `json:"timestamp"`
}

// Return is the session return as a decimal (1.5% -> 0.015).
func (q Quote) Return() float64 {
	return q.ChangePercent / 100
}

// ExpirationInfo is the calendar state of a contract as of a point in time.
type ExpirationInfo struct {
	Symbol           string         `json:"symbol"`
	Class            ContractClass  `json:"contract_class"`
	Rule             ExpirationRule `json:"rule"`
	Expiration       time.Time      `json:"expiration"`
	DaysRemaining    int            `json:"days_remaining"`
	IsExpirationWeek bool           `json:"is_expiration_week"`
}
