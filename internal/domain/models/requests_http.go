package models

// Requests for the operator HTTP endpoints. Dates travel as YYYY-MM-DD strings
// and are parsed in the handler against the exchange calendar.

type ExpirationRequest struct {
	Symbol string `param:"symbol" validate:"required"`
	Date   string `query:"date" validate:"omitempty,datetime=2006-01-02"`
}

// ForecastRequest prices a volatility model. Symbol, when set, fills price and
// IV from the configured contract. Horizon is a pointer so an explicit 0 is
// rejected instead of defaulted.
type ForecastRequest struct {
	Symbol  string  `query:"symbol"`
	Model   string  `query:"model" default:"standard" validate:"required"`
	Price   float64 `query:"price" validate:"gte=0"`
	IV      float64 `query:"iv" validate:"gte=0"`
	Horizon *int    `query:"horizon" default:"1" validate:"gte=1,lte=252"`
	Return  float64 `query:"return"`
	Prior   float64 `query:"prior" validate:"gte=0"`
}

type RangeRequest struct {
	ForecastRequest
	Tick float64 `query:"tick" validate:"gte=0"`
}

type WeeklyBandsRequest struct {
	Symbol    string  `query:"symbol"`
	WeekStart string  `query:"week_start" validate:"omitempty,datetime=2006-01-02"`
	Open      float64 `query:"open" validate:"gte=0"`
	IV        float64 `query:"iv" validate:"gte=0"`
	Tick      float64 `query:"tick" validate:"gte=0"`
}

type RecordsRequest struct {
	Symbol string `param:"symbol" validate:"required"`
	From   string `query:"from" validate:"omitempty,datetime=2006-01-02"`
	To     string `query:"to" validate:"omitempty,datetime=2006-01-02"`
	Days   int    `query:"days" default:"30" validate:"gte=1,lte=3660"`
}

type WeeklyRequest struct {
	Symbol string `param:"symbol" validate:"required"`
}

// SettleRecordRequest takes symbol and date from the path and close from the body.
type SettleRecordRequest struct {
	Symbol string  `param:"symbol" json:"-" validate:"required"`
	Date   string  `param:"date" json:"-" validate:"required,datetime=2006-01-02"`
	Close  float64 `json:"close" validate:"gt=0"`
}

type WeeklyCloseRequest struct {
	Symbol string  `param:"symbol" json:"-" validate:"required"`
	Date   string  `json:"date" validate:"required,datetime=2006-01-02"`
	Close  float64 `json:"close" validate:"gt=0"`
}
