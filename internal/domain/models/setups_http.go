package models

// Requests for the setups HTTP endpoints. Defined in domain for consistency and reuse.

type ListSetupsRequest struct {
	TF    string `query:"tf" json:"tf" validate:"omitempty,oneof=15m 1h 4h 1d"`
	State string `query:"state" json:"state" validate:"omitempty,oneof=triggered deep_oversold bouncing"`
}

type RemoveSetupRequest struct {
	Symbol string `param:"symbol" json:"symbol" validate:"required"`
	TF     string `param:"tf" json:"tf" validate:"required,oneof=15m 1h 4h 1d"`
}

type HistoryRequest struct {
	Symbol string `query:"symbol" json:"symbol" validate:"required"`
	From   string `query:"from" json:"from"`
	To     string `query:"to" json:"to"`
	Limit  int    `query:"limit" json:"limit" default:"200" validate:"gte=1,lte=5000"`
}
