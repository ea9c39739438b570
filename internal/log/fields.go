package log

// Common field names for structured logging
const (
	FieldComponent   = "component"
	FieldRequestID   = "request_id"
	FieldClientIP    = "client_ip"
	FieldUserID      = "user_id"
	FieldWalletID    = "wallet_id"
	FieldTxID        = "transaction_id"
	FieldCategory    = "category"
	FieldAmountCents = "amount_cents"
	FieldEpoch       = "epoch"
	FieldBackend     = "backend"
	FieldError       = "error"
	FieldDurationMS  = "duration_ms"
)
