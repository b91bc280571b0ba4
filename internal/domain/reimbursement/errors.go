package reimbursement

import "errors"

// Estimator errors. Each precondition of Estimate fails with its own error.
var (
	ErrInvalidIdentifier        = errors.New("invalid identifier")
	ErrInsurerNotFound          = errors.New("insurer not found")
	ErrInsurerNotVerified       = errors.New("insurer account not verified")
	ErrClientNotFound           = errors.New("client not found")
	ErrClientNotAssociated      = errors.New("client not associated with this insurer")
	ErrBulletinNotFound         = errors.New("medical bulletin not found")
	ErrBulletinNotAssociated    = errors.New("medical bulletin not associated with this client")
	ErrClientUserNotFound       = errors.New("client account not found")
	ErrPredictorResponseInvalid = errors.New("invalid predictor response")
	ErrPredictorUnavailable     = errors.New("predictor unavailable")
)

// Store errors.
var (
	// ErrEstimationNotFound is returned when a bulletin has no estimation.
	ErrEstimationNotFound = errors.New("estimation not found")
	// ErrDuplicateEstimation is returned by Create when the bulletin already
	// has an estimation.
	ErrDuplicateEstimation = errors.New("estimation already exists for bulletin")
)
