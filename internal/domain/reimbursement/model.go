package reimbursement

import (
	"time"

	"github.com/google/uuid"

	"github.com/medyassinekhlif/TrueCare/internal/domain/registry"
)

const (
	ClassLow    = "Low"
	ClassMedium = "Medium"
	ClassHigh   = "High"
)

var validClasses = map[string]bool{
	ClassLow: true, ClassMedium: true, ClassHigh: true,
}

// UnknownModelVersion is recorded when the predictor omits modelVersion.
const UnknownModelVersion = "unknown"

// Estimation is a persisted reimbursement prediction. There is at most one
// per medical bulletin and it is never modified after creation. ClientName
// and ClientEmail are copies taken at creation time and are not refreshed
// when the client record changes.
type Estimation struct {
	ID                  uuid.UUID `db:"id" json:"id"`
	InsurerID           uuid.UUID `db:"insurer_id" json:"insurerId"`
	ClientID            uuid.UUID `db:"client_id" json:"clientId"`
	MedicalBulletinID   uuid.UUID `db:"medical_bulletin_id" json:"medicalBulletinId"`
	ClientName          string    `db:"client_name" json:"clientName"`
	ClientEmail         string    `db:"client_email" json:"clientEmail"`
	ReimbursementClass  string    `db:"reimbursement_class" json:"reimbursementClass"`
	Confidence          float64   `db:"confidence" json:"confidence"`
	ReimbursementAmount float64   `db:"reimbursement_amount" json:"reimbursementAmount"`
	ModelVersion        string    `db:"model_version" json:"modelVersion"`
	CreatedBy           uuid.UUID `db:"created_by" json:"createdBy"`
	CreatedAt           time.Time `db:"created_at" json:"createdAt"`
}

// Prediction is a predictor response that passed validation.
type Prediction struct {
	Class        string
	Confidence   float64
	Amount       float64
	ModelVersion string
}

// Result is returned by Estimate. Plan is informational and does not
// affect the amount.
type Result struct {
	Estimation      *Estimation
	TotalAmountPaid float64
	Plan            registry.ClientPlan
	AlreadyExisted  bool
}

// Lookup is returned by GetEstimationForBulletin. Estimation is nil when the
// bulletin has not been estimated yet.
type Lookup struct {
	Estimation      *Estimation         `json:"estimation"`
	TotalAmountPaid float64             `json:"totalAmountPaid"`
	Plan            registry.ClientPlan `json:"plan"`
}

// BulletinView is a client's view of one of their bulletins.
type BulletinView struct {
	Bulletin   *registry.MedicalBulletin `json:"medicalBulletin"`
	Estimation *Estimation               `json:"estimation"`
}

// EstimateRequest is the body of POST /insurer/estimations.
type EstimateRequest struct {
	ClientID          string `json:"clientId"`
	MedicalBulletinID string `json:"medicalBulletinId"`
}
