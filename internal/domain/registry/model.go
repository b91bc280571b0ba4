package registry

import (
	"time"

	"github.com/google/uuid"
)

const (
	RoleInsurer = "insurer"
	RoleDoctor  = "doctor"
	RoleClient  = "client"
)

// User is an account in the identity store. Credentials are held by the
// external identity provider and never reach this service.
type User struct {
	ID          uuid.UUID `db:"id" json:"id"`
	Email       string    `db:"email" json:"email"`
	Role        string    `db:"role" json:"role"`
	PhoneNumber *string   `db:"phone_number" json:"phoneNumber,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"createdAt"`
}

// PlanRange is a reimbursement percentage band, 0 <= Min <= Max <= 100.
type PlanRange struct {
	Min float64 `json:"min" bson:"min"`
	Max float64 `json:"max" bson:"max"`
}

// PlanTier is one plan an insurer offers.
type PlanTier struct {
	Name        string    `json:"name,omitempty" bson:"name,omitempty"`
	Range       PlanRange `json:"range" bson:"range"`
	MaxCoverage float64   `json:"maxCoverage" bson:"maxCoverage"`
}

// DefaultPlans are assigned to insurers registered without plans.
func DefaultPlans() []PlanTier {
	return []PlanTier{
		{Name: "basic", Range: PlanRange{Min: 50, Max: 70}, MaxCoverage: 50000},
		{Name: "standard", Range: PlanRange{Min: 70, Max: 85}, MaxCoverage: 100000},
		{Name: "premium", Range: PlanRange{Min: 85, Max: 95}, MaxCoverage: 200000},
	}
}

type Insurer struct {
	ID          uuid.UUID   `db:"id" json:"id"`
	UserID      uuid.UUID   `db:"user_id" json:"userId"`
	CompanyName string      `db:"company_name" json:"companyName"`
	Verified    bool        `db:"verified" json:"verified"`
	Plans       []PlanTier  `db:"plans" json:"plans"`
	ClientIDs   []uuid.UUID `db:"-" json:"clientIds"`
	CreatedAt   time.Time   `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time   `db:"updated_at" json:"updatedAt"`
}

// OwnsClient reports whether clientID is in the insurer's client list.
func (i *Insurer) OwnsClient(clientID uuid.UUID) bool {
	for _, id := range i.ClientIDs {
		if id == clientID {
			return true
		}
	}
	return false
}

const (
	ExerciseOften     = "Often"
	ExerciseSometimes = "Sometimes"
	ExerciseNever     = "Never"
)

var validExercise = map[string]bool{
	ExerciseOften: true, ExerciseSometimes: true, ExerciseNever: true,
}

type Health struct {
	Conditions string `json:"conditions,omitempty" bson:"conditions,omitempty"`
	Smoker     bool   `json:"smoker" bson:"smoker"`
	Exercise   string `json:"exercise" bson:"exercise"`
}

// ClientPlan is the coverage band assigned to one client.
type ClientPlan struct {
	Range PlanRange `json:"range" bson:"range"`
}

type Client struct {
	ID         uuid.UUID  `db:"id" json:"id"`
	UserID     uuid.UUID  `db:"user_id" json:"userId"`
	InsurerID  uuid.UUID  `db:"insurer_id" json:"insurerId"`
	Name       string     `db:"name" json:"name"`
	BirthDate  time.Time  `db:"birth_date" json:"birthDate"`
	NationalID string     `db:"national_id" json:"nationalId"`
	Job        string     `db:"job" json:"job"`
	Health     Health     `db:"-" json:"health"`
	Plan       ClientPlan `db:"-" json:"plan"`
	CreatedAt  time.Time  `db:"created_at" json:"createdAt"`
}

type Doctor struct {
	ID        uuid.UUID `db:"id" json:"id"`
	UserID    uuid.UUID `db:"user_id" json:"userId"`
	FullName  string    `db:"full_name" json:"fullName"`
	Specialty *string   `db:"specialty" json:"specialty,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

type Treatment struct {
	Diagnosis        string  `json:"diagnosis" bson:"diagnosis"`
	SessionsAttended int     `json:"sessionsAttended" bson:"sessionsAttended"`
	Duration         *string `json:"treatmentDuration,omitempty" bson:"treatmentDuration,omitempty"`
	Type             *string `json:"treatmentType,omitempty" bson:"treatmentType,omitempty"`
	CaseSeverity     int     `json:"caseSeverity" bson:"caseSeverity"`
}

type Financial struct {
	TotalAmountPaid float64 `json:"totalAmountPaid" bson:"totalAmountPaid"`
	Currency        string  `json:"currency" bson:"currency"`
}

// DefaultCurrency applies to bulletins created without a currency.
const DefaultCurrency = "TND"

// MedicalBulletin is a doctor's treatment record for a client. It is never
// modified after creation.
type MedicalBulletin struct {
	ID        uuid.UUID `db:"id" json:"id"`
	DoctorID  uuid.UUID `db:"doctor_id" json:"doctorId"`
	ClientID  uuid.UUID `db:"client_id" json:"clientId"`
	Treatment Treatment `db:"-" json:"treatmentDetails"`
	Financial Financial `db:"-" json:"financialInfo"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// InsurerRegistration creates an insurer account and profile.
type InsurerRegistration struct {
	Email       string     `json:"email"`
	PhoneNumber string     `json:"phoneNumber"`
	CompanyName string     `json:"companyName"`
	Plans       []PlanTier `json:"plans"`
}

// DoctorRegistration creates a doctor account and profile.
type DoctorRegistration struct {
	Email       string  `json:"email"`
	PhoneNumber string  `json:"phoneNumber"`
	FullName    string  `json:"fullName"`
	Specialty   *string `json:"specialty"`
}

// ClientEnrollment is submitted by an insurer adding a client.
type ClientEnrollment struct {
	Email       string     `json:"email"`
	PhoneNumber string     `json:"phoneNumber"`
	Name        string     `json:"name"`
	BirthDate   string     `json:"birthDate"`
	NationalID  string     `json:"nationalId"`
	Job         string     `json:"job"`
	Health      Health     `json:"health"`
	Plan        ClientPlan `json:"plan"`
}

// BulletinInput is submitted by a doctor recording a treatment.
type BulletinInput struct {
	ClientEmail string    `json:"clientEmail"`
	Treatment   Treatment `json:"treatmentDetails"`
	Financial   Financial `json:"financialInfo"`
}

// InsuranceDetails is a client's view of their coverage.
type InsuranceDetails struct {
	CompanyName string     `json:"companyName"`
	Plan        ClientPlan `json:"plan"`
	InsurerID   uuid.UUID  `json:"insurerId"`
}
