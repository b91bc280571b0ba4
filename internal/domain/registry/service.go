package registry

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Service struct {
	users     UserRepository
	insurers  InsurerRepository
	clients   ClientRepository
	doctors   DoctorRepository
	bulletins BulletinRepository
	tx        Transactor
	now       func() time.Time
}

func NewService(repos *Repos) *Service {
	return &Service{
		users:     repos.Users,
		insurers:  repos.Insurers,
		clients:   repos.Clients,
		doctors:   repos.Doctors,
		bulletins: repos.Bulletins,
		tx:        repos.Tx,
		now:       time.Now,
	}
}

var (
	eightDigits = regexp.MustCompile(`^\d{8}$`)

	birthDateLayouts = []string{"2006-01-02", time.RFC3339}
)

const (
	maxCaseSeverity = 5
	maxPlanPercent  = 100
)

func validationError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// parseIdentity maps an authenticated subject to a user id. A subject that
// is not a uuid cannot own a profile, so it resolves to ErrNotFound.
func parseIdentity(identity string) (uuid.UUID, error) {
	id, err := uuid.Parse(identity)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: identity %q", ErrNotFound, identity)
	}
	return id, nil
}

func validateEmail(email string) error {
	if email == "" {
		return validationError("email is required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return validationError("invalid email %q", email)
	}
	return nil
}

func validatePhone(phone string) error {
	if !eightDigits.MatchString(phone) {
		return validationError("phoneNumber must be exactly 8 digits")
	}
	return nil
}

// ValidatePlanRange checks 0 <= min <= max <= 100.
func ValidatePlanRange(r PlanRange) error {
	if r.Min < 0 || r.Max > maxPlanPercent || r.Min > r.Max {
		return validationError("plan range must satisfy 0 <= min <= max <= 100, got [%v, %v]", r.Min, r.Max)
	}
	return nil
}

func validatePlans(plans []PlanTier) error {
	if len(plans) == 0 {
		return validationError("at least one plan is required")
	}
	for i, p := range plans {
		if err := ValidatePlanRange(p.Range); err != nil {
			return fmt.Errorf("plan %d: %w", i, err)
		}
		if p.MaxCoverage <= 0 {
			return validationError("plan %d: maxCoverage must be positive", i)
		}
	}
	return nil
}

func (s *Service) ensureAccountFree(ctx context.Context, email, phone string) error {
	taken, err := s.users.ExistsByEmailOrPhone(ctx, email, phone)
	if err != nil {
		return fmt.Errorf("check account uniqueness: %w", err)
	}
	if taken {
		return fmt.Errorf("%w: email or phone number already exists", ErrConflict)
	}
	return nil
}

// -- Accounts --

// RegisterInsurer creates an unverified insurer with its identity record.
func (s *Service) RegisterInsurer(ctx context.Context, in InsurerRegistration) (*Insurer, error) {
	in.Email = strings.TrimSpace(strings.ToLower(in.Email))
	if err := validateEmail(in.Email); err != nil {
		return nil, err
	}
	if err := validatePhone(in.PhoneNumber); err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.CompanyName) == "" {
		return nil, validationError("companyName is required")
	}
	plans := in.Plans
	if len(plans) == 0 {
		plans = DefaultPlans()
	}
	if err := validatePlans(plans); err != nil {
		return nil, err
	}
	if err := s.ensureAccountFree(ctx, in.Email, in.PhoneNumber); err != nil {
		return nil, err
	}

	phone := in.PhoneNumber
	ins := &Insurer{CompanyName: strings.TrimSpace(in.CompanyName), Plans: plans}
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		u := &User{Email: in.Email, Role: RoleInsurer, PhoneNumber: &phone}
		if err := s.users.Create(ctx, u); err != nil {
			return fmt.Errorf("create insurer account: %w", err)
		}
		ins.UserID = u.ID
		if err := s.insurers.Create(ctx, ins); err != nil {
			return fmt.Errorf("create insurer: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ins, nil
}

// RegisterDoctor creates a doctor with its identity record.
func (s *Service) RegisterDoctor(ctx context.Context, in DoctorRegistration) (*Doctor, error) {
	in.Email = strings.TrimSpace(strings.ToLower(in.Email))
	if err := validateEmail(in.Email); err != nil {
		return nil, err
	}
	if err := validatePhone(in.PhoneNumber); err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.FullName) == "" {
		return nil, validationError("fullName is required")
	}
	if err := s.ensureAccountFree(ctx, in.Email, in.PhoneNumber); err != nil {
		return nil, err
	}

	phone := in.PhoneNumber
	doc := &Doctor{FullName: strings.TrimSpace(in.FullName), Specialty: in.Specialty}
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		u := &User{Email: in.Email, Role: RoleDoctor, PhoneNumber: &phone}
		if err := s.users.Create(ctx, u); err != nil {
			return fmt.Errorf("create doctor account: %w", err)
		}
		doc.UserID = u.ID
		if err := s.doctors.Create(ctx, doc); err != nil {
			return fmt.Errorf("create doctor: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// VerifyInsurer marks an insurer verified. Verifying twice is a no-op.
func (s *Service) VerifyInsurer(ctx context.Context, insurerID uuid.UUID) (*Insurer, error) {
	if err := s.insurers.SetVerified(ctx, insurerID, true); err != nil {
		return nil, err
	}
	return s.insurers.GetByID(ctx, insurerID)
}

// -- Insurer --

// InsurerForIdentity resolves the insurer profile owned by identity.
func (s *Service) InsurerForIdentity(ctx context.Context, identity string) (*Insurer, error) {
	userID, err := parseIdentity(identity)
	if err != nil {
		return nil, err
	}
	return s.insurers.GetByUserID(ctx, userID)
}

func (s *Service) verifiedInsurer(ctx context.Context, identity string) (*Insurer, error) {
	ins, err := s.InsurerForIdentity(ctx, identity)
	if err != nil {
		return nil, err
	}
	if !ins.Verified {
		return nil, ErrNotVerified
	}
	return ins, nil
}

func (s *Service) parseBirthDate(raw string) (time.Time, error) {
	for _, layout := range birthDateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			if !t.Before(s.now()) {
				return time.Time{}, validationError("birthDate must be in the past")
			}
			return t.UTC(), nil
		}
	}
	return time.Time{}, validationError("invalid birthDate %q, expected YYYY-MM-DD", raw)
}

// AddClient enrolls a new client under the calling insurer. The client's
// identity record, profile and insurer membership are written atomically.
func (s *Service) AddClient(ctx context.Context, identity string, in ClientEnrollment) (*Client, error) {
	ins, err := s.verifiedInsurer(ctx, identity)
	if err != nil {
		return nil, err
	}

	in.Email = strings.TrimSpace(strings.ToLower(in.Email))
	if err := validateEmail(in.Email); err != nil {
		return nil, err
	}
	if err := validatePhone(in.PhoneNumber); err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.Name) == "" {
		return nil, validationError("name is required")
	}
	if !eightDigits.MatchString(in.NationalID) {
		return nil, validationError("nationalId must be exactly 8 digits")
	}
	if strings.TrimSpace(in.Job) == "" {
		return nil, validationError("job is required")
	}
	birthDate, err := s.parseBirthDate(in.BirthDate)
	if err != nil {
		return nil, err
	}
	if in.Health.Exercise == "" {
		in.Health.Exercise = ExerciseSometimes
	}
	if !validExercise[in.Health.Exercise] {
		return nil, validationError("invalid exercise %q, expected Often, Sometimes or Never", in.Health.Exercise)
	}
	if err := ValidatePlanRange(in.Plan.Range); err != nil {
		return nil, err
	}

	if err := s.ensureAccountFree(ctx, in.Email, in.PhoneNumber); err != nil {
		return nil, err
	}
	taken, err := s.clients.ExistsByNationalID(ctx, in.NationalID)
	if err != nil {
		return nil, fmt.Errorf("check national id: %w", err)
	}
	if taken {
		return nil, fmt.Errorf("%w: national ID already exists", ErrConflict)
	}

	phone := in.PhoneNumber
	client := &Client{
		InsurerID:  ins.ID,
		Name:       strings.TrimSpace(in.Name),
		BirthDate:  birthDate,
		NationalID: in.NationalID,
		Job:        strings.TrimSpace(in.Job),
		Health:     in.Health,
		Plan:       in.Plan,
	}
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		u := &User{Email: in.Email, Role: RoleClient, PhoneNumber: &phone}
		if err := s.users.Create(ctx, u); err != nil {
			return fmt.Errorf("create client account: %w", err)
		}
		client.UserID = u.ID
		if err := s.clients.Create(ctx, client); err != nil {
			return fmt.Errorf("create client: %w", err)
		}
		if err := s.insurers.AddClient(ctx, ins.ID, client.ID); err != nil {
			return fmt.Errorf("attach client to insurer: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return client, nil
}

// UpdatePlans replaces the plan tiers the calling insurer offers.
func (s *Service) UpdatePlans(ctx context.Context, identity string, plans []PlanTier) (*Insurer, error) {
	ins, err := s.InsurerForIdentity(ctx, identity)
	if err != nil {
		return nil, err
	}
	if err := validatePlans(plans); err != nil {
		return nil, err
	}
	if err := s.insurers.UpdatePlans(ctx, ins.ID, plans); err != nil {
		return nil, err
	}
	ins.Plans = plans
	return ins, nil
}

// GetOwnedClient returns a client of the calling insurer. Clients of other
// insurers are reported as not found.
func (s *Service) GetOwnedClient(ctx context.Context, identity string, clientID uuid.UUID) (*Client, error) {
	ins, err := s.verifiedInsurer(ctx, identity)
	if err != nil {
		return nil, err
	}
	if !ins.OwnsClient(clientID) {
		return nil, fmt.Errorf("%w: client %s", ErrNotFound, clientID)
	}
	return s.clients.GetByID(ctx, clientID)
}

func (s *Service) ListOwnedClients(ctx context.Context, identity string) ([]*Client, error) {
	ins, err := s.verifiedInsurer(ctx, identity)
	if err != nil {
		return nil, err
	}
	return s.clients.ListByInsurer(ctx, ins.ID)
}

func (s *Service) ListOwnedClientBulletins(ctx context.Context, identity string, clientID uuid.UUID) ([]*MedicalBulletin, error) {
	if _, err := s.GetOwnedClient(ctx, identity, clientID); err != nil {
		return nil, err
	}
	return s.bulletins.ListByClient(ctx, clientID)
}

// -- Doctor --

// CreateBulletin records a treatment for the client registered under
// in.ClientEmail.
func (s *Service) CreateBulletin(ctx context.Context, identity string, in BulletinInput) (*MedicalBulletin, error) {
	userID, err := parseIdentity(identity)
	if err != nil {
		return nil, err
	}
	doc, err := s.doctors.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("%w: doctor profile", ErrNotFound)
		}
		return nil, err
	}

	t := in.Treatment
	if strings.TrimSpace(t.Diagnosis) == "" {
		return nil, validationError("diagnosis is required")
	}
	if t.SessionsAttended < 0 {
		return nil, validationError("sessionsAttended must not be negative")
	}
	if t.CaseSeverity < 0 || t.CaseSeverity > maxCaseSeverity {
		return nil, validationError("caseSeverity must be between 0 and %d", maxCaseSeverity)
	}
	if in.Financial.TotalAmountPaid < 0 {
		return nil, validationError("totalAmountPaid must not be negative")
	}
	if in.Financial.Currency == "" {
		in.Financial.Currency = DefaultCurrency
	}

	email := strings.TrimSpace(strings.ToLower(in.ClientEmail))
	if email == "" {
		return nil, validationError("clientEmail is required")
	}
	u, err := s.users.GetByEmail(ctx, email)
	if err != nil || u.Role != RoleClient {
		if err == nil || errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("%w: client with the provided email", ErrNotFound)
		}
		return nil, err
	}
	client, err := s.clients.GetByUserID(ctx, u.ID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("%w: client with the provided email", ErrNotFound)
		}
		return nil, err
	}

	b := &MedicalBulletin{
		DoctorID:  doc.ID,
		ClientID:  client.ID,
		Treatment: t,
		Financial: in.Financial,
	}
	if err := s.bulletins.Create(ctx, b); err != nil {
		return nil, fmt.Errorf("create bulletin: %w", err)
	}
	return b, nil
}

func (s *Service) ListAuthoredBulletins(ctx context.Context, identity string) ([]*MedicalBulletin, error) {
	userID, err := parseIdentity(identity)
	if err != nil {
		return nil, err
	}
	doc, err := s.doctors.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.bulletins.ListByDoctor(ctx, doc.ID)
}

// -- Client --

// ClientForIdentity resolves the client profile owned by identity.
func (s *Service) ClientForIdentity(ctx context.Context, identity string) (*Client, error) {
	userID, err := parseIdentity(identity)
	if err != nil {
		return nil, err
	}
	return s.clients.GetByUserID(ctx, userID)
}

func (s *Service) ListOwnBulletins(ctx context.Context, identity string) ([]*MedicalBulletin, error) {
	client, err := s.ClientForIdentity(ctx, identity)
	if err != nil {
		return nil, err
	}
	return s.bulletins.ListByClient(ctx, client.ID)
}

func (s *Service) GetInsuranceDetails(ctx context.Context, identity string) (*InsuranceDetails, error) {
	client, err := s.ClientForIdentity(ctx, identity)
	if err != nil {
		return nil, err
	}
	ins, err := s.insurers.GetByID(ctx, client.InsurerID)
	if err != nil {
		return nil, fmt.Errorf("insurer of client %s: %w", client.ID, err)
	}
	return &InsuranceDetails{CompanyName: ins.CompanyName, Plan: client.Plan, InsurerID: ins.ID}, nil
}
