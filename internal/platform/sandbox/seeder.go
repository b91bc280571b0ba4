// Package sandbox produces and loads demo data for development environments:
// insurers, doctors, enrolled clients and their medical bulletins. Records
// travel as newline-delimited JSON, optionally gzip-compressed.
package sandbox

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"os"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/klauspost/pgzip"
	"github.com/rs/zerolog"

	"github.com/medyassinekhlif/TrueCare/internal/domain/registry"
)

// ---------------------------------------------------------------------------
// Records
// ---------------------------------------------------------------------------

// Record kinds.
const (
	KindInsurer  = "insurer"
	KindDoctor   = "doctor"
	KindClient   = "client"
	KindBulletin = "bulletin"
)

// Record is one NDJSON line. Exactly one payload is set, matching Kind.
// Clients name the insurer enrolling them and bulletins the doctor writing
// them, both by account email.
type Record struct {
	Kind string `json:"kind"`

	Insurer  *registry.InsurerRegistration `json:"insurer,omitempty"`
	Verified bool                          `json:"verified,omitempty"`

	Doctor *registry.DoctorRegistration `json:"doctor,omitempty"`

	Client       *registry.ClientEnrollment `json:"client,omitempty"`
	InsurerEmail string                     `json:"insurerEmail,omitempty"`

	Bulletin    *registry.BulletinInput `json:"bulletin,omitempty"`
	DoctorEmail string                  `json:"doctorEmail,omitempty"`
}

// SeedConfig controls the volume of generated data.
type SeedConfig struct {
	Insurers           int   `json:"insurers"`
	Doctors            int   `json:"doctors"`
	ClientsPerInsurer  int   `json:"clientsPerInsurer"`
	BulletinsPerClient int   `json:"bulletinsPerClient"`
	Seed               int64 `json:"seed"`
}

// DefaultSeedConfig returns a small demo data set.
func DefaultSeedConfig() SeedConfig {
	return SeedConfig{
		Insurers:           2,
		Doctors:            3,
		ClientsPerInsurer:  5,
		BulletinsPerClient: 3,
	}
}

// SeedResult summarizes a load.
type SeedResult struct {
	Insurers  int           `json:"insurers"`
	Doctors   int           `json:"doctors"`
	Clients   int           `json:"clients"`
	Bulletins int           `json:"bulletins"`
	Skipped   int           `json:"skipped"`
	Duration  time.Duration `json:"duration"`
}

// ---------------------------------------------------------------------------
// DataGenerator
// ---------------------------------------------------------------------------

var (
	firstNames  = []string{"Amira", "Youssef", "Salma", "Karim", "Ines", "Mehdi", "Nour", "Aziz", "Rania", "Hamza"}
	lastNames   = []string{"Ben Salah", "Trabelsi", "Gharbi", "Jaziri", "Mansouri", "Haddad", "Chaabane", "Bouazizi"}
	companies   = []string{"Carthage Mutual", "Medina Assurance", "Sahel Care", "Atlas Health", "Jasmine Insurance"}
	jobs        = []string{"librarian", "engineer", "nurse", "accountant", "driver", "farmer", "pharmacist", "student"}
	specialties = []string{"physiotherapy", "general practice", "cardiology", "orthopedics", "dermatology"}
	diagnoses   = []string{"lumbar strain", "knee sprain", "hypertension follow-up", "seasonal influenza",
		"shoulder tendinitis", "contact dermatitis", "post-operative rehabilitation"}
	treatments = []string{"physiotherapy", "medication", "consultation", "surgery follow-up"}
	exercise   = []string{registry.ExerciseOften, registry.ExerciseSometimes, registry.ExerciseNever}
)

// DataGenerator produces deterministic synthetic records.
type DataGenerator struct {
	rng     *rand.Rand
	counter uint64
}

// NewDataGenerator returns a generator seeded for reproducibility. If seed is
// 0 a time-based seed is chosen.
func NewDataGenerator(seed int64) *DataGenerator {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &DataGenerator{rng: rand.New(rand.NewSource(seed))}
}

func (g *DataGenerator) next() uint64 {
	g.counter++
	return g.counter
}

func (g *DataGenerator) pick(pool []string) string {
	return pool[g.rng.Intn(len(pool))]
}

// digits returns an 8-digit string unique within this generator.
func (g *DataGenerator) digits(prefix int) string {
	return fmt.Sprintf("%d%07d", prefix, g.next())
}

func (g *DataGenerator) email(role string) string {
	return fmt.Sprintf("%s%d@sandbox.truecare.test", role, g.next())
}

func (g *DataGenerator) birthDate() string {
	y := 1950 + g.rng.Intn(55)
	m := 1 + g.rng.Intn(12)
	d := 1 + g.rng.Intn(28)
	return fmt.Sprintf("%04d-%02d-%02d", y, m, d)
}

// GenerateInsurer produces a verified insurer with the default plans.
func (g *DataGenerator) GenerateInsurer() Record {
	return Record{
		Kind: KindInsurer,
		Insurer: &registry.InsurerRegistration{
			Email:       g.email("insurer"),
			PhoneNumber: g.digits(7),
			CompanyName: g.pick(companies),
			Plans:       registry.DefaultPlans(),
		},
		Verified: true,
	}
}

// GenerateDoctor produces a doctor.
func (g *DataGenerator) GenerateDoctor() Record {
	specialty := g.pick(specialties)
	return Record{
		Kind: KindDoctor,
		Doctor: &registry.DoctorRegistration{
			Email:       g.email("doctor"),
			PhoneNumber: g.digits(9),
			FullName:    "Dr. " + g.pick(firstNames) + " " + g.pick(lastNames),
			Specialty:   &specialty,
		},
	}
}

// GenerateClient produces a client enrolled by insurerEmail on one of the
// default plan bands.
func (g *DataGenerator) GenerateClient(insurerEmail string) Record {
	plans := registry.DefaultPlans()
	return Record{
		Kind:         KindClient,
		InsurerEmail: insurerEmail,
		Client: &registry.ClientEnrollment{
			Email:       g.email("client"),
			PhoneNumber: g.digits(2),
			Name:        g.pick(firstNames) + " " + g.pick(lastNames),
			BirthDate:   g.birthDate(),
			NationalID:  g.digits(0),
			Job:         g.pick(jobs),
			Health: registry.Health{
				Smoker:   g.rng.Intn(4) == 0,
				Exercise: g.pick(exercise),
			},
			Plan: registry.ClientPlan{Range: plans[g.rng.Intn(len(plans))].Range},
		},
	}
}

// GenerateBulletin produces a bulletin written by doctorEmail for clientEmail.
func (g *DataGenerator) GenerateBulletin(doctorEmail, clientEmail string) Record {
	kind := g.pick(treatments)
	duration := fmt.Sprintf("%d weeks", 1+g.rng.Intn(12))
	return Record{
		Kind:        KindBulletin,
		DoctorEmail: doctorEmail,
		Bulletin: &registry.BulletinInput{
			ClientEmail: clientEmail,
			Treatment: registry.Treatment{
				Diagnosis:        g.pick(diagnoses),
				SessionsAttended: g.rng.Intn(15),
				Duration:         &duration,
				Type:             &kind,
				CaseSeverity:     g.rng.Intn(6),
			},
			Financial: registry.Financial{
				TotalAmountPaid: float64(50 + g.rng.Intn(2950)),
				Currency:        registry.DefaultCurrency,
			},
		},
	}
}

// Generate builds a complete data set in load order: insurers, doctors,
// clients, then bulletins.
func Generate(cfg SeedConfig) []Record {
	g := NewDataGenerator(cfg.Seed)
	var out []Record

	var insurerEmails, doctorEmails []string
	for i := 0; i < cfg.Insurers; i++ {
		r := g.GenerateInsurer()
		insurerEmails = append(insurerEmails, r.Insurer.Email)
		out = append(out, r)
	}
	for i := 0; i < cfg.Doctors; i++ {
		r := g.GenerateDoctor()
		doctorEmails = append(doctorEmails, r.Doctor.Email)
		out = append(out, r)
	}

	var clientEmails []string
	for _, ins := range insurerEmails {
		for j := 0; j < cfg.ClientsPerInsurer; j++ {
			r := g.GenerateClient(ins)
			clientEmails = append(clientEmails, r.Client.Email)
			out = append(out, r)
		}
	}
	if len(doctorEmails) == 0 {
		return out
	}
	for i, client := range clientEmails {
		for j := 0; j < cfg.BulletinsPerClient; j++ {
			doc := doctorEmails[(i+j)%len(doctorEmails)]
			out = append(out, g.GenerateBulletin(doc, client))
		}
	}
	return out
}

// ---------------------------------------------------------------------------
// NDJSON codec
// ---------------------------------------------------------------------------

// WriteNDJSON writes records one per line.
func WriteNDJSON(w io.Writer, records []Record) error {
	enc := json.NewEncoder(w)
	for i, r := range records {
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("encode record %d: %w", i, err)
		}
	}
	return nil
}

// ReadNDJSON decodes records until EOF.
func ReadNDJSON(r io.Reader) ([]Record, error) {
	dec := json.NewDecoder(r)
	var out []Record
	for {
		var rec Record
		if err := dec.Decode(&rec); err != nil {
			if errors.Is(err, io.EOF) {
				return out, nil
			}
			return nil, fmt.Errorf("decode record %d: %w", len(out)+1, err)
		}
		out = append(out, rec)
	}
}

// ReadFile loads a fixture file. Names ending in ".gz" are decompressed.
func ReadFile(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open fixtures: %w", err)
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := pgzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("open gzip stream %s: %w", path, err)
		}
		defer gz.Close()
		r = gz
	}
	return ReadNDJSON(r)
}

// WriteFile writes a fixture file, gzip-compressed when path ends in ".gz".
func WriteFile(path string, records []Record) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create fixtures: %w", err)
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	if !strings.HasSuffix(path, ".gz") {
		return WriteNDJSON(f, records)
	}
	gz := pgzip.NewWriter(f)
	if err := WriteNDJSON(gz, records); err != nil {
		gz.Close()
		return err
	}
	return gz.Close()
}

// ---------------------------------------------------------------------------
// Seeder
// ---------------------------------------------------------------------------

// Seeder loads records through the registry service so every record passes
// the same validation as an API request.
type Seeder struct {
	registry *registry.Service
	users    registry.UserRepository
	logger   zerolog.Logger
}

// NewSeeder creates a Seeder. users resolves the account emails that clients
// and bulletins refer to.
func NewSeeder(svc *registry.Service, users registry.UserRepository, logger zerolog.Logger) *Seeder {
	return &Seeder{registry: svc, users: users, logger: logger.With().Str("component", "seeder").Logger()}
}

// Load applies records in order. Accounts and clients that already exist are
// counted as skipped; bulletins have no natural key and are always created.
// Any other failure stops the load.
func (s *Seeder) Load(ctx context.Context, records []Record) (*SeedResult, error) {
	start := time.Now()
	result := &SeedResult{}

	for i, rec := range records {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		err := s.apply(ctx, rec, result)
		if errors.Is(err, registry.ErrConflict) {
			result.Skipped++
			s.logger.Debug().Int("record", i+1).Str("kind", rec.Kind).Err(err).Msg("record already present, skipping")
			continue
		}
		if err != nil {
			return result, fmt.Errorf("record %d (%s): %w", i+1, rec.Kind, err)
		}
	}

	result.Duration = time.Since(start)
	s.logger.Info().
		Int("insurers", result.Insurers).
		Int("doctors", result.Doctors).
		Int("clients", result.Clients).
		Int("bulletins", result.Bulletins).
		Int("skipped", result.Skipped).
		Dur("duration", result.Duration).
		Msg("seed complete")
	return result, nil
}

func (s *Seeder) apply(ctx context.Context, rec Record, result *SeedResult) error {
	switch rec.Kind {
	case KindInsurer:
		if rec.Insurer == nil {
			return fmt.Errorf("%w: insurer payload missing", registry.ErrValidation)
		}
		ins, err := s.registry.RegisterInsurer(ctx, *rec.Insurer)
		if err != nil {
			return err
		}
		if rec.Verified {
			if _, err := s.registry.VerifyInsurer(ctx, ins.ID); err != nil {
				return err
			}
		}
		result.Insurers++

	case KindDoctor:
		if rec.Doctor == nil {
			return fmt.Errorf("%w: doctor payload missing", registry.ErrValidation)
		}
		if _, err := s.registry.RegisterDoctor(ctx, *rec.Doctor); err != nil {
			return err
		}
		result.Doctors++

	case KindClient:
		if rec.Client == nil {
			return fmt.Errorf("%w: client payload missing", registry.ErrValidation)
		}
		identity, err := s.identity(ctx, rec.InsurerEmail)
		if err != nil {
			return err
		}
		if _, err := s.registry.AddClient(ctx, identity, *rec.Client); err != nil {
			return err
		}
		result.Clients++

	case KindBulletin:
		if rec.Bulletin == nil {
			return fmt.Errorf("%w: bulletin payload missing", registry.ErrValidation)
		}
		identity, err := s.identity(ctx, rec.DoctorEmail)
		if err != nil {
			return err
		}
		if _, err := s.registry.CreateBulletin(ctx, identity, *rec.Bulletin); err != nil {
			return err
		}
		result.Bulletins++

	default:
		return fmt.Errorf("%w: unknown record kind %q", registry.ErrValidation, rec.Kind)
	}
	return nil
}

func (s *Seeder) identity(ctx context.Context, email string) (string, error) {
	u, err := s.users.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return "", fmt.Errorf("resolve account %q: %w", email, err)
	}
	return u.ID.String(), nil
}
