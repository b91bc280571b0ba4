package reimbursement

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/medyassinekhlif/TrueCare/internal/domain/registry"
	"github.com/medyassinekhlif/TrueCare/internal/platform/predictor"
)

// Predictor computes a reimbursement prediction for one bulletin.
// *predictor.Client satisfies it.
type Predictor interface {
	Predict(ctx context.Context, clientID, bulletinID string) (*predictor.Response, error)
}

// Service is the reimbursement estimator. Registry records are only read;
// the estimation store is only inserted into.
type Service struct {
	insurers    registry.InsurerRepository
	clients     registry.ClientRepository
	bulletins   registry.BulletinRepository
	users       registry.UserRepository
	estimations EstimationRepository
	predictor   Predictor
	logger      zerolog.Logger
	inflight    singleflight.Group

	// Shared computations ignore caller cancellation; sharedTimeout bounds
	// them instead.
	sharedTimeout time.Duration
	now           func() time.Time
}

// DefaultSharedTimeout bounds one shared estimate computation.
const DefaultSharedTimeout = 2 * time.Minute

func NewService(reg *registry.Repos, estimations EstimationRepository, p Predictor, logger zerolog.Logger) *Service {
	return &Service{
		insurers:    reg.Insurers,
		clients:     reg.Clients,
		bulletins:   reg.Bulletins,
		users:       reg.Users,
		estimations: estimations,
		predictor:   p,
		logger:      logger.With().Str("component", "estimator").Logger(),

		sharedTimeout: DefaultSharedTimeout,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

func parseID(kind, raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %s %q", ErrInvalidIdentifier, kind, raw)
	}
	return id, nil
}

// notFoundAs converts a registry miss into sentinel, passing other errors
// through with context.
func notFoundAs(err error, sentinel error, what string) error {
	if errors.Is(err, registry.ErrNotFound) {
		return fmt.Errorf("%w: %s", sentinel, what)
	}
	return fmt.Errorf("load %s: %w", what, err)
}

// verifiedInsurer resolves the insurer owned by identity and checks it is
// verified.
func (s *Service) verifiedInsurer(ctx context.Context, identity string) (*registry.Insurer, error) {
	userID, err := uuid.Parse(identity)
	if err != nil {
		return nil, fmt.Errorf("%w: identity %q", ErrInsurerNotFound, identity)
	}
	ins, err := s.insurers.GetByUserID(ctx, userID)
	if err != nil {
		return nil, notFoundAs(err, ErrInsurerNotFound, "insurer for "+identity)
	}
	if !ins.Verified {
		return nil, ErrInsurerNotVerified
	}
	return ins, nil
}

// ownedClient loads the client and checks the insurer's client list holds it.
func (s *Service) ownedClient(ctx context.Context, ins *registry.Insurer, clientID uuid.UUID) (*registry.Client, error) {
	client, err := s.clients.GetByID(ctx, clientID)
	if err != nil {
		return nil, notFoundAs(err, ErrClientNotFound, "client "+clientID.String())
	}
	if !ins.OwnsClient(client.ID) {
		return nil, fmt.Errorf("%w: client %s", ErrClientNotAssociated, client.ID)
	}
	return client, nil
}

// clientBulletin loads the bulletin and checks it belongs to client.
func (s *Service) clientBulletin(ctx context.Context, client *registry.Client, bulletinID uuid.UUID) (*registry.MedicalBulletin, error) {
	b, err := s.bulletins.GetByID(ctx, bulletinID)
	if err != nil {
		return nil, notFoundAs(err, ErrBulletinNotFound, "bulletin "+bulletinID.String())
	}
	if b.ClientID != client.ID {
		return nil, fmt.Errorf("%w: bulletin %s", ErrBulletinNotAssociated, b.ID)
	}
	return b, nil
}

// Estimate returns the estimation for a bulletin, computing it with the
// predictor when none exists. Ownership of the client and bulletin is
// checked before the store or the predictor is consulted.
//
// Concurrent calls for the same bulletin in this process share one
// computation. Only the caller that started it sees AlreadyExisted false.
// A caller whose ctx ends stops waiting with ctx.Err() while the
// computation carries on for the others. Across processes the store's
// unique key on the bulletin decides the winner and the losers return the
// winner's record with AlreadyExisted set.
func (s *Service) Estimate(ctx context.Context, insurerIdentity, clientID, bulletinID string) (*Result, error) {
	cid, err := parseID("clientId", clientID)
	if err != nil {
		return nil, err
	}
	bid, err := parseID("medicalBulletinId", bulletinID)
	if err != nil {
		return nil, err
	}

	ins, err := s.verifiedInsurer(ctx, insurerIdentity)
	if err != nil {
		return nil, err
	}
	client, err := s.ownedClient(ctx, ins, cid)
	if err != nil {
		return nil, err
	}
	bulletin, err := s.clientBulletin(ctx, client, bid)
	if err != nil {
		return nil, err
	}

	led := false
	ch := s.inflight.DoChan(bid.String(), func() (interface{}, error) {
		led = true
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.sharedTimeout)
		defer cancel()
		return s.estimateOnce(sctx, ins, client, bulletin)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		res := *r.Val.(*Result)
		if !led {
			res.AlreadyExisted = true
		}
		return &res, nil
	}
}

func (s *Service) estimateOnce(ctx context.Context, ins *registry.Insurer, client *registry.Client, bulletin *registry.MedicalBulletin) (*Result, error) {
	existing, err := s.estimations.GetByBulletin(ctx, bulletin.ID)
	switch {
	case err == nil:
		return s.result(existing, client, bulletin, true), nil
	case !errors.Is(err, ErrEstimationNotFound):
		return nil, fmt.Errorf("lookup estimation for bulletin %s: %w", bulletin.ID, err)
	}

	pred, err := s.predict(ctx, client.ID, bulletin.ID)
	if err != nil {
		return nil, err
	}

	user, err := s.users.GetByID(ctx, client.UserID)
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			s.logger.Error().
				Str("client_id", client.ID.String()).
				Str("user_id", client.UserID.String()).
				Msg("client references a missing account")
			return nil, fmt.Errorf("%w: client %s user %s", ErrClientUserNotFound, client.ID, client.UserID)
		}
		return nil, fmt.Errorf("load client account: %w", err)
	}

	est := &Estimation{
		InsurerID:           ins.ID,
		ClientID:            client.ID,
		MedicalBulletinID:   bulletin.ID,
		ClientName:          client.Name,
		ClientEmail:         user.Email,
		ReimbursementClass:  pred.Class,
		Confidence:          pred.Confidence,
		ReimbursementAmount: pred.Amount,
		ModelVersion:        pred.ModelVersion,
		CreatedBy:           ins.UserID,
		CreatedAt:           s.now(),
	}
	if err := s.estimations.Create(ctx, est); err != nil {
		if !errors.Is(err, ErrDuplicateEstimation) {
			return nil, fmt.Errorf("persist estimation: %w", err)
		}
		s.logger.Warn().
			Str("bulletin_id", bulletin.ID.String()).
			Msg("estimation written concurrently by another request, returning stored record")
		stored, gerr := s.estimations.GetByBulletin(ctx, bulletin.ID)
		if gerr != nil {
			return nil, fmt.Errorf("load concurrently written estimation: %w", gerr)
		}
		return s.result(stored, client, bulletin, true), nil
	}

	s.logger.Info().
		Str("bulletin_id", bulletin.ID.String()).
		Str("class", est.ReimbursementClass).
		Float64("amount", est.ReimbursementAmount).
		Str("model_version", est.ModelVersion).
		Msg("estimation created")
	return s.result(est, client, bulletin, false), nil
}

func (s *Service) result(e *Estimation, client *registry.Client, bulletin *registry.MedicalBulletin, existed bool) *Result {
	return &Result{
		Estimation:      e,
		TotalAmountPaid: bulletin.Financial.TotalAmountPaid,
		Plan:            client.Plan,
		AlreadyExisted:  existed,
	}
}

func (s *Service) predict(ctx context.Context, clientID, bulletinID uuid.UUID) (*Prediction, error) {
	resp, err := s.predictor.Predict(ctx, clientID.String(), bulletinID.String())
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("estimate bulletin %s: %w", bulletinID, ctxErr)
		}
		s.logger.Error().Err(err).
			Str("bulletin_id", bulletinID.String()).
			Msg("predictor call failed")
		return nil, fmt.Errorf("%w: %w", ErrPredictorUnavailable, err)
	}
	pred, err := ValidatePrediction(resp)
	if err != nil {
		s.logger.Error().Err(err).
			Str("bulletin_id", bulletinID.String()).
			Msg("predictor returned an unusable response")
		return nil, err
	}
	return pred, nil
}

func finite(f float64) bool { return !math.IsNaN(f) && !math.IsInf(f, 0) }

// ValidatePrediction checks a raw predictor response. reimbursementClass and
// reimbursementAmount are required; confidence defaults to 0 and
// modelVersion to "unknown".
func ValidatePrediction(resp *predictor.Response) (*Prediction, error) {
	if resp == nil {
		return nil, fmt.Errorf("%w: empty body", ErrPredictorResponseInvalid)
	}
	if resp.ReimbursementClass == nil || *resp.ReimbursementClass == "" {
		return nil, fmt.Errorf("%w: missing reimbursementClass", ErrPredictorResponseInvalid)
	}
	if !validClasses[*resp.ReimbursementClass] {
		return nil, fmt.Errorf("%w: unknown reimbursementClass %q", ErrPredictorResponseInvalid, *resp.ReimbursementClass)
	}
	if resp.ReimbursementAmount == nil {
		return nil, fmt.Errorf("%w: missing reimbursementAmount", ErrPredictorResponseInvalid)
	}
	amount := *resp.ReimbursementAmount
	if !finite(amount) || amount < 0 {
		return nil, fmt.Errorf("%w: reimbursementAmount %v", ErrPredictorResponseInvalid, amount)
	}

	pred := &Prediction{Class: *resp.ReimbursementClass, Amount: amount, ModelVersion: UnknownModelVersion}
	if resp.Confidence != nil {
		c := *resp.Confidence
		if !finite(c) || c < 0 || c > 1 {
			return nil, fmt.Errorf("%w: confidence %v outside [0, 1]", ErrPredictorResponseInvalid, c)
		}
		pred.Confidence = c
	}
	if resp.ModelVersion != nil && *resp.ModelVersion != "" {
		pred.ModelVersion = *resp.ModelVersion
	}
	return pred, nil
}

// ListEstimationsForClient returns every estimation of a client owned by
// the calling insurer, newest first.
func (s *Service) ListEstimationsForClient(ctx context.Context, insurerIdentity, clientID string) ([]*Estimation, error) {
	cid, err := parseID("clientId", clientID)
	if err != nil {
		return nil, err
	}
	ins, err := s.verifiedInsurer(ctx, insurerIdentity)
	if err != nil {
		return nil, err
	}
	client, err := s.ownedClient(ctx, ins, cid)
	if err != nil {
		return nil, err
	}
	items, err := s.estimations.ListByClient(ctx, client.ID)
	if err != nil {
		return nil, fmt.Errorf("list estimations: %w", err)
	}
	return items, nil
}

// GetEstimationForBulletin returns the bulletin's estimation, if any, with
// the display fields of Result. A bulletin without an estimation is not an
// error.
func (s *Service) GetEstimationForBulletin(ctx context.Context, insurerIdentity, bulletinID string) (*Lookup, error) {
	bid, err := parseID("medicalBulletinId", bulletinID)
	if err != nil {
		return nil, err
	}
	ins, err := s.verifiedInsurer(ctx, insurerIdentity)
	if err != nil {
		return nil, err
	}
	bulletin, err := s.bulletins.GetByID(ctx, bid)
	if err != nil {
		return nil, notFoundAs(err, ErrBulletinNotFound, "bulletin "+bid.String())
	}
	client, err := s.ownedClient(ctx, ins, bulletin.ClientID)
	if err != nil {
		return nil, err
	}

	lookup := &Lookup{TotalAmountPaid: bulletin.Financial.TotalAmountPaid, Plan: client.Plan}
	est, err := s.estimations.GetByBulletin(ctx, bulletin.ID)
	switch {
	case err == nil:
		lookup.Estimation = est
	case !errors.Is(err, ErrEstimationNotFound):
		return nil, fmt.Errorf("lookup estimation: %w", err)
	}
	return lookup, nil
}

// GetClientBulletin returns one of the calling client's bulletins with its
// estimation, if any. It never calls the predictor.
func (s *Service) GetClientBulletin(ctx context.Context, clientIdentity, bulletinID string) (*BulletinView, error) {
	bid, err := parseID("medicalBulletinId", bulletinID)
	if err != nil {
		return nil, err
	}
	userID, err := uuid.Parse(clientIdentity)
	if err != nil {
		return nil, fmt.Errorf("%w: identity %q", ErrClientNotFound, clientIdentity)
	}
	client, err := s.clients.GetByUserID(ctx, userID)
	if err != nil {
		return nil, notFoundAs(err, ErrClientNotFound, "client for "+clientIdentity)
	}
	bulletin, err := s.clientBulletin(ctx, client, bid)
	if err != nil {
		return nil, err
	}

	view := &BulletinView{Bulletin: bulletin}
	est, err := s.estimations.GetByBulletin(ctx, bulletin.ID)
	switch {
	case err == nil:
		view.Estimation = est
	case !errors.Is(err, ErrEstimationNotFound):
		return nil, fmt.Errorf("lookup estimation: %w", err)
	}
	return view, nil
}
