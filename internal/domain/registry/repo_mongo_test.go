package registry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"
)

func TestMapMongoError(t *testing.T) {
	dup := mongo.WriteException{WriteErrors: []mongo.WriteError{{Code: 11000, Message: "E11000 duplicate key error"}}}
	other := errors.New("socket closed")

	if err := mapMongoError(nil); err != nil {
		t.Errorf("nil: got %v", err)
	}
	if err := mapMongoError(mongo.ErrNoDocuments); !errors.Is(err, ErrNotFound) {
		t.Errorf("no documents: expected ErrNotFound, got %v", err)
	}
	if err := mapMongoError(dup); !errors.Is(err, ErrConflict) {
		t.Errorf("duplicate key: expected ErrConflict, got %v", err)
	}
	if err := mapMongoError(other); err != other {
		t.Errorf("other errors pass through, got %v", err)
	}
}

func TestRegistryReposMongo(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	ns := func(mt *mtest.T) string { return mt.Coll.Database().Name() + "." + mt.Coll.Name() }

	mt.Run("user email taken", func(mt *mtest.T) {
		repo := &userRepoMongo{coll: mt.Coll}
		mt.AddMockResponses(mtest.CreateWriteErrorsResponse(mtest.WriteError{
			Index:   0,
			Code:    11000,
			Message: "E11000 duplicate key error collection: truecare.users index: users_email_unique",
		}))

		err := repo.Create(context.Background(), &User{Email: "insurer@example.com", Role: RoleInsurer})
		if !errors.Is(err, ErrConflict) {
			mt.Errorf("expected ErrConflict, got %v", err)
		}
	})

	mt.Run("user missing", func(mt *mtest.T) {
		repo := &userRepoMongo{coll: mt.Coll}
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns(mt), mtest.FirstBatch))

		if _, err := repo.GetByEmail(context.Background(), "nobody@example.com"); !errors.Is(err, ErrNotFound) {
			mt.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	mt.Run("insurer with clients", func(mt *mtest.T) {
		repo := &insurerRepoMongo{coll: mt.Coll}
		id, userID, clientID := uuid.New(), uuid.New(), uuid.New()
		created := time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns(mt), mtest.FirstBatch, bson.D{
			{Key: "_id", Value: id.String()},
			{Key: "userId", Value: userID.String()},
			{Key: "companyName", Value: "Star Assurances"},
			{Key: "verified", Value: true},
			{Key: "plans", Value: bson.A{bson.D{
				{Key: "name", Value: "Gold"},
				{Key: "range", Value: bson.D{{Key: "min", Value: 80.0}, {Key: "max", Value: 95.0}}},
				{Key: "maxCoverage", Value: 5000.0},
			}}},
			{Key: "clients", Value: bson.A{clientID.String()}},
			{Key: "createdAt", Value: created},
			{Key: "updatedAt", Value: created},
		}))

		ins, err := repo.GetByUserID(context.Background(), userID)
		if err != nil {
			mt.Fatalf("unexpected error: %v", err)
		}
		if ins.ID != id || !ins.Verified || !ins.OwnsClient(clientID) {
			mt.Errorf("unexpected insurer %+v", ins)
		}
		if len(ins.Plans) != 1 || ins.Plans[0].MaxCoverage != 5000 {
			mt.Errorf("unexpected plans %+v", ins.Plans)
		}
	})

	mt.Run("add client to unknown insurer", func(mt *mtest.T) {
		repo := &insurerRepoMongo{coll: mt.Coll}
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: 0},
			bson.E{Key: "nModified", Value: 0},
		))

		if err := repo.AddClient(context.Background(), uuid.New(), uuid.New()); !errors.Is(err, ErrNotFound) {
			mt.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	mt.Run("national id taken", func(mt *mtest.T) {
		repo := &clientRepoMongo{coll: mt.Coll}
		mt.AddMockResponses(mtest.CreateWriteErrorsResponse(mtest.WriteError{
			Index:   0,
			Code:    11000,
			Message: "E11000 duplicate key error collection: truecare.clients index: clients_national_id_unique",
		}))

		c := &Client{UserID: uuid.New(), InsurerID: uuid.New(), Name: "Amira", NationalID: "09876543"}
		if err := repo.Create(context.Background(), c); !errors.Is(err, ErrConflict) {
			mt.Errorf("expected ErrConflict, got %v", err)
		}
	})
}
