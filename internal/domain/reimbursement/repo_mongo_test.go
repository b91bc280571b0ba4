package reimbursement

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"
)

func sampleEstimation() *Estimation {
	return &Estimation{
		ID:                  uuid.New(),
		InsurerID:           uuid.New(),
		ClientID:            uuid.New(),
		MedicalBulletinID:   uuid.New(),
		ClientName:          "Amira Ben Salah",
		ClientEmail:         "amira@example.com",
		ReimbursementClass:  ClassHigh,
		Confidence:          0.9,
		ReimbursementAmount: 640,
		ModelVersion:        "v2",
		CreatedBy:           uuid.New(),
		CreatedAt:           time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC),
	}
}

// estimationBSON renders e the way the repository stores it.
func estimationBSON(t *testing.T, e *Estimation) bson.D {
	t.Helper()
	raw, err := bson.Marshal(newEstimationDoc(e))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var d bson.D
	if err := bson.Unmarshal(raw, &d); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return d
}

func namespace(mt *mtest.T) string {
	return mt.Coll.Database().Name() + "." + mt.Coll.Name()
}

func TestEstimationRepoMongo(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("create", func(mt *mtest.T) {
		repo := &estimationRepoMongo{coll: mt.Coll}
		mt.AddMockResponses(mtest.CreateSuccessResponse())

		e := sampleEstimation()
		e.ID = uuid.Nil
		if err := repo.Create(context.Background(), e); err != nil {
			mt.Fatalf("unexpected error: %v", err)
		}
		if e.ID == uuid.Nil {
			mt.Error("expected an id to be assigned")
		}
	})

	mt.Run("create duplicate bulletin", func(mt *mtest.T) {
		repo := &estimationRepoMongo{coll: mt.Coll}
		mt.AddMockResponses(mtest.CreateWriteErrorsResponse(mtest.WriteError{
			Index:   0,
			Code:    11000,
			Message: "E11000 duplicate key error collection: truecare.estimations index: estimations_bulletin_unique",
		}))

		err := repo.Create(context.Background(), sampleEstimation())
		if !errors.Is(err, ErrDuplicateEstimation) {
			mt.Errorf("expected ErrDuplicateEstimation, got %v", err)
		}
	})

	mt.Run("create other write error", func(mt *mtest.T) {
		repo := &estimationRepoMongo{coll: mt.Coll}
		mt.AddMockResponses(mtest.CreateWriteErrorsResponse(mtest.WriteError{Index: 0, Code: 121, Message: "Document failed validation"}))

		err := repo.Create(context.Background(), sampleEstimation())
		if err == nil || errors.Is(err, ErrDuplicateEstimation) {
			mt.Errorf("expected a plain write error, got %v", err)
		}
	})

	mt.Run("get by bulletin", func(mt *mtest.T) {
		repo := &estimationRepoMongo{coll: mt.Coll}
		want := sampleEstimation()
		mt.AddMockResponses(mtest.CreateCursorResponse(0, namespace(mt), mtest.FirstBatch, estimationBSON(mt.T, want)))

		got, err := repo.GetByBulletin(context.Background(), want.MedicalBulletinID)
		if err != nil {
			mt.Fatalf("unexpected error: %v", err)
		}
		if got.ID != want.ID || got.MedicalBulletinID != want.MedicalBulletinID || got.CreatedBy != want.CreatedBy {
			mt.Errorf("ids changed: got %+v", got)
		}
		if got.ReimbursementAmount != 640 || got.ReimbursementClass != ClassHigh || !got.CreatedAt.Equal(want.CreatedAt) {
			mt.Errorf("fields changed: got %+v", got)
		}
	})

	mt.Run("get by bulletin missing", func(mt *mtest.T) {
		repo := &estimationRepoMongo{coll: mt.Coll}
		mt.AddMockResponses(mtest.CreateCursorResponse(0, namespace(mt), mtest.FirstBatch))

		_, err := repo.GetByBulletin(context.Background(), uuid.New())
		if !errors.Is(err, ErrEstimationNotFound) {
			mt.Errorf("expected ErrEstimationNotFound, got %v", err)
		}
	})

	mt.Run("stored id is not a uuid", func(mt *mtest.T) {
		repo := &estimationRepoMongo{coll: mt.Coll}
		doc := estimationBSON(mt.T, sampleEstimation())
		for i := range doc {
			if doc[i].Key == "clientId" {
				doc[i].Value = "65f1c0ffee"
			}
		}
		mt.AddMockResponses(mtest.CreateCursorResponse(0, namespace(mt), mtest.FirstBatch, doc))

		if _, err := repo.GetByBulletin(context.Background(), uuid.New()); err == nil {
			mt.Error("expected an error for a non-uuid id")
		}
	})

	mt.Run("list by client", func(mt *mtest.T) {
		repo := &estimationRepoMongo{coll: mt.Coll}
		first, second := sampleEstimation(), sampleEstimation()
		second.ClientID = first.ClientID
		mt.AddMockResponses(mtest.CreateCursorResponse(0, namespace(mt), mtest.FirstBatch,
			estimationBSON(mt.T, first), estimationBSON(mt.T, second)))

		items, err := repo.ListByClient(context.Background(), first.ClientID)
		if err != nil {
			mt.Fatalf("unexpected error: %v", err)
		}
		if len(items) != 2 || items[0].ID != first.ID || items[1].ID != second.ID {
			mt.Errorf("unexpected items %+v", items)
		}
	})
}

func TestMongoIndexes_BulletinUnique(t *testing.T) {
	for _, idx := range MongoIndexes() {
		if idx.Name != "estimations_bulletin_unique" {
			continue
		}
		if !idx.Unique || idx.Collection != collEstimations {
			t.Errorf("expected a unique index on %s, got %+v", collEstimations, idx)
		}
		return
	}
	t.Error("missing estimations_bulletin_unique index")
}
