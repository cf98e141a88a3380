package reports

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"civicpulse/models"
)

type reportDoc struct {
	ID            primitive.ObjectID `bson:"_id,omitempty"`
	models.Report `bson:",inline"`
}

func (d reportDoc) toModel() models.Report {
	r := d.Report
	r.ID = d.ID.Hex()
	return r
}

// MongoRepository stores reports in a MongoDB collection.
type MongoRepository struct {
	col *mongo.Collection
	now func() time.Time
}

func NewMongoRepository(col *mongo.Collection) *MongoRepository {
	return &MongoRepository{col: col, now: time.Now}
}

func (m *MongoRepository) Create(ctx context.Context, in models.NewReport) (models.Report, error) {
	// Mongo stores millisecond precision.
	now := m.now().UTC().Truncate(time.Millisecond)
	doc := reportDoc{Report: newReport("", in, now)}

	res, err := m.col.InsertOne(ctx, doc)
	if err != nil {
		return models.Report{}, fmt.Errorf("insert report: %w", err)
	}
	doc.ID = res.InsertedID.(primitive.ObjectID)
	return doc.toModel(), nil
}

func (m *MongoRepository) Get(ctx context.Context, id string) (models.Report, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return models.Report{}, ErrNotFound
	}
	var doc reportDoc
	if err := m.col.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.Report{}, ErrNotFound
		}
		return models.Report{}, err
	}
	return doc.toModel(), nil
}

func (m *MongoRepository) List(ctx context.Context, q Query) ([]models.Report, string, error) {
	filter := bson.M{}
	if q.OwnerID != "" {
		filter["owner_id"] = q.OwnerID
	}
	if q.IssueType != "" {
		filter["issue_type"] = q.IssueType
	}
	if q.Status != "" {
		filter["status"] = q.Status
	}
	if q.Cursor != "" {
		oid, err := primitive.ObjectIDFromHex(q.Cursor)
		if err != nil {
			return nil, "", ErrInvalidCursor
		}
		filter["_id"] = bson.M{"$lt": oid}
	}

	limit := q.limit()
	findOpts := options.Find().SetSort(bson.D{{Key: "_id", Value: -1}}).SetLimit(int64(limit + 1))

	cur, err := m.col.Find(ctx, filter, findOpts)
	if err != nil {
		return nil, "", err
	}
	defer cur.Close(ctx)

	items := make([]models.Report, 0, limit)
	var nextCursor string
	for cur.Next(ctx) {
		var doc reportDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, "", err
		}
		if len(items) == limit {
			nextCursor = items[len(items)-1].ID
			break
		}
		items = append(items, doc.toModel())
	}
	if err := cur.Err(); err != nil {
		return nil, "", err
	}
	return items, nextCursor, nil
}

func (m *MongoRepository) UpdateStatus(ctx context.Context, id string, to models.Status) (models.Report, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return models.Report{}, ErrNotFound
	}
	if !to.Valid() {
		return models.Report{}, ErrStatusConflict
	}

	// The "from" guard makes the transition a single conditional write.
	filter := bson.M{"_id": oid, "status": bson.M{"$in": fromStatuses(to)}}
	update := bson.M{"$set": bson.M{"status": to, "updated_at": m.now().UTC()}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var doc reportDoc
	err = m.col.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		if _, gerr := m.Get(ctx, id); gerr != nil {
			return models.Report{}, gerr
		}
		return models.Report{}, ErrStatusConflict
	}
	if err != nil {
		return models.Report{}, err
	}
	return doc.toModel(), nil
}
