package rewards

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"civicpulse/models"
)

type accountDoc struct {
	models.RewardAccount `bson:",inline"`
	AppliedKeys          []string `bson:"applied_keys,omitempty"`
}

// MongoLedger keeps one document per owner. The collection needs a unique
// index on owner_id (database.EnsureIndexes creates it).
type MongoLedger struct {
	col *mongo.Collection
	now func() time.Time
}

func NewMongoLedger(col *mongo.Collection) *MongoLedger {
	return &MongoLedger{col: col, now: time.Now}
}

// upsertAttempts bounds the loop that settles concurrent first credits for a
// brand-new owner racing on the unique index.
const upsertAttempts = 3

func (m *MongoLedger) Credit(ctx context.Context, e Entry) (models.RewardAccount, bool, error) {
	if err := e.Validate(); err != nil {
		return models.RewardAccount{}, false, err
	}

	// The filter only matches accounts that have not seen this key yet, so
	// a replay either finds nothing to update or collides on owner_id.
	filter := bson.M{"owner_id": e.OwnerID, "applied_keys": bson.M{"$ne": e.Key}}
	update := creditPipeline(e, m.now().UTC().Truncate(time.Millisecond))
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After).
		SetProjection(bson.M{"applied_keys": 0})

	for attempt := 0; attempt < upsertAttempts; attempt++ {
		var doc accountDoc
		err := m.col.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc)
		if err == nil {
			return normalize(doc.RewardAccount), true, nil
		}
		if !mongo.IsDuplicateKeyError(err) {
			return models.RewardAccount{}, false, fmt.Errorf("mongo credit: %w", err)
		}

		seen, acct, ferr := m.lookup(ctx, e.OwnerID, e.Key)
		if ferr != nil {
			return models.RewardAccount{}, false, ferr
		}
		if seen {
			return acct, false, nil
		}
	}
	return models.RewardAccount{}, false, fmt.Errorf("mongo credit: owner %s: upsert kept colliding", e.OwnerID)
}

func (m *MongoLedger) lookup(ctx context.Context, ownerID, key string) (bool, models.RewardAccount, error) {
	var doc accountDoc
	err := m.col.FindOne(ctx, bson.M{"owner_id": ownerID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return false, models.RewardAccount{}, nil
	}
	if err != nil {
		return false, models.RewardAccount{}, err
	}
	for _, k := range doc.AppliedKeys {
		if k == key {
			return true, normalize(doc.RewardAccount), nil
		}
	}
	return false, normalize(doc.RewardAccount), nil
}

func (m *MongoLedger) Account(ctx context.Context, ownerID string) (models.RewardAccount, error) {
	var acct models.RewardAccount
	opts := options.FindOne().SetProjection(bson.M{"applied_keys": 0})
	err := m.col.FindOne(ctx, bson.M{"owner_id": ownerID}, opts).Decode(&acct)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.RewardAccount{OwnerID: ownerID, Medals: []string{}}, nil
	}
	if err != nil {
		return models.RewardAccount{}, err
	}
	return normalize(acct), nil
}

func normalize(a models.RewardAccount) models.RewardAccount {
	if a.Medals == nil {
		a.Medals = []string{}
	}
	SortMedals(a.Medals)
	return a
}

// creditPipeline builds the update applied in one document write: counters
// move together, then medals are recomputed from the new credit total and
// unioned with the ones already held.
func creditPipeline(e Entry, now time.Time) mongo.Pipeline {
	total, resolved := e.counters()
	ifNull := func(field string, def any) bson.D {
		return bson.D{{Key: "$ifNull", Value: bson.A{field, def}}}
	}
	add := func(field string, n int64) bson.D {
		return bson.D{{Key: "$add", Value: bson.A{ifNull(field, int64(0)), n}}}
	}

	counters := bson.D{{Key: "$set", Value: bson.D{
		{Key: "owner_id", Value: e.OwnerID},
		{Key: "credits", Value: add("$credits", e.Amount)},
		{Key: "total_reports", Value: add("$total_reports", total)},
		{Key: "resolved_reports", Value: add("$resolved_reports", resolved)},
		{Key: "applied_keys", Value: bson.D{{Key: "$concatArrays", Value: bson.A{
			ifNull("$applied_keys", bson.A{}),
			bson.A{e.Key},
		}}}},
		{Key: "updated_at", Value: now},
	}}}

	ladder := bson.A{}
	for _, m := range Ladder {
		ladder = append(ladder, m)
	}
	last := Ladder[len(Ladder)-1]
	earnedCount := bson.D{{Key: "$toInt", Value: bson.D{{Key: "$floor", Value: bson.D{
		{Key: "$divide", Value: bson.A{"$credits", MedalStep}},
	}}}}}
	medalName := bson.D{{Key: "$cond", Value: bson.A{
		bson.D{{Key: "$lte", Value: bson.A{"$$k", len(Ladder)}}},
		bson.D{{Key: "$arrayElemAt", Value: bson.A{ladder, bson.D{{Key: "$subtract", Value: bson.A{"$$k", 1}}}}}},
		bson.D{{Key: "$concat", Value: bson.A{
			last + "_",
			bson.D{{Key: "$toString", Value: bson.D{{Key: "$multiply", Value: bson.A{"$$k", MedalStep}}}}},
		}}},
	}}}
	earned := bson.D{{Key: "$map", Value: bson.D{
		{Key: "input", Value: bson.D{{Key: "$range", Value: bson.A{1, bson.D{{Key: "$add", Value: bson.A{earnedCount, 1}}}}}}},
		{Key: "as", Value: "k"},
		{Key: "in", Value: medalName},
	}}}

	medals := bson.D{{Key: "$set", Value: bson.D{
		{Key: "medals", Value: bson.D{{Key: "$setUnion", Value: bson.A{ifNull("$medals", bson.A{}), earned}}}},
	}}}

	return mongo.Pipeline{counters, medals}
}
