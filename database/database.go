// path: database/database.go
package database

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"civicpulse/logging"
)

// Collection names.
const (
	Reports = "reports"
	Rewards = "rewards"
)

var client *mongo.Client
var db *mongo.Database

// Connect establishes a singleton MongoDB connection and makes sure the
// indexes the repositories rely on exist.
func Connect(ctx context.Context) error {
	if client != nil && db != nil {
		return nil
	}
	log := logging.New("database")

	cfg, reason := resolveConfig()
	if getenv("MONGO_DEBUG", "") != "" {
		log.Debug("mongo env snapshot", "env", envSnapshot())
	}

	start := time.Now()
	log.Info("mongo connecting", "mode", cfg.Mode, "uri", redactURI(cfg.URI), "db", cfg.DBName, "reason", reason)

	dctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	c, err := mongo.Connect(dctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return fmt.Errorf("mongo connect: %w", err)
	}
	if err = c.Ping(dctx, nil); err != nil {
		_ = c.Disconnect(context.Background())
		return fmt.Errorf("mongo ping: %w", err)
	}

	client = c
	db = c.Database(cfg.DBName)

	if err := EnsureIndexes(ctx, db); err != nil {
		// The ledger's idempotency depends on the unique owner index.
		if errors.Is(err, errLedgerIndex) {
			return err
		}
		log.Warn("mongo index creation warnings", "error", err)
	}

	log.Info("mongo connected", "elapsed", time.Since(start).Round(time.Millisecond))
	return nil
}

func Disconnect(ctx context.Context) error {
	if client == nil {
		return nil
	}
	defer func() { client, db = nil, nil }()
	return client.Disconnect(ctx)
}

func Col(name string) *mongo.Collection {
	if db == nil {
		panic("database not connected: call database.Connect first")
	}
	return db.Collection(name)
}

// --- internal ---

type config struct {
	Mode   string
	URI    string
	DBName string
}

// resolveConfig returns the chosen config and a human-readable reason.
// Precedence in auto mode: MONGO_URI_REMOTE > MONGO_URI > MONGO_URI_LOCAL.
func resolveConfig() (config, string) {
	mode := strings.ToLower(getenv("MONGO_MODE", "auto"))
	dbname := getenv("MONGO_DB", "civicpulse")

	explicit := strings.TrimSpace(os.Getenv("MONGO_URI"))
	local := getenv("MONGO_URI_LOCAL", "mongodb://localhost:27017")
	remote := strings.TrimSpace(os.Getenv("MONGO_URI_REMOTE"))

	switch mode {
	case "local":
		return config{Mode: "local", URI: chooseFirstNonEmpty(explicit, local), DBName: dbname},
			reasonLocal(explicit, local)
	case "remote":
		if remote != "" {
			return config{Mode: "remote", URI: remote, DBName: dbname}, "MONGO_MODE=remote, using MONGO_URI_REMOTE"
		}
		logging.New("database").Warn("MONGO_MODE=remote but MONGO_URI_REMOTE empty; falling back to local")
		return config{Mode: "local", URI: chooseFirstNonEmpty(explicit, local), DBName: dbname},
			"remote missing, fallback to explicit/local"
	default:
		if remote != "" {
			return config{Mode: "remote", URI: remote, DBName: dbname}, "auto: MONGO_URI_REMOTE present"
		}
		if explicit != "" {
			return config{Mode: "auto", URI: explicit, DBName: dbname}, "auto: MONGO_URI present"
		}
		return config{Mode: "local", URI: local, DBName: dbname}, "auto: fallback to local"
	}
}

var errLedgerIndex = errors.New("rewards owner index")

type index struct {
	col   string
	name  string
	model mongo.IndexModel
}

func indexes() []index {
	return []index{
		{Reports, "created_at", mongo.IndexModel{Keys: bson.D{{Key: "created_at", Value: -1}}}},
		{Reports, "owner_id", mongo.IndexModel{Keys: bson.D{{Key: "owner_id", Value: 1}, {Key: "_id", Value: -1}}}},
		{Reports, "issue_type,status", mongo.IndexModel{Keys: bson.D{{Key: "issue_type", Value: 1}, {Key: "status", Value: 1}}}},
		{Rewards, "owner_id", mongo.IndexModel{
			Keys:    bson.D{{Key: "owner_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		}},
	}
}

// EnsureIndexes creates the report and ledger indexes. A failure on the
// unique ledger index is returned wrapped in errLedgerIndex.
func EnsureIndexes(ctx context.Context, d *mongo.Database) error {
	if d == nil {
		return errors.New("db is nil")
	}
	ctxIdx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var errs []string
	for _, ix := range indexes() {
		if _, err := d.Collection(ix.col).Indexes().CreateOne(ctxIdx, ix.model); err != nil {
			if ix.col == Rewards {
				return fmt.Errorf("%w: %v", errLedgerIndex, err)
			}
			errs = append(errs, ix.col+"."+ix.name+": "+err.Error())
		}
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

// --- utils ---

func redactURI(raw string) string {
	if raw == "" || !strings.Contains(raw, "://") {
		return raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	u.User = url.UserPassword("****", "****")
	return u.String()
}

func getenv(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func chooseFirstNonEmpty(v1, v2 string) string {
	if strings.TrimSpace(v1) != "" {
		return v1
	}
	return v2
}

func reasonLocal(explicit, local string) string {
	if strings.TrimSpace(explicit) != "" {
		return "MONGO_MODE=local with explicit MONGO_URI"
	}
	if local != "" {
		return "MONGO_MODE=local using MONGO_URI_LOCAL/default"
	}
	return "MONGO_MODE=local (no URI provided)"
}

// envSnapshot lists the Mongo settings with credentials redacted.
func envSnapshot() string {
	fields := []string{
		"MONGO_MODE=" + getenv("MONGO_MODE", "auto"),
		"MONGO_DB=" + getenv("MONGO_DB", "civicpulse"),
		"MONGO_URI=" + redactURI(os.Getenv("MONGO_URI")),
		"MONGO_URI_LOCAL=" + redactURI(getenv("MONGO_URI_LOCAL", "mongodb://localhost:27017")),
		"MONGO_URI_REMOTE=" + redactURI(os.Getenv("MONGO_URI_REMOTE")),
	}
	return strings.Join(fields, " ")
}
