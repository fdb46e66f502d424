package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/scalarorg/xtransfer/pkg/db/models"
	"github.com/scalarorg/xtransfer/pkg/types"
	"github.com/scalarorg/xtransfer/pkg/utils"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	TRANSFER_COLLECTION  = "cross_transfers"
	TX_RECORD_COLLECTION = "tx_records"
	MAX_VERSION_CONFLICT = 5
)

var _ HistoryStore = (*MongoStore)(nil)

type mongoTransfer struct {
	models.Transfer `bson:",inline"`
	Version         int64 `bson:"version"`
}

// MongoStore is a HistoryStore on MongoDB. Concurrent writers from other
// processes are detected with a version field and retried.
type MongoStore struct {
	client    *mongo.Client
	transfers *mongo.Collection
	records   *mongo.Collection
	keyLock   *utils.KeyedMutex
	now       func() time.Time
}

func NewMongoClient(ctx context.Context, uri string) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err = client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}
	log.Info().Msg("Connected to MongoDB")
	return client, nil
}

func NewMongoStore(ctx context.Context, client *mongo.Client, database string) (*MongoStore, error) {
	db := client.Database(database)
	store := &MongoStore{
		client:    client,
		transfers: db.Collection(TRANSFER_COLLECTION),
		records:   db.Collection(TX_RECORD_COLLECTION),
		keyLock:   utils.NewKeyedMutex(),
		now:       time.Now,
	}
	_, err := store.transfers.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "secret_hash", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "status", Value: 1}}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create transfer indexes: %w", err)
	}
	_, err = store.records.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "tx_hash", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "secret_hash", Value: 1}}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create tx record indexes: %w", err)
	}
	return store, nil
}

func (s *MongoStore) InsertTransfer(ctx context.Context, transfer *types.Transfer) error {
	doc := mongoTransfer{Transfer: models.TransferFromDomain(transfer)}
	now := s.now().UTC()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now
	if _, err := s.transfers.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return types.Errorf(types.ErrTransferExists, "%s", transfer.SecretHash)
		}
		return fmt.Errorf("failed to insert transfer: %w", err)
	}
	return nil
}

func (s *MongoStore) findTransfer(ctx context.Context, secretHash string) (*mongoTransfer, error) {
	var doc mongoTransfer
	err := s.transfers.FindOne(ctx, bson.M{"secret_hash": secretHash}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, types.Errorf(types.ErrTransferNotFound, "%s", secretHash)
		}
		return nil, fmt.Errorf("failed to find transfer: %w", err)
	}
	return &doc, nil
}

func (s *MongoStore) GetTransfer(ctx context.Context, secretHash string) (*types.Transfer, error) {
	doc, err := s.findTransfer(ctx, secretHash)
	if err != nil {
		return nil, err
	}
	return doc.ToDomain(), nil
}

func transferQuery(filter types.TransferFilter) bson.M {
	var clauses bson.A
	if filter.NonTerminal {
		clauses = append(clauses, bson.M{"status": bson.M{"$nin": terminalStatuses}})
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, 0, len(filter.Statuses))
		for _, st := range filter.Statuses {
			statuses = append(statuses, string(st))
		}
		clauses = append(clauses, bson.M{"status": bson.M{"$in": statuses}})
	}
	if filter.FromChain != "" {
		clauses = append(clauses, bson.M{"from_chain": string(filter.FromChain)})
	}
	switch len(clauses) {
	case 0:
		return bson.M{}
	case 1:
		return clauses[0].(bson.M)
	}
	return bson.M{"$and": clauses}
}

func (s *MongoStore) QueryTransfers(ctx context.Context, filter types.TransferFilter) ([]*types.Transfer, error) {
	query := transferQuery(filter)
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	if filter.Limit > 0 {
		opts.SetLimit(int64(filter.Limit))
	}
	cursor, err := s.transfers.Find(ctx, query, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query transfers: %w", err)
	}
	var docs []mongoTransfer
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode transfers: %w", err)
	}
	result := make([]*types.Transfer, 0, len(docs))
	for i := range docs {
		t := docs[i].ToDomain()
		//addresses are compared case-insensitively, which bson equality cannot express
		if filter.FromAddr != "" && !filter.Match(t) {
			continue
		}
		result = append(result, t)
	}
	return result, nil
}

func (s *MongoStore) UpdateTransfer(ctx context.Context, secretHash string, fn UpdateFunc) (*types.Transfer, bool, error) {
	unlock := s.keyLock.Lock(secretHash)
	defer unlock()
	for attempt := 0; attempt < MAX_VERSION_CONFLICT; attempt++ {
		doc, err := s.findTransfer(ctx, secretHash)
		if err != nil {
			return nil, false, err
		}
		current := doc.ToDomain()
		patch, err := fn(current.Clone())
		if err != nil {
			return current, false, err
		}
		changed, err := patch.Apply(current, s.now().UTC())
		if err != nil || !changed {
			return current, false, err
		}
		next := mongoTransfer{Transfer: models.TransferFromDomain(current), Version: doc.Version + 1}
		res, err := s.transfers.ReplaceOne(ctx, bson.M{"secret_hash": secretHash, "version": doc.Version}, next)
		if err != nil {
			return nil, false, fmt.Errorf("failed to replace transfer: %w", err)
		}
		if res.MatchedCount == 1 {
			return current, true, nil
		}
		log.Debug().Str("secretHash", secretHash).Int("attempt", attempt).
			Msg("[MongoStore] [UpdateTransfer] version conflict, retrying")
	}
	return nil, false, fmt.Errorf("failed to update transfer %s: too many concurrent writers", secretHash)
}

func (s *MongoStore) InsertTxRecord(ctx context.Context, record *types.TxRecord) error {
	doc := models.TxRecordFromDomain(record)
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	now := s.now().UTC()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now
	if _, err := s.records.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil
		}
		return fmt.Errorf("failed to insert tx record: %w", err)
	}
	return nil
}

func (s *MongoStore) UpdateTxRecordStatus(ctx context.Context, txHash string, status types.TxRecordStatus) error {
	res, err := s.records.UpdateOne(ctx, bson.M{"tx_hash": txHash},
		bson.M{"$set": bson.M{"status": string(status), "updated_at": s.now().UTC()}})
	if err != nil {
		return fmt.Errorf("failed to update tx record: %w", err)
	}
	if res.MatchedCount == 0 {
		return types.Errorf(types.ErrTransferNotFound, "tx record %s", txHash)
	}
	return nil
}

func (s *MongoStore) ListTxRecords(ctx context.Context, secretHash string) ([]*types.TxRecord, error) {
	query := bson.M{}
	if secretHash != "" {
		query["secret_hash"] = secretHash
	}
	cursor, err := s.records.Find(ctx, query, options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to list tx records: %w", err)
	}
	var docs []models.TxRecord
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode tx records: %w", err)
	}
	result := make([]*types.TxRecord, 0, len(docs))
	for i := range docs {
		result = append(result, docs[i].ToDomain())
	}
	return result, nil
}

func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}
