// Package mongostore implements store.Store on MongoDB. Collections are reached
// through CollectionProvider so tests can substitute fakes.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/pennywise-dev/pennywise/internal/store"
)

const (
	TransactionsCollection = "transactions"
	AccountsCollection     = "accounts"
	BatchesCollection      = "import_batches"
	BudgetsCollection      = "budgets"

	DefaultDatabase = "pennywise"
)

// Collection is the subset of *mongo.Collection the store uses.
type Collection interface {
	InsertOne(ctx context.Context, document interface{}, opts ...*options.InsertOneOptions) (*mongo.InsertOneResult, error)
	FindOne(ctx context.Context, filter interface{}, opts ...*options.FindOneOptions) *mongo.SingleResult
	Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) (*mongo.Cursor, error)
	UpdateOne(ctx context.Context, filter interface{}, update interface{}, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error)
	ReplaceOne(ctx context.Context, filter interface{}, replacement interface{}, opts ...*options.ReplaceOptions) (*mongo.UpdateResult, error)
	DeleteOne(ctx context.Context, filter interface{}, opts ...*options.DeleteOptions) (*mongo.DeleteResult, error)
}

// CollectionProvider returns collections by name.
type CollectionProvider interface {
	Collection(name string) Collection
}

// ClientProvider adapts *mongo.Client to CollectionProvider.
type ClientProvider struct {
	client   *mongo.Client
	database string
}

// NewClientProvider serves collections of database from client.
func NewClientProvider(client *mongo.Client, database string) *ClientProvider {
	return &ClientProvider{client: client, database: database}
}

// Collection returns the named collection.
func (p *ClientProvider) Collection(name string) Collection {
	return p.client.Database(p.database).Collection(name)
}

// Store keeps one document per record.
type Store struct {
	provider CollectionProvider
	client   *mongo.Client
	now      func() time.Time
}

// New builds a store over provider.
func New(provider CollectionProvider) *Store {
	return &Store{
		provider: provider,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Connect dials uri, verifies the connection and ensures indexes.
func Connect(ctx context.Context, uri, database string) (*Store, error) {
	if database == "" {
		database = DefaultDatabase
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connecting to mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("pinging mongodb: %w", err)
	}

	txns := client.Database(database).Collection(TransactionsCollection)
	_, err = txns.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "dedup_key", Value: 1}}},
		{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "date", Value: -1}}},
	})
	if err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("creating indexes: %w", err)
	}

	s := New(NewClientProvider(client, database))
	s.client = client
	return s, nil
}

// Close disconnects the client, if the store owns one.
func (s *Store) Close(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	return s.client.Disconnect(ctx)
}

func ownedBy(userID, id uuid.UUID) bson.M {
	return bson.M{"_id": id, "user_id": userID}
}

func (s *Store) InsertTransaction(ctx context.Context, rec *store.TransactionRecord) error {
	store.PrepareTransaction(rec, s.now())
	if _, err := s.provider.Collection(TransactionsCollection).InsertOne(ctx, rec); err != nil {
		return fmt.Errorf("inserting transaction: %w", err)
	}
	return nil
}

func (s *Store) GetTransaction(ctx context.Context, userID, id uuid.UUID) (*store.TransactionRecord, error) {
	var rec store.TransactionRecord
	err := s.provider.Collection(TransactionsCollection).FindOne(ctx, ownedBy(userID, id)).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("transaction %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting transaction %s: %w", id, err)
	}
	return &rec, nil
}

func (s *Store) FindDuplicate(ctx context.Context, userID uuid.UUID, dedupKey string) (*store.TransactionRecord, error) {
	var rec store.TransactionRecord
	err := s.provider.Collection(TransactionsCollection).
		FindOne(ctx, bson.M{"user_id": userID, "dedup_key": dedupKey}).
		Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("finding duplicate: %w", err)
	}
	return &rec, nil
}

func (s *Store) UpdateTransaction(ctx context.Context, userID, id uuid.UUID, patch store.TransactionPatch) error {
	set := bson.M{"updated_at": s.now()}
	update := bson.M{}
	if patch.Category != nil {
		set["category"] = *patch.Category
	}
	if patch.ClearNotes {
		update["$unset"] = bson.M{"notes": ""}
	} else if patch.Notes != nil {
		set["notes"] = *patch.Notes
	}
	if patch.BalanceStatus != nil {
		set["balance_status"] = string(*patch.BalanceStatus)
	}
	update["$set"] = set

	res, err := s.provider.Collection(TransactionsCollection).UpdateOne(ctx, ownedBy(userID, id), update)
	if err != nil {
		return fmt.Errorf("updating transaction %s: %w", id, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("updating transaction %s: %w", id, store.ErrNotFound)
	}
	return nil
}

func (s *Store) ListTransactions(ctx context.Context, userID uuid.UUID, filter store.TransactionFilter) ([]store.TransactionRecord, error) {
	q := bson.M{"user_id": userID}
	if filter.AccountID != nil {
		q["account_id"] = *filter.AccountID
	}
	if filter.BalanceStatus != "" {
		q["balance_status"] = string(filter.BalanceStatus)
	}
	opts := options.Find().SetSort(bson.D{{Key: "date", Value: -1}, {Key: "created_at", Value: -1}})

	cur, err := s.provider.Collection(TransactionsCollection).Find(ctx, q, opts)
	if err != nil {
		return nil, fmt.Errorf("listing transactions: %w", err)
	}
	var recs []store.TransactionRecord
	if err := cur.All(ctx, &recs); err != nil {
		return nil, fmt.Errorf("decoding transactions: %w", err)
	}
	return recs, nil
}

func (s *Store) DeleteTransaction(ctx context.Context, userID, id uuid.UUID) error {
	return s.deleteOwned(ctx, TransactionsCollection, "transaction", userID, id)
}

func (s *Store) InsertAccount(ctx context.Context, rec *store.AccountRecord) error {
	store.PrepareAccount(rec, s.now())
	if _, err := s.provider.Collection(AccountsCollection).InsertOne(ctx, rec); err != nil {
		return fmt.Errorf("inserting account: %w", err)
	}
	return nil
}

func (s *Store) GetAccount(ctx context.Context, userID, id uuid.UUID) (*store.AccountRecord, error) {
	var rec store.AccountRecord
	err := s.provider.Collection(AccountsCollection).FindOne(ctx, ownedBy(userID, id)).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("account %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting account %s: %w", id, err)
	}
	return &rec, nil
}

func (s *Store) ListAccounts(ctx context.Context, userID uuid.UUID) ([]store.AccountRecord, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	cur, err := s.provider.Collection(AccountsCollection).Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, fmt.Errorf("listing accounts: %w", err)
	}
	var recs []store.AccountRecord
	if err := cur.All(ctx, &recs); err != nil {
		return nil, fmt.Errorf("decoding accounts: %w", err)
	}
	return recs, nil
}

func (s *Store) UpdateAccount(ctx context.Context, userID, id uuid.UUID, patch store.AccountPatch) error {
	set := bson.M{"updated_at": s.now()}
	if patch.Name != nil {
		set["name"] = *patch.Name
	}
	if patch.Type != nil {
		set["type"] = *patch.Type
	}
	if patch.Balance != nil {
		set["balance"] = *patch.Balance
	}

	res, err := s.provider.Collection(AccountsCollection).UpdateOne(ctx, ownedBy(userID, id), bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("updating account %s: %w", id, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("updating account %s: %w", id, store.ErrNotFound)
	}
	return nil
}

func (s *Store) DeleteAccount(ctx context.Context, userID, id uuid.UUID) error {
	return s.deleteOwned(ctx, AccountsCollection, "account", userID, id)
}

func (s *Store) InsertBudget(ctx context.Context, rec *store.BudgetRecord) error {
	store.PrepareBudget(rec, s.now())
	if _, err := s.provider.Collection(BudgetsCollection).InsertOne(ctx, rec); err != nil {
		return fmt.Errorf("inserting budget: %w", err)
	}
	return nil
}

func (s *Store) GetBudget(ctx context.Context, userID, id uuid.UUID) (*store.BudgetRecord, error) {
	var rec store.BudgetRecord
	err := s.provider.Collection(BudgetsCollection).FindOne(ctx, ownedBy(userID, id)).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("budget %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting budget %s: %w", id, err)
	}
	return &rec, nil
}

func (s *Store) ListBudgets(ctx context.Context, userID uuid.UUID, filter store.BudgetFilter) ([]store.BudgetRecord, error) {
	q := bson.M{"user_id": userID}
	if filter.AccountID != nil {
		q["account_id"] = *filter.AccountID
	}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})

	cur, err := s.provider.Collection(BudgetsCollection).Find(ctx, q, opts)
	if err != nil {
		return nil, fmt.Errorf("listing budgets: %w", err)
	}
	var recs []store.BudgetRecord
	if err := cur.All(ctx, &recs); err != nil {
		return nil, fmt.Errorf("decoding budgets: %w", err)
	}
	return recs, nil
}

func (s *Store) UpdateBudget(ctx context.Context, userID, id uuid.UUID, patch store.BudgetPatch) error {
	set := bson.M{"updated_at": s.now()}
	unset := bson.M{}
	for name, v := range patch.Columns() {
		if v == nil {
			unset[name] = ""
			continue
		}
		set[name] = v
	}
	update := bson.M{"$set": set}
	if len(unset) > 0 {
		update["$unset"] = unset
	}

	res, err := s.provider.Collection(BudgetsCollection).UpdateOne(ctx, ownedBy(userID, id), update)
	if err != nil {
		return fmt.Errorf("updating budget %s: %w", id, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("updating budget %s: %w", id, store.ErrNotFound)
	}
	return nil
}

func (s *Store) DeleteBudget(ctx context.Context, userID, id uuid.UUID) error {
	return s.deleteOwned(ctx, BudgetsCollection, "budget", userID, id)
}

func (s *Store) deleteOwned(ctx context.Context, collection, kind string, userID, id uuid.UUID) error {
	res, err := s.provider.Collection(collection).DeleteOne(ctx, ownedBy(userID, id))
	if err != nil {
		return fmt.Errorf("deleting %s %s: %w", kind, id, err)
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("deleting %s %s: %w", kind, id, store.ErrNotFound)
	}
	return nil
}

func (s *Store) InsertBatch(ctx context.Context, rec *store.BatchRecord) error {
	store.PrepareBatch(rec, s.now())
	if _, err := s.provider.Collection(BatchesCollection).InsertOne(ctx, rec); err != nil {
		return fmt.Errorf("inserting batch: %w", err)
	}
	return nil
}

func (s *Store) UpdateBatch(ctx context.Context, rec *store.BatchRecord) error {
	res, err := s.provider.Collection(BatchesCollection).ReplaceOne(ctx, ownedBy(rec.UserID, rec.ID), rec)
	if err != nil {
		return fmt.Errorf("updating batch %s: %w", rec.ID, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("updating batch %s: %w", rec.ID, store.ErrNotFound)
	}
	return nil
}

var _ store.Store = (*Store)(nil)
