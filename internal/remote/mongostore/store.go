// Package mongostore implements remote.Store on MongoDB: carts keyed by
// identity key, orders keyed by generated id, and change streams backing the
// cart subscription.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/krishiv-patel/thelatestnew/internal/domain"
	"github.com/krishiv-patel/thelatestnew/internal/remote"
)

type Store struct {
	carts  *mongo.Collection
	orders *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{
		carts:  db.Collection("carts"),
		orders: db.Collection("orders"),
	}
}

// Connect dials MongoDB and verifies the connection with a ping.
func Connect(ctx context.Context, uri, database string) (*mongo.Database, error) {
	clientOpts := options.Client().
		ApplyURI(uri).
		SetConnectTimeout(10 * time.Second).
		SetServerSelectionTimeout(5 * time.Second).
		SetMaxPoolSize(100).
		SetMinPoolSize(10)

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}
	return client.Database(database), nil
}

func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.carts.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "identity_key", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("failed to create cart index: %w", err)
	}

	_, err = s.orders.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "user_email", Value: 1}, {Key: "created_at", Value: -1}},
	})
	if err != nil {
		return fmt.Errorf("failed to create order index: %w", err)
	}
	return nil
}

func (s *Store) GetCart(ctx context.Context, identityKey string) (domain.Cart, error) {
	var doc cartDoc
	err := s.carts.FindOne(ctx, bson.M{"identity_key": identityKey}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.Cart{}, remote.ErrCartNotFound
		}
		return domain.Cart{}, translateErr("failed to get cart", err)
	}
	return doc.toDomain()
}

func (s *Store) PutCart(ctx context.Context, identityKey string, cart domain.Cart) error {
	doc := cartDocFrom(identityKey, cart)
	opts := options.Replace().SetUpsert(true)
	_, err := s.carts.ReplaceOne(ctx, bson.M{"identity_key": identityKey}, doc, opts)
	if err != nil {
		return translateErr("failed to put cart", err)
	}
	return nil
}

func (s *Store) CreateOrder(ctx context.Context, order domain.Order) (string, error) {
	doc := orderDocFrom(order)
	doc.ID = uuid.NewString()
	if _, err := s.orders.InsertOne(ctx, doc); err != nil {
		return "", translateErr("failed to create order", err)
	}
	return doc.ID, nil
}

func (s *Store) GetOrder(ctx context.Context, orderID string) (domain.Order, error) {
	var doc orderDoc
	err := s.orders.FindOne(ctx, bson.M{"_id": orderID}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.Order{}, remote.ErrOrderNotFound
		}
		return domain.Order{}, translateErr("failed to get order", err)
	}
	return doc.toDomain()
}

func (s *Store) SetOrderStatus(ctx context.Context, orderID string, status domain.OrderStatus) error {
	update := bson.M{"$set": bson.M{
		"status":     string(status),
		"updated_at": time.Now(),
	}}
	result, err := s.orders.UpdateByID(ctx, orderID, update)
	if err != nil {
		return translateErr("failed to update order status", err)
	}
	if result.MatchedCount == 0 {
		return remote.ErrOrderNotFound
	}
	return nil
}

func (s *Store) OrdersByUser(ctx context.Context, identityKey string) ([]domain.Order, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cursor, err := s.orders.Find(ctx, bson.M{"user_email": identityKey}, opts)
	if err != nil {
		return nil, translateErr("failed to list orders", err)
	}
	defer cursor.Close(ctx)

	var orders []domain.Order
	for cursor.Next(ctx) {
		var doc orderDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode order: %w", err)
		}
		order, err := doc.toDomain()
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	if err := cursor.Err(); err != nil {
		return nil, translateErr("failed to iterate orders", err)
	}
	return orders, nil
}

// SubscribeCart watches the cart document through a change stream and
// delivers every update to onChange. Deletion is delivered as an empty cart.
// The returned function stops the stream.
func (s *Store) SubscribeCart(ctx context.Context, identityKey string, onChange func(domain.Cart)) (func(), error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"fullDocument.identity_key": identityKey}}},
	}
	opts := options.ChangeStream().SetFullDocument(options.UpdateLookup)

	streamCtx, cancel := context.WithCancel(ctx)
	stream, err := s.carts.Watch(streamCtx, pipeline, opts)
	if err != nil {
		cancel()
		return nil, translateErr("failed to watch cart", err)
	}

	go func() {
		defer stream.Close(context.Background())
		for stream.Next(streamCtx) {
			var event struct {
				OperationType string   `bson:"operationType"`
				FullDocument  *cartDoc `bson:"fullDocument"`
			}
			if err := stream.Decode(&event); err != nil {
				log.Printf("cart change stream decode error: %v", err)
				continue
			}
			if event.OperationType == "delete" || event.FullDocument == nil {
				onChange(domain.EmptyCart(identityKey))
				continue
			}
			cart, err := event.FullDocument.toDomain()
			if err != nil {
				log.Printf("cart change stream conversion error: %v", err)
				continue
			}
			onChange(cart)
		}
		if err := stream.Err(); err != nil && streamCtx.Err() == nil {
			log.Printf("cart change stream closed: %v", err)
		}
	}()

	return cancel, nil
}

// translateErr wraps a driver error, mapping backend throttling onto
// remote.ErrResourceExhausted so the adapter's backoff loop can pick it up.
// Code 16500 is the TooManyRequests code used by Mongo-compatible hosted
// backends.
func translateErr(msg string, err error) error {
	var cmdErr mongo.CommandError
	if errors.As(err, &cmdErr) && cmdErr.Code == 16500 {
		return fmt.Errorf("%s: %v: %w", msg, err, remote.ErrResourceExhausted)
	}
	return fmt.Errorf("%s: %w", msg, err)
}
