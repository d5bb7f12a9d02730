// cartstore/mongo_cartstore.go

package cartstore

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/norun9/rocketshoes-cart/cart"
)

const mongoCollection = "carts"

type cartDocument struct {
	SessionID string    `bson:"_id"`
	Key       string    `bson:"key"`
	Cart      []byte    `bson:"cart"`
	Codec     string    `bson:"codec"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// MongoCartStore keeps one document per session in the "carts" collection.
type MongoCartStore struct {
	coll  *mongo.Collection
	codec Codec
	log   logrus.FieldLogger
}

// NewMongoCartStore connects to uri and uses the carts collection of database.
func NewMongoCartStore(ctx context.Context, uri, database string, codec Codec, log logrus.FieldLogger) (*MongoCartStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, errors.Wrap(err, "mongo connect")
	}
	return newMongoCartStore(client.Database(database).Collection(mongoCollection), codec, log), nil
}

func newMongoCartStore(coll *mongo.Collection, codec Codec, log logrus.FieldLogger) *MongoCartStore {
	return &MongoCartStore{
		coll:  coll,
		codec: codec,
		log:   log.WithField("store", "mongo"),
	}
}

// Initialize waits for the deployment to answer pings.
func (m *MongoCartStore) Initialize(ctx context.Context) error {
	if err := waitReady(ctx, m.log, m.Ping); err != nil {
		return errors.Wrap(err, "mongo")
	}
	m.log.Info("MongoCartStore initialized successfully")
	return nil
}

// GetCart returns the stored cart or an empty one.
func (m *MongoCartStore) GetCart(ctx context.Context, sessionID string) (cart.Cart, error) {
	var doc cartDocument
	err := m.coll.FindOne(ctx, bson.M{"_id": sessionID}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return cart.Cart{}, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "mongo FindOne error")
	}
	return decodeStored(m.codec, doc.Cart, sessionID)
}

// SetCart upserts the session's document.
func (m *MongoCartStore) SetCart(ctx context.Context, sessionID string, c cart.Cart) error {
	data, err := m.codec.Marshal(c)
	if err != nil {
		return errors.Wrap(err, "failed to encode cart")
	}

	update := bson.M{"$set": bson.M{
		"key":        CartField,
		"cart":       data,
		"codec":      m.codec.Name(),
		"updated_at": time.Now().UTC(),
	}}
	_, err = m.coll.UpdateOne(ctx, bson.M{"_id": sessionID}, update, options.Update().SetUpsert(true))
	if err != nil {
		return errors.Wrap(err, "mongo UpdateOne error")
	}
	return nil
}

// Ping checks the deployment with a short timeout.
func (m *MongoCartStore) Ping(ctx context.Context) bool {
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := m.coll.Database().Client().Ping(pingCtx, nil); err != nil {
		m.log.WithError(err).Warn("Ping failed")
		return false
	}
	return true
}

// Close disconnects the client.
func (m *MongoCartStore) Close(ctx context.Context) error {
	return m.coll.Database().Client().Disconnect(ctx)
}
