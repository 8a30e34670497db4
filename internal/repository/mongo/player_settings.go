package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"mediaplayer/internal/session"
)

const playerSettingsID = "player"

type playerSettingsDoc struct {
	ID             string  `bson:"_id"`
	RepeatMode     int     `bson:"repeatMode"`
	ShuffleEnabled bool    `bson:"shuffleEnabled"`
	Speed          float64 `bson:"speed"`
	LastPositionMs int64   `bson:"lastPositionMs"`
	LastWindow     int     `bson:"lastWindow"`
	UpdatedAt      int64   `bson:"updatedAt"`
}

// PlayerSettingsRepository persists player settings in a single upserted
// document.
type PlayerSettingsRepository struct {
	collection *mongo.Collection
}

func NewPlayerSettingsRepository(client *mongo.Client, dbName string) *PlayerSettingsRepository {
	return &PlayerSettingsRepository{collection: client.Database(dbName).Collection("settings")}
}

func (r *PlayerSettingsRepository) Get(ctx context.Context) (session.Settings, bool, error) {
	var doc playerSettingsDoc
	err := r.collection.FindOne(ctx, bson.M{"_id": playerSettingsID}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return session.Settings{}, false, nil
		}
		return session.Settings{}, false, err
	}
	return session.Settings{
		RepeatMode:     doc.RepeatMode,
		ShuffleEnabled: doc.ShuffleEnabled,
		Speed:          doc.Speed,
		LastPositionMs: doc.LastPositionMs,
		LastWindow:     doc.LastWindow,
	}, true, nil
}

func (r *PlayerSettingsRepository) Set(ctx context.Context, s session.Settings) error {
	update := bson.M{
		"$set": bson.M{
			"repeatMode":     s.RepeatMode,
			"shuffleEnabled": s.ShuffleEnabled,
			"speed":          s.Speed,
			"lastPositionMs": s.LastPositionMs,
			"lastWindow":     s.LastWindow,
			"updatedAt":      time.Now().Unix(),
		},
	}
	_, err := r.collection.UpdateOne(
		ctx,
		bson.M{"_id": playerSettingsID},
		update,
		options.Update().SetUpsert(true),
	)
	return err
}
