package mongo

import (
	"context"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Connect opens a mongo client with the given options applied on top of
// the URI.
func Connect(ctx context.Context, uri string, opts ...*options.ClientOptions) (*mongo.Client, error) {
	all := append([]*options.ClientOptions{options.Client().ApplyURI(uri)}, opts...)
	return mongo.Connect(ctx, all...)
}
