package database

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// NewMongoDB dials the message history store, retrying per the connection
// settings. An attempt only counts as connected once a primary ping
// succeeds, a dial that cannot reach a usable node is discarded.
func NewMongoDB(ctx context.Context, c Connection, dbName string) (*MongoDB, error) {
	clientOpts := options.Client().ApplyURI(c.ConnectStr)

	var lastErr error
	for attempt := 0; attempt <= c.RetryCount; attempt++ {
		client, err := mongo.Connect(ctx, clientOpts)
		if err == nil {
			if err = client.Ping(ctx, readpref.Primary()); err == nil {
				return &MongoDB{
					Client:   client,
					Database: client.Database(dbName),
				}, nil
			}
			// reachable but not usable, drop the half-open client
			_ = client.Disconnect(ctx)
		}
		lastErr = err

		if attempt < c.RetryCount {
			time.Sleep(c.RetryInterval)
		}
	}

	return nil, fmt.Errorf("mongodb unreachable after %d attempts: %w", c.RetryCount+1, lastErr)
}

// Close disconnects the history store client.
func (m *MongoDB) Close(ctx context.Context) error {
	return m.Client.Disconnect(ctx)
}
