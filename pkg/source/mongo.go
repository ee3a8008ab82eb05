package source

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	everrors "github.com/matzehuels/evocity/pkg/errors"
	"github.com/matzehuels/evocity/pkg/graph"
)

// Mongo defaults.
const (
	DefaultMongoDatabase   = "evocity"
	DefaultMongoCollection = "revisions"
	DefaultMongoTimeout    = 30 * time.Second
)

// Mongo reads a series from a MongoDB collection. Each document is one
// revision:
//
//	{revision: 3, name: "v1.2", nodes: [...], edges: [...]}
//
// Documents are ordered by the revision field.
type Mongo struct {
	URI        string
	Database   string
	Collection string
	Timeout    time.Duration
}

// revisionDoc is the stored form of one revision.
type revisionDoc struct {
	Revision       int `bson:"revision"`
	graph.Document `bson:",inline"`
}

func (m *Mongo) Name() string {
	return fmt.Sprintf("mongo(%s.%s)", m.database(), m.collection())
}

func (m *Mongo) database() string {
	if m.Database == "" {
		return DefaultMongoDatabase
	}
	return m.Database
}

func (m *Mongo) collection() string {
	if m.Collection == "" {
		return DefaultMongoCollection
	}
	return m.Collection
}

func (m *Mongo) validate() error {
	if err := everrors.ValidateURL(m.URI, "mongodb", "mongodb+srv"); err != nil {
		return err
	}
	if m.Timeout < 0 {
		return everrors.New(everrors.ErrCodeInvalidConfig, "negative mongo timeout %s", m.Timeout)
	}
	return nil
}

func (m *Mongo) Load(ctx context.Context) (*graph.Series, error) {
	if err := m.validate(); err != nil {
		return nil, err
	}
	timeout := m.Timeout
	if timeout == 0 {
		timeout = DefaultMongoTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(m.URI))
	if err != nil {
		return nil, everrors.Wrap(everrors.ErrCodeNetwork, err, "connect to mongo")
	}
	defer client.Disconnect(context.Background())

	coll := client.Database(m.database()).Collection(m.collection())
	cur, err := coll.Find(ctx, bson.D{}, options.Find().SetSort(bson.D{{Key: "revision", Value: 1}}))
	if err != nil {
		return nil, everrors.Wrap(everrors.ErrCodeNetwork, err, "query %s", m.Name())
	}
	var docs []revisionDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, everrors.Wrap(everrors.ErrCodeNetwork, err, "read %s", m.Name())
	}
	return seriesFromDocs(docs)
}

func seriesFromDocs(docs []revisionDoc) (*graph.Series, error) {
	if len(docs) == 0 {
		return nil, everrors.Wrap(everrors.ErrCodeInvalidSeries, graph.ErrEmptySeries, "no revisions stored")
	}
	snaps := make([]*graph.Snapshot, 0, len(docs))
	for _, d := range docs {
		if d.Name == "" {
			d.Name = fmt.Sprintf("revision-%d", d.Revision)
		}
		s, err := d.Snapshot()
		if err != nil {
			return nil, everrors.Wrap(everrors.ErrCodeInvalidSnapshot, err, "revision %d", d.Revision)
		}
		snaps = append(snaps, s)
	}
	return graph.NewSeries(snaps...)
}
