// Package source loads revision series from where they are stored.
//
// Two sources are provided:
//
//   - [Dir] reads one JSON or YAML snapshot file per revision from a
//     directory, ordered by file name.
//   - [Mongo] reads one document per revision from a MongoDB collection,
//     ordered by its revision field.
//
// [Open] picks the source from a location string: mongodb:// and
// mongodb+srv:// URIs select Mongo, anything else is a directory.
package source

import (
	"context"
	"os"
	"strings"

	everrors "github.com/matzehuels/evocity/pkg/errors"
	"github.com/matzehuels/evocity/pkg/graph"
)

// Source loads a revision series.
type Source interface {
	// Name describes the source for log messages.
	Name() string
	Load(ctx context.Context) (*graph.Series, error)
}

// Dir reads a series from a directory of snapshot files.
type Dir struct {
	Path string
}

func (d Dir) Name() string { return d.Path }

func (d Dir) Load(ctx context.Context) (*graph.Series, error) {
	if err := everrors.ValidatePath(d.Path); err != nil {
		return nil, err
	}
	info, err := os.Stat(d.Path)
	if os.IsNotExist(err) {
		return nil, everrors.Wrap(everrors.ErrCodeFileNotFound, err, "series directory %s", d.Path)
	}
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, everrors.New(everrors.ErrCodeInvalidPath, "%s is not a directory", d.Path)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	series, err := graph.ReadSeriesDir(d.Path)
	if err != nil {
		return nil, everrors.Wrap(everrors.ErrCodeInvalidSeries, err, "load %s", d.Path)
	}
	return series, nil
}

// Options configures [Open].
type Options struct {
	MongoDatabase   string
	MongoCollection string
}

// Open returns the source for location.
func Open(location string, opts Options) (Source, error) {
	location = strings.TrimSpace(location)
	if location == "" {
		return nil, everrors.New(everrors.ErrCodeInvalidInput, "no series location given")
	}
	if IsMongoURI(location) {
		m := &Mongo{URI: location, Database: opts.MongoDatabase, Collection: opts.MongoCollection}
		if err := m.validate(); err != nil {
			return nil, err
		}
		return m, nil
	}
	return Dir{Path: location}, nil
}

// IsMongoURI reports whether location is a MongoDB connection string.
func IsMongoURI(location string) bool {
	return everrors.ValidateURL(location, "mongodb", "mongodb+srv") == nil
}

// Watchable reports the directory to watch for changes, if src has one.
func Watchable(src Source) (string, bool) {
	if d, ok := src.(Dir); ok {
		return d.Path, true
	}
	return "", false
}
