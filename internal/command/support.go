// Package command holds the shared plumbing of the CLI subcommands: loading
// the collection schema, opening the store and parsing filter expressions.
package command

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/chronostore/chronostore/internal/conf"
	"github.com/chronostore/chronostore/internal/recordstore"
)

// OpenCollection loads the schema named in the settings, opens the store and
// resolves the named collection. The returned close function releases the
// store.
func OpenCollection(ctx context.Context, settings *conf.Settings, name string) (*recordstore.Collection, func(), error) {
	store, err := OpenStore(ctx, settings)
	if err != nil {
		return nil, nil, err
	}
	collection, err := store.Collection(name)
	if err != nil {
		if closeErr := store.Close(); closeErr != nil {
			fmt.Fprintf(os.Stderr, "warning: closing store: %v\n", closeErr)
		}
		return nil, nil, err
	}
	return collection, func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing store: %v\n", err)
		}
	}, nil
}

// OpenStore loads the schema named in the settings and opens the store over
// the configured backend.
func OpenStore(ctx context.Context, settings *conf.Settings) (*recordstore.Store, error) {
	defs, err := recordstore.LoadSchemaFile(settings.Main.Schema)
	if err != nil {
		return nil, err
	}
	return recordstore.Open(ctx, settings, defs...)
}

// ParseFilters converts repeated "field=value" expressions into a predicate
// scoped to the collection.
func ParseFilters(collection *recordstore.Collection, filters []string) (recordstore.Predicate, error) {
	var pred recordstore.Predicate
	for _, expr := range filters {
		cond, err := collection.ParseFilter(expr)
		if err != nil {
			return nil, err
		}
		pred = append(pred, cond)
	}
	return pred, nil
}

// PrintJSON writes v to stdout as indented JSON.
func PrintJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
