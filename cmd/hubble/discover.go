package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/homemade/hubble/protocol"
	"github.com/homemade/hubble/sync"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// discoverCmd samples the first page of every stream and prints the catalog.
var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Infer a schema for every configured stream",
	RunE: func(cmd *cobra.Command, _ []string) error {
		sc, err := syncContext()
		if err != nil {
			return err
		}
		streams, err := sync.Streams(sc)
		if err != nil {
			return err
		}

		var errs []error
		catalog := make([]protocol.CatalogStream, 0, len(streams))
		for _, s := range streams {
			schema, err := s.Discover(cmd.Context())
			if err != nil {
				logger.Error("discovery failed", zap.String("stream", s.Name()), zap.Error(err))
				errs = append(errs, err)
				continue
			}
			catalog = append(catalog, protocol.NewCatalogStream(s.Name(), schema))
			if docDir != "" {
				if err := writeFieldDocumentation(s.Name(), schema); err != nil {
					errs = append(errs, err)
				}
			}
		}
		if err := errors.Join(errs...); err != nil {
			return fmt.Errorf("failed to discover %d of %d streams %w", len(errs), len(streams), err)
		}
		return emitter.Catalog(catalog)
	},
}

var docDir string

func init() {
	discoverCmd.Flags().StringVar(&docDir, "doc-dir", "", "also write a CSV field description per stream to this directory")
}

func writeFieldDocumentation(stream string, schema sync.Schema) error {
	doc, err := sync.GenerateFieldDocumentation(stream, schema).FormatCSV()
	if err != nil {
		return fmt.Errorf("failed to document stream %s %w", stream, err)
	}
	if err := os.MkdirAll(docDir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(docDir, stream+".csv"), []byte(doc), 0o644)
}
