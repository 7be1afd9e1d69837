package schema

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	language "github.com/hanpama/cardgraph/internal/language"
)

// LoadDir parses every .graphql file under rootDir into one document. Files
// are read in lexical path order and named by their path relative to rootDir,
// which is what assembly errors report.
func LoadDir(rootDir string) (*language.SchemaDocument, error) {
	return LoadFS(os.DirFS(rootDir))
}

// LoadFS is LoadDir over an fs.FS.
func LoadFS(fsys fs.FS) (*language.SchemaDocument, error) {
	var paths []string
	err := fs.WalkDir(fsys, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && filepath.Ext(d.Name()) == ".graphql" {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk schema directory: %w", err)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no .graphql files found")
	}
	sort.Strings(paths)

	sources := make([]*language.Source, 0, len(paths))
	for _, path := range paths {
		content, err := fs.ReadFile(fsys, path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		sources = append(sources, &language.Source{Name: path, Input: string(content)})
	}
	return language.ParseSchemas(sources...)
}
