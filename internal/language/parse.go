package language

import (
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/parser"
)

// ParseSchema parses a single SDL source.
func ParseSchema(name, source string) (*SchemaDocument, error) {
	return ParseSchemas(&ast.Source{Name: name, Input: source})
}

// ParseSchemas parses several SDL sources into one document. Type extensions
// are kept separate in doc.Extensions. Only syntax is checked; directive
// references are left for schema assembly to resolve.
func ParseSchemas(sources ...*Source) (*SchemaDocument, error) {
	doc, err := parser.ParseSchemas(sources...)
	if err != nil {
		return nil, err
	}
	return doc, nil
}
