package language

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseSchemas(t *testing.T) {
	doc, err := ParseSchemas(
		&Source{Name: "a.graphql", Input: `type Query { card: Card }`},
		&Source{Name: "b.graphql", Input: `type Card { number: String @mask(keep: 4) }`},
	)
	require.NoError(t, err)
	require.Len(t, doc.Definitions, 2)

	card := doc.Definitions.ForName("Card")
	require.NotNil(t, card)
	dir := card.Fields.ForName("number").Directives.ForName("mask")
	require.NotNil(t, dir)
	require.Equal(t, "b.graphql", dir.Position.Src.Name)
}

func TestParseSchemaSyntaxError(t *testing.T) {
	_, err := ParseSchema("broken.graphql", `type Query {`)
	require.Error(t, err)
	var gqlErr *Error
	require.ErrorAs(t, err, &gqlErr)
}
