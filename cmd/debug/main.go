package main

import (
	"context"
	"fmt"
	"os"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
)

func main() {
	parser := sitter.NewParser()
	parser.SetLanguage(javascript.GetLanguage())

	source := []byte(`var tile_layer_1a2b = L.tileLayer(
    "https://tile.openstreetmap.org/{z}/{x}/{y}.png",
    {"attribution": "OpenStreetMap", "maxZoom": 19}
);
tile_layer_1a2b.addTo(map_ffee);`)

	tree, _ := parser.ParseCtx(context.Background(), nil, source)
	root := tree.RootNode()

	// Find the variable_declaration
	var findDecl func(n *sitter.Node) *sitter.Node
	findDecl = func(n *sitter.Node) *sitter.Node {
		if n.Type() == "variable_declaration" {
			return n
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			if found := findDecl(n.Child(i)); found != nil {
				return found
			}
		}
		return nil
	}

	declNode := findDecl(root)
	if declNode == nil {
		fmt.Println("No variable_declaration found")
		os.Exit(1)
	}

	fmt.Printf("variable_declaration has %d children:\n", declNode.ChildCount())
	for i := 0; i < int(declNode.ChildCount()); i++ {
		child := declNode.Child(i)
		fieldName := declNode.FieldNameForChild(i)
		fmt.Printf("  [%d] type=%s field=%q content=%q\n", i, child.Type(), fieldName, child.Content(source))
	}
}
