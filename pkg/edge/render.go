// Package edge models the nginx configuration generated for the camouflage
// servers and renders it as block-directive text.
//
// Every node lists its own directives through Fields. Rendering walks that
// list in order: a scalar field becomes "key arg...;", a block field becomes
// "key {" ... "}" and a named block becomes "key name {" ... "}". A list of
// blocks is expressed as repeated fields with the same key.
package edge

import (
	"bytes"
	"strings"
)

// Node is anything that lowers to an ordered list of directives.
type Node interface {
	Fields() []Field
}

// Field is one directive or nested block.
type Field struct {
	Key   string
	Args  []string
	Name  string
	Block Node
}

// Param returns a scalar directive. Empty args drop the directive.
func Param(key string, args ...string) Field {
	return Field{Key: key, Args: args}
}

// Block returns a nested block.
func Block(key string, node Node) Field {
	return Field{Key: key, Block: node}
}

// Named returns a labelled block such as "location / { ... }".
func Named(key, name string, node Node) Field {
	return Field{Key: key, Name: name, Block: node}
}

func (f Field) unset() bool {
	if f.Block != nil {
		return false
	}
	for _, a := range f.Args {
		if a != "" {
			return false
		}
	}
	return true
}

const indentUnit = "    "

// Render writes node as nginx configuration text.
func Render(node Node) []byte {
	var buf bytes.Buffer
	render(&buf, node, 0)
	return buf.Bytes()
}

func render(buf *bytes.Buffer, node Node, depth int) {
	indent := strings.Repeat(indentUnit, depth)
	for _, f := range node.Fields() {
		if f.unset() {
			continue
		}
		buf.WriteString(indent)
		buf.WriteString(f.Key)
		if f.Block == nil {
			for _, a := range f.Args {
				if a == "" {
					continue
				}
				buf.WriteByte(' ')
				buf.WriteString(quote(a))
			}
			buf.WriteString(";\n")
			continue
		}
		if f.Name != "" {
			buf.WriteByte(' ')
			buf.WriteString(quote(f.Name))
		}
		buf.WriteString(" {\n")
		render(buf, f.Block, depth+1)
		buf.WriteString(indent)
		buf.WriteString("}\n")
	}
}

// quote wraps an argument in double quotes when nginx would otherwise split
// or misparse it.
func quote(arg string) string {
	if !strings.ContainsAny(arg, " \t\n;{}\"'\\#") {
		return arg
	}
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`)
	return `"` + r.Replace(arg) + `"`
}
