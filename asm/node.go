// Copyright 2014-2024 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package asm

import (
	"strconv"
	"strings"
)

// A NodeKind identifies the shape of a syntax tree node.
type NodeKind byte

// All node kinds.
const (
	LineNode NodeKind = iota
	LabelNode
	CommentNode
	DirectiveNode // name-bearing definition: EQU, EQUS, SET, =, RB, RW, RL
	KeywordNode
	OpcodeNode
	MacroCallNode
	UnaryNode
	BinaryNode
	FunctionNode
	IndexerNode
	IdentifierNode
	NumberNode
	StringNode
	RegisterNode
	ConditionNode
	RegionNode
	InvalidNode
)

var nodeKindNames = []string{
	"line", "label", "comment", "directive", "keyword", "opcode",
	"macro_call", "unary_operator", "binary_operator", "function_call",
	"indexer", "identifier", "number_literal", "string", "register",
	"condition", "region", "invalid",
}

func (k NodeKind) String() string {
	if int(k) < len(nodeKindNames) {
		return nodeKindNames[k]
	}
	return "unknown"
}

// A Node is an element of the syntax tree for a single source line.
//
// Label nodes record their suffix in Raw (":", "::", or "" for equate
// names and bare local labels; "def" or "redef" for names introduced by
// those keywords). Macro call arguments are string nodes whose Raw field
// holds the unparsed argument text.
type Node struct {
	Kind     NodeKind
	Token    Token
	Children []*Node
	Raw      string
}

// Clone returns a deep copy of the tree rooted at n.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	c := &Node{Kind: n.Kind, Token: n.Token, Raw: n.Raw}
	if n.Children != nil {
		c.Children = make([]*Node, len(n.Children))
		for i, child := range n.Children {
			c.Children[i] = child.Clone()
		}
	}
	return c
}

// name returns the lower-case text of the node's token.
func (n *Node) name() string {
	return strings.ToLower(n.Token.Text)
}

// String returns a compact representation of the tree, with operators
// written in prefix form, e.g. "+(1, *(2, 3))".
func (n *Node) String() string {
	switch n.Kind {
	case LineNode:
		parts := make([]string, len(n.Children))
		for i, c := range n.Children {
			parts[i] = c.String()
		}
		return strings.Join(parts, " ")
	case LabelNode:
		switch n.Raw {
		case "def", "redef":
			return n.Raw + " " + n.Token.Text
		default:
			return n.Token.Text + n.Raw
		}
	case CommentNode:
		return n.Token.Text
	case DirectiveNode, KeywordNode, OpcodeNode, MacroCallNode:
		if len(n.Children) == 0 {
			return n.Token.Text
		}
		return n.Token.Text + " " + joinNodes(n.Children)
	case UnaryNode, BinaryNode, FunctionNode:
		return n.Token.Text + "(" + joinNodes(n.Children) + ")"
	case IndexerNode:
		if len(n.Children) == 1 {
			return "[" + n.Children[0].String() + "]"
		}
		return n.Children[0].String() + "[" + n.Children[1].String() + "]"
	case StringNode:
		if n.Raw != "" {
			return n.Raw
		}
		return strconv.Quote(n.Token.Text)
	case InvalidNode:
		return "<invalid>"
	default:
		return n.Token.Text
	}
}

func joinNodes(nodes []*Node) string {
	parts := make([]string, len(nodes))
	for i, c := range nodes {
		parts[i] = c.String()
	}
	return strings.Join(parts, ", ")
}

// walk calls fn for n and each of its descendants, depth first. If fn
// returns false, the node's children are skipped.
func (n *Node) walk(fn func(n *Node) bool) {
	if !fn(n) {
		return
	}
	for _, c := range n.Children {
		c.walk(fn)
	}
}
