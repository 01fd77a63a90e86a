package ast

// ToMap renders n in the {type, location, ...fields} shape used for
// debugging dumps. The result only holds maps, slices and scalars, so it
// marshals with any encoder.
func ToMap(n Node) map[string]any {
	if n == nil {
		return nil
	}
	m := map[string]any{
		"type": string(n.Tag()),
		"location": map[string]any{
			"start_offset": n.Loc().StartOffset,
			"end_offset":   n.Loc().EndOffset,
		},
	}

	switch n := n.(type) {
	case *Program:
		m["body"] = listToMaps(n.Body)
	case *Assignment:
		m["name"] = n.Name
		m["scope"] = n.Scope.String()
		if n.Operator != "" {
			m["operator"] = n.Operator
		}
		m["value"] = ToMap(n.Value)
	case *Call:
		m["name"] = n.Name
		if n.Receiver != nil {
			m["receiver"] = ToMap(n.Receiver)
		}
		if len(n.Arguments) > 0 {
			m["arguments"] = listToMaps(n.Arguments)
		}
		if n.Block != nil {
			m["block"] = ToMap(n.Block)
		}
	case *Block:
		m["params"] = append([]string(nil), n.Params...)
		m["body"] = listToMaps(n.Body)
	case *Variable:
		m["name"] = n.Name
		m["scope"] = n.Scope.String()
	case *StringLiteral:
		m["value"] = n.Value
	case *IntegerLiteral:
		m["value"] = n.Value
	case *FloatLiteral:
		m["value"] = n.Value
	case *BooleanLiteral:
		m["value"] = n.Value
	case *SymbolLiteral:
		m["value"] = n.Value
	case *ArrayLiteral:
		m["elements"] = listToMaps(n.Elements)
	case *HashLiteral:
		pairs := make([]any, len(n.Pairs))
		for i, p := range n.Pairs {
			pairs[i] = map[string]any{"key": ToMap(p.Key), "value": ToMap(p.Value)}
		}
		m["pairs"] = pairs
	case *If:
		m["condition"] = ToMap(n.Condition)
		m["negated"] = n.Negated
		m["then"] = listToMaps(n.Then)
		if len(n.Else) > 0 {
			m["else"] = listToMaps(n.Else)
		}
	case *While:
		m["condition"] = ToMap(n.Condition)
		m["negated"] = n.Negated
		m["body"] = listToMaps(n.Body)
	case *Def:
		m["name"] = n.Name
		m["params"] = append([]string(nil), n.Params...)
		m["body"] = listToMaps(n.Body)
	case *Return:
		if n.Value != nil {
			m["value"] = ToMap(n.Value)
		}
	case *Comment:
		m["text"] = n.Text
	case *Unknown:
		m["text"] = n.Text
	}
	return m
}

func listToMaps(nodes []Node) []any {
	out := make([]any, len(nodes))
	for i, n := range nodes {
		out[i] = ToMap(n)
	}
	return out
}

// Walk calls fn for n and every node below it, depth first, in source order.
// Returning false from fn skips the node's children.
func Walk(n Node, fn func(Node) bool) {
	if n == nil || !fn(n) {
		return
	}
	walkList := func(nodes []Node) {
		for _, c := range nodes {
			Walk(c, fn)
		}
	}
	switch n := n.(type) {
	case *Program:
		walkList(n.Body)
	case *Assignment:
		Walk(n.Value, fn)
	case *Call:
		Walk(n.Receiver, fn)
		walkList(n.Arguments)
		if n.Block != nil {
			Walk(n.Block, fn)
		}
	case *Block:
		walkList(n.Body)
	case *ArrayLiteral:
		walkList(n.Elements)
	case *HashLiteral:
		for _, p := range n.Pairs {
			Walk(p.Key, fn)
			Walk(p.Value, fn)
		}
	case *If:
		Walk(n.Condition, fn)
		walkList(n.Then)
		walkList(n.Else)
	case *While:
		Walk(n.Condition, fn)
		walkList(n.Body)
	case *Def:
		walkList(n.Body)
	case *Return:
		Walk(n.Value, fn)
	}
}
