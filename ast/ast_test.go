package ast

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestScopeOf(t *testing.T) {
	tests := []struct {
		name string
		want Scope
	}{
		{"x", ScopeLocal},
		{"_tmp", ScopeLocal},
		{"@count", ScopeInstance},
		{"$stdout", ScopeGlobal},
		{"VisualObject", ScopeConstant},
		{"", ScopeLocal},
	}
	for _, tt := range tests {
		if got := ScopeOf(tt.name); got != tt.want {
			t.Errorf("ScopeOf(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestToMap_Assignment(t *testing.T) {
	n := &Assignment{
		Name:     "x",
		Location: Location{StartOffset: 0, EndOffset: 5},
		Value:    &IntegerLiteral{Value: 5, Location: Location{StartOffset: 4, EndOffset: 5}},
	}

	want := map[string]any{
		"type":     "Assignment",
		"location": map[string]any{"start_offset": 0, "end_offset": 5},
		"name":     "x",
		"scope":    "local",
		"value": map[string]any{
			"type":     "IntegerLiteral",
			"location": map[string]any{"start_offset": 4, "end_offset": 5},
			"value":    int64(5),
		},
	}
	if diff := cmp.Diff(want, ToMap(n)); diff != "" {
		t.Errorf("ToMap mismatch (-want +got):\n%s", diff)
	}
}

func TestToMap_UnknownUsesTierTag(t *testing.T) {
	m := ToMap(&Unknown{Type: "FlipFlopNode", Text: "a..b"})
	if m["type"] != "FlipFlopNode" {
		t.Errorf("type = %v, want FlipFlopNode", m["type"])
	}
	if m["text"] != "a..b" {
		t.Errorf("text = %v", m["text"])
	}
}

func TestWalk(t *testing.T) {
	prog := &Program{Body: []Node{
		&Call{
			Name:      "puts",
			Arguments: []Node{&StringLiteral{Value: "hi"}},
		},
		&If{
			Condition: &Variable{Name: "ready"},
			Then: []Node{
				&Call{Name: "wait", Block: &Block{Body: []Node{&NilLiteral{}}}},
			},
		},
	}}

	var tags []Tag
	Walk(prog, func(n Node) bool {
		tags = append(tags, n.Tag())
		return true
	})

	want := []Tag{TagProgram, TagCall, TagStringLiteral, TagIf, TagVariable, TagCall, TagBlock, TagNilLiteral}
	if diff := cmp.Diff(want, tags); diff != "" {
		t.Errorf("walk order mismatch (-want +got):\n%s", diff)
	}

	count := 0
	Walk(prog, func(n Node) bool {
		count++
		_, isIf := n.(*If)
		return !isIf
	})
	if count != 4 {
		t.Errorf("pruned walk visited %d nodes, want 4", count)
	}
}

func TestResultBody(t *testing.T) {
	var r *Result
	if r.Body() != nil {
		t.Error("nil result should have nil body")
	}
	r = &Result{Node: &Program{Body: []Node{&NilLiteral{}}}}
	if len(r.Body()) != 1 {
		t.Errorf("body len = %d, want 1", len(r.Body()))
	}
}

func TestDiagnosticsMerge(t *testing.T) {
	var d Diagnostics
	d.Warn("binary decoder failed")
	d.Merge(Diagnostics{Errors: []Diagnostic{{Message: "unexpected end", Level: LevelError}}})
	if len(d.Warnings) != 1 || len(d.Errors) != 1 {
		t.Fatalf("unexpected diagnostics %+v", d)
	}
	if d.Warnings[0].Level != LevelWarning {
		t.Errorf("level = %v, want warning", d.Warnings[0].Level)
	}
}
