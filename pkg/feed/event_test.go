package feed

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestRow_String(t *testing.T) {
	var r Row
	dec := json.NewDecoder(strings.NewReader(`{"id": 123456789, "name": "x", "n": null, "pos_x": 10.5}`))
	if err := dec.Decode(&r); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	tests := []struct {
		col  string
		want string
	}{
		{"id", "123456789"},
		{"name", "x"},
		{"n", ""},
		{"missing", ""},
		{"pos_x", "10.5"},
	}
	for _, tt := range tests {
		if got := r.String(tt.col); got != tt.want {
			t.Errorf("String(%q) = %q, want %q", tt.col, got, tt.want)
		}
	}
	if r.Has("n") || !r.Has("id") {
		t.Error("Has should treat null as absent")
	}
}

func TestRow_Float(t *testing.T) {
	r := Row{"a": 1.5, "b": "2.25", "c": "nope", "d": 3}
	for col, want := range map[string]float64{"a": 1.5, "b": 2.25, "d": 3} {
		if got, ok := r.Float(col); !ok || got != want {
			t.Errorf("Float(%s) = %v, %v, want %v", col, got, ok, want)
		}
	}
	if _, ok := r.Float("c"); ok {
		t.Error("Float(c) should fail")
	}
}

func TestRow_Time(t *testing.T) {
	r := Row{"a": "2024-05-01T12:00:00.123Z", "b": "2024-05-01T12:00:00.123456", "c": 4}
	if _, ok := r.Time("a"); !ok {
		t.Error("Time(a) failed")
	}
	if got, ok := r.Time("b"); !ok || got.Year() != 2024 {
		t.Errorf("Time(b) = %v, %v", got, ok)
	}
	if _, ok := r.Time("c"); ok {
		t.Error("Time(c) should fail")
	}
}

func TestEvent_Record(t *testing.T) {
	del := Event{Type: Delete, Old: Row{"id": "old"}, New: Row{"id": "new"}}
	if del.Record().String("id") != "old" {
		t.Error("DELETE should prefer Old")
	}
	upd := Event{Type: Update, Old: Row{"id": "old"}, New: Row{"id": "new"}}
	if upd.Record().String("id") != "new" {
		t.Error("UPDATE should prefer New")
	}
	bare := Event{Type: Delete, New: Row{"id": "new"}}
	if bare.Record().String("id") != "new" {
		t.Error("DELETE without Old should fall back to New")
	}
}

func TestParseEventType(t *testing.T) {
	if got, err := ParseEventType("insert"); err != nil || got != Insert {
		t.Errorf("ParseEventType(insert) = %v, %v", got, err)
	}
	if _, err := ParseEventType("TRUNCATE"); err == nil {
		t.Error("ParseEventType(TRUNCATE) should fail")
	}
}

func TestChannel_Match(t *testing.T) {
	ch := TreeChannel("g1")
	tests := []struct {
		name string
		ev   Event
		want bool
	}{
		{"same tree", Event{Table: TableEdges, New: Row{"graph_id": "g1"}}, true},
		{"other tree", Event{Table: TableEdges, New: Row{"graph_id": "g2"}}, false},
		{"unbound table", Event{Table: TableMessages, New: Row{"graph_id": "g1"}}, false},
		{"delete with key only", Event{Type: Delete, Table: TableNodes, Old: Row{"id": "x"}}, true},
		{"old row filter", Event{Type: Delete, Table: TableNodes, Old: Row{"graph_id": "g2"}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ch.Match(tt.ev); got != tt.want {
				t.Errorf("Match() = %v, want %v", got, tt.want)
			}
		})
	}
}
