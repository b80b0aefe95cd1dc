package edl_test

import (
	"errors"
	"strings"
	"testing"

	"cutline/internal/edl"
	"cutline/internal/services"
)

func TestValidateRejectsMalformedOps(t *testing.T) {
	cases := map[string][]edl.Op{
		"empty list":   nil,
		"missing type": {{Type: "trim"}, {Type: "  "}},
		"bad params":   {{Type: "trim", Params: map[string]any{"ch": make(chan int)}}},
		"long type":    {{Type: strings.Repeat("x", 65)}},
	}
	for name, ops := range cases {
		t.Run(name, func(t *testing.T) {
			err := edl.Validate(ops)
			if !errors.Is(err, services.ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestDecodeJSONAcceptsListAndDocument(t *testing.T) {
	list := `[{"type":"trim","params":{"start":1.5,"end":10}}]`
	doc := `{"ops":[{"type":"trim"},{"type":"crossfade","params":{"ms":250}}]}`

	ops, err := edl.Decode(strings.NewReader(list), edl.FormatJSON)
	if err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(ops) != 1 || ops[0].Type != "trim" || ops[0].Params["end"] != float64(10) {
		t.Fatalf("unexpected ops: %#v", ops)
	}

	ops, err = edl.Decode(strings.NewReader(doc), edl.FormatJSON)
	if err != nil {
		t.Fatalf("decode document: %v", err)
	}
	if len(ops) != 2 || ops[1].Type != "crossfade" {
		t.Fatalf("unexpected ops: %#v", ops)
	}
}

func TestDecodeYAMLNormalizesParams(t *testing.T) {
	input := `
ops:
  - type: overlay
    params:
      text: hello
      position:
        x: 10
        y: 20
`
	ops, err := edl.Decode(strings.NewReader(input), edl.FormatYAML)
	if err != nil {
		t.Fatalf("decode yaml: %v", err)
	}
	pos, ok := ops[0].Params["position"].(map[string]any)
	if !ok {
		t.Fatalf("expected nested map, got %T", ops[0].Params["position"])
	}
	if pos["x"] != float64(10) {
		t.Fatalf("expected JSON number, got %#v", pos["x"])
	}
}

func TestDecodeRejectsEmptyFile(t *testing.T) {
	if _, err := edl.Decode(strings.NewReader("  \n"), edl.FormatYAML); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestFormatForPath(t *testing.T) {
	if edl.FormatForPath("ops.YML") != edl.FormatYAML {
		t.Fatal("expected yaml for .YML")
	}
	if edl.FormatForPath("ops.json") != edl.FormatJSON {
		t.Fatal("expected json for .json")
	}
}

func TestMarshalRoundTripPreservesOrder(t *testing.T) {
	ops := []edl.Op{{Type: "a"}, {Type: "b"}, {Type: "c"}}
	data, err := edl.Marshal(ops)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	got, err := edl.Unmarshal(data)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for i := range ops {
		if got[i].Type != ops[i].Type {
			t.Fatalf("order changed at %d: %#v", i, got)
		}
	}
}
