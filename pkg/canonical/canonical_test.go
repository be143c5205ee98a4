package canonical

import (
	"errors"
	"testing"
)

func TestTransform_KeyOrderIndependence(t *testing.T) {
	a := map[string]interface{}{"b": 2, "a": 1, "c": map[string]interface{}{"y": true, "x": "v"}}
	b := map[string]interface{}{"c": map[string]interface{}{"x": "v", "y": true}, "a": 1, "b": 2}

	ca, err := Transform(a)
	if err != nil {
		t.Fatalf("transform a: %v", err)
	}
	cb, err := Transform(b)
	if err != nil {
		t.Fatalf("transform b: %v", err)
	}
	if string(ca) != string(cb) {
		t.Errorf("canonical forms differ:\n%s\n%s", ca, cb)
	}
}

func TestTransform_SortedKeysNoWhitespace(t *testing.T) {
	got, err := String(map[string]interface{}{"z": 1, "a": "x"})
	if err != nil {
		t.Fatalf("transform: %v", err)
	}
	want := `{"a":"x","z":1}`
	if got != want {
		t.Errorf("got %s want %s", got, want)
	}
}

func TestTransform_NullVersusEmptyString(t *testing.T) {
	withNull, _ := String(map[string]interface{}{"f": nil})
	withEmpty, _ := String(map[string]interface{}{"f": ""})
	if withNull == withEmpty {
		t.Error("null and empty string must not collide")
	}
	if withNull != `{"f":null}` {
		t.Errorf("unexpected null form: %s", withNull)
	}
	if withEmpty != `{"f":""}` {
		t.Errorf("unexpected empty string form: %s", withEmpty)
	}
}

func TestTransform_NoHTMLEscaping(t *testing.T) {
	got, err := String(map[string]interface{}{"s": "<a>&</a>"})
	if err != nil {
		t.Fatalf("transform: %v", err)
	}
	if got != `{"s":"<a>&</a>"}` {
		t.Errorf("HTML escaping leaked into canonical form: %s", got)
	}
}

func TestTransform_UnsupportedType(t *testing.T) {
	_, err := Transform(map[string]interface{}{"ch": make(chan int)})
	if err == nil {
		t.Fatal("expected error for unsupported type")
	}
}

func TestCheckValue(t *testing.T) {
	ok := map[string]interface{}{
		"s": "str", "n": 42, "f": 1.5, "b": true, "nil": nil,
		"m": map[string]interface{}{"k": []interface{}{1, "two"}},
	}
	if err := CheckMap(ok); err != nil {
		t.Errorf("expected valid map, got %v", err)
	}

	bad := map[string]interface{}{"fn": func() {}}
	err := CheckMap(bad)
	if !errors.Is(err, ErrUnsupportedType) {
		t.Errorf("expected ErrUnsupportedType, got %v", err)
	}

	nested := map[string]interface{}{"m": map[string]interface{}{"ch": make(chan int)}}
	if err := CheckMap(nested); !errors.Is(err, ErrUnsupportedType) {
		t.Errorf("expected ErrUnsupportedType for nested chan, got %v", err)
	}
}
