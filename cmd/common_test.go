package cmd

import (
	"strings"
	"testing"

	"github.com/illarion/passvault/internal/model"
)

func TestFieldFlags(t *testing.T) {
	var f FieldFlags
	for _, v := range []string{"User=alice", "2FA:TOTPSecret=JBSWY3DPEHPK3PXPJBSWY3DPEHPK3PXP", "Note=a=b"} {
		if err := f.Set(v); err != nil {
			t.Fatalf("Set(%q): %v", v, err)
		}
	}
	if err := f.Set("no-equals"); err == nil {
		t.Error("expected error for flag without '='")
	}

	fields, err := f.parse()
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(fields) != 3 {
		t.Fatalf("got %d fields, want 3", len(fields))
	}
	if fields[0].label != "User" || fields[0].kind != "" || fields[0].raw != "alice" {
		t.Errorf("unexpected first field: %+v", fields[0])
	}
	if fields[1].kind != model.KindTOTPSecret {
		t.Errorf("kind = %q, want TOTPSecret", fields[1].kind)
	}
	if fields[2].raw != "a=b" {
		t.Errorf("raw = %q, want a=b", fields[2].raw)
	}

	bad := FieldFlags{"X:Colour=red"}
	if _, err := bad.parse(); err == nil {
		t.Error("expected error for unknown kind")
	}
}

func TestTakeField(t *testing.T) {
	given := []fieldValue{{label: "Website", raw: "https://a.example"}, {label: "Extra", raw: "x"}}

	raw, ok := takeField(&given, "website")
	if !ok || raw != "https://a.example" {
		t.Fatalf("takeField = %q, %v", raw, ok)
	}
	if len(given) != 1 || given[0].label != "Extra" {
		t.Errorf("remaining = %+v", given)
	}
	if _, ok := takeField(&given, "Password"); ok {
		t.Error("found a field that was never given")
	}
}

func TestFindContent(t *testing.T) {
	content := []*model.Content{
		{ID: 7, Label: "Password", Position: 3, Value: model.NewPassword("x")},
		{ID: 9, Label: "Recovery", Position: 4, Value: model.NewText("codes")},
	}

	if c := findContent(content, "password"); c == nil || c.ID != 7 {
		t.Errorf("by label: %+v", c)
	}
	if c := findContent(content, "9"); c == nil || c.Label != "Recovery" {
		t.Errorf("by id: %+v", c)
	}
	if c := findContent(content, "missing"); c != nil {
		t.Errorf("unexpected match %+v", c)
	}
	if p := nextPosition(content); p != 5 {
		t.Errorf("nextPosition = %d, want 5", p)
	}
}

func TestConfirm(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"y\n", true},
		{"YES\n", true},
		{"n\n", false},
		{"\n", false},
		{"", false},
	}
	for _, tt := range tests {
		e := &Env{In: strings.NewReader(tt.input)}
		if got := e.Confirm("Proceed?"); got != tt.want {
			t.Errorf("Confirm(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestFormatSize(t *testing.T) {
	tests := map[int64]string{
		512:             "512 bytes",
		2048:            "2.0 KB",
		5 * 1024 * 1024: "5.0 MB",
	}
	for in, want := range tests {
		if got := formatSize(in); got != want {
			t.Errorf("formatSize(%d) = %q, want %q", in, got, want)
		}
	}
}
