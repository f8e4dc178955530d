package tgui

import "testing"

func TestParseCallback(t *testing.T) {
	cases := map[string]Callback{
		"ack:read:3f2a-uuid":   {NS: "ack", Action: "read", Payload: "3f2a-uuid"},
		"menu:main":            {NS: "menu", Action: "main"},
		"admin:add:super":      {NS: "admin", Action: "add", Payload: "super"},
		"teacher:list:2:extra": {NS: "teacher", Action: "list", Payload: "2:extra"},
		"solo":                 {NS: "solo"},
	}
	for in, want := range cases {
		if got := Parse(in); got != want {
			t.Fatalf("Parse(%q) = %+v, want %+v", in, got, want)
		}
	}
	if Data("ack", "read", "x") != "ack:read:x" || Data("menu", "main", "") != "menu:main" {
		t.Fatal("Data formatting mismatch")
	}
}

func TestCheckData(t *testing.T) {
	long := make([]byte, MaxCallbackDataLen+1)
	for i := range long {
		long[i] = 'a'
	}
	if CheckData(string(long)) != ErrCallbackDataTooLong {
		t.Fatal("expected too long")
	}
	if CheckData(Data("ack", "read", "123e4567-e89b-12d3-a456-426614174000")) != nil {
		t.Fatal("ack data should fit")
	}
}

func TestTruncRunes(t *testing.T) {
	if got := TruncRunes("Grüße an alle", 5); got != "Grüße..." {
		t.Fatalf("TruncRunes = %q", got)
	}
	if got := TruncRunes("kurz", 10); got != "kurz" {
		t.Fatalf("TruncRunes = %q", got)
	}
}

func TestPaginate(t *testing.T) {
	items := make([]int, 23)
	p := Paginate(items, 1, 10)
	if p.From != 10 || p.To != 20 || !p.HasPrev || !p.HasNext {
		t.Fatalf("page = %+v", p)
	}
	if p.Label() != "Seite 2/3 • 11–20 von 23" {
		t.Fatalf("label = %q", p.Label())
	}
	last := Paginate(items, 9, 10)
	if last.Index != 2 || len(last.Items) != 3 || last.HasNext {
		t.Fatalf("clamped page = %+v", last)
	}
	if empty := Paginate([]int(nil), 0, 10); empty.Label() != "Seite 1/1" || len(empty.Items) != 0 {
		t.Fatalf("empty page = %+v", empty)
	}
}
