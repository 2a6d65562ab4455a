package stream

import "testing"

func TestGate_firesOnceAtZero(t *testing.T) {
	fired := 0
	g := newGate(func() { fired++ })
	g.add(3)
	g.arm()
	g.done()
	g.done()
	if fired != 0 {
		t.Fatalf("fired early with %d pending", g.pending)
	}
	g.done()
	if fired != 1 {
		t.Fatalf("expected 1 fire, got %d", fired)
	}
	g.done()
	g.arm()
	if fired != 1 {
		t.Errorf("gate fired again: %d", fired)
	}
}

func TestGate_notArmed(t *testing.T) {
	fired := 0
	g := newGate(func() { fired++ })
	g.add(1)
	g.done()
	if fired != 0 {
		t.Fatal("unarmed gate must not fire")
	}
	g.arm()
	if fired != 1 {
		t.Errorf("expected fire on arm, got %d", fired)
	}
}

func TestGate_noDependencies(t *testing.T) {
	fired := 0
	g := newGate(func() { fired++ })
	g.arm()
	if fired != 1 {
		t.Errorf("expected immediate fire, got %d", fired)
	}
}

func TestGate_fail(t *testing.T) {
	fired := 0
	g := newGate(func() { fired++ })
	g.add(2)
	g.arm()
	if !g.fail() {
		t.Fatal("first fail should report true")
	}
	if g.fail() {
		t.Error("second fail should report false")
	}
	g.done()
	g.done()
	if fired != 0 {
		t.Errorf("failed gate fired")
	}
}

func TestByteRange_Apply(t *testing.T) {
	body := []byte("0123456789")
	tests := []struct {
		name string
		r    *ByteRange
		want string
	}{
		{"nil", nil, "0123456789"},
		{"zero_length", &ByteRange{Offset: 4}, "0123456789"},
		{"middle", &ByteRange{Offset: 2, Length: 3}, "234"},
		{"clamped", &ByteRange{Offset: 8, Length: 10}, "89"},
		{"past_end", &ByteRange{Offset: 20, Length: 1}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := string(tt.r.Apply(body)); got != tt.want {
				t.Errorf("Apply: got %q want %q", got, tt.want)
			}
		})
	}
}
