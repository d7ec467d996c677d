package pipeline

import (
	"encoding/json"
	"testing"
)

func TestResult_ZeroIsFailed(t *testing.T) {
	var r Result[string]
	if r.OK() {
		t.Error("zero Result should be Failed")
	}
	if r.String() != "Failed" {
		t.Errorf("String: got %q", r.String())
	}
}

func TestPresent(t *testing.T) {
	a, b := Ok("a"), Ok(1)
	if !Present() {
		t.Error("no results should be present")
	}
	if !Present(a, b) {
		t.Error("expected present")
	}
	if Present(a, Failed[int]()) {
		t.Error("one absent result should make the set absent")
	}
	if Present(a, nil) {
		t.Error("nil Presence should count as absent")
	}
}

func TestTrue(t *testing.T) {
	for _, tc := range []struct {
		r    Result[bool]
		want bool
	}{
		{Ok(true), true},
		{Ok(false), false},
		{Failed[bool](), false},
	} {
		if got := True(tc.r); got != tc.want {
			t.Errorf("True(%v): got %v, want %v", tc.r, got, tc.want)
		}
	}
}

func TestCollect(t *testing.T) {
	all := Collect([]Result[string]{Ok("chr1.bed"), Ok("chr2.bed")})
	v, ok := all.Get()
	if !ok || len(v) != 2 || v[0] != "chr1.bed" || v[1] != "chr2.bed" {
		t.Errorf("Collect: got %v", all)
	}
	partial := Collect([]Result[string]{Ok("chr1.bed"), Failed[string](), Ok("chr3.bed")})
	if partial.OK() {
		t.Errorf("one absent chunk must invalidate the set, got %v", partial)
	}
}

func TestThen(t *testing.T) {
	double := func(n int) Result[int] { return Ok(n * 2) }
	if v, _ := Then(Ok(4), double).Get(); v != 8 {
		t.Errorf("Then(Ok(4)): got %d", v)
	}
	if Then(Failed[int](), double).OK() {
		t.Error("Then must propagate absence")
	}
}

func TestResult_MarshalJSON(t *testing.T) {
	out, err := json.Marshal(map[string]interface{}{
		"present": Ok("x.bed"),
		"absent":  Failed[string](),
	})
	if err != nil {
		t.Fatal(err)
	}
	want := `{"absent":null,"present":"x.bed"}`
	if string(out) != want {
		t.Errorf("got %s, want %s", out, want)
	}
}
