package cluster

import "testing"

func TestHelmSetValueScalars(t *testing.T) {
	cases := []struct {
		in   any
		want string
	}{
		{"foo", "foo"},
		{true, "true"},
		{int64(5), "5"},
	}
	for _, c := range cases {
		if got := helmSetValue(c.in); got != c.want {
			t.Errorf("helmSetValue(%v) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestHelmSetValueArray(t *testing.T) {
	got := helmSetValue([]any{"a", "b", int64(3)})
	want := "{a,b,3}"
	if got != want {
		t.Errorf("helmSetValue(array) = %q, want %q", got, want)
	}
}

func TestResolvePath(t *testing.T) {
	if got := resolvePath("/cfg", "values.yaml"); got != "/cfg/values.yaml" {
		t.Errorf("resolvePath relative = %q", got)
	}
	if got := resolvePath("/cfg", "/abs/values.yaml"); got != "/abs/values.yaml" {
		t.Errorf("resolvePath absolute = %q", got)
	}
}
