package quarry

import (
	"reflect"
	"testing"
)

func TestResolve(t *testing.T) {
	cases := []struct {
		name      string
		text      string
		overrides Placeholders
		defaults  Placeholders
		want      string
	}{
		{
			name: "no tokens",
			text: "/users",
			want: "/users",
		},
		{
			name:      "named and positional overrides",
			text:      "/users/@{id}/${1}",
			overrides: Placeholders{Named: map[string]string{"id": "7"}, Positional: []string{"posts"}},
			want:      "/users/7/posts",
		},
		{
			name:      "override beats default",
			text:      "@{id}",
			overrides: Placeholders{Named: map[string]string{"id": "2"}},
			defaults:  Placeholders{Named: map[string]string{"id": "1"}},
			want:      "2",
		},
		{
			name:     "default used without override",
			text:     "@{id}-${1}",
			defaults: Placeholders{Named: map[string]string{"id": "1"}, Positional: []string{"a"}},
			want:     "1-a",
		},
		{
			name:      "positional override beats positional default",
			text:      "${1}${2}",
			overrides: Placeholders{Positional: []string{"x"}},
			defaults:  Placeholders{Positional: []string{"d1", "d2"}},
			want:      "xd2",
		},
		{
			name: "unmatched tokens stay verbatim",
			text: "@{missing}/${3}",
			overrides: Placeholders{
				Named:      map[string]string{"other": "v"},
				Positional: []string{"a"},
			},
			want: "@{missing}/${3}",
		},
		{
			name:      "every occurrence replaced",
			text:      "@{id}/@{id}",
			overrides: Placeholders{Named: map[string]string{"id": "9"}},
			want:      "9/9",
		},
		{
			name:      "named override may introduce a positional token",
			text:      "@{a}",
			overrides: Placeholders{Named: map[string]string{"a": "${1}"}, Positional: []string{"z"}},
			want:      "z",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Resolve(tc.text, tc.overrides, tc.defaults); got != tc.want {
				t.Fatalf("Resolve(%q)=%q want=%q", tc.text, got, tc.want)
			}
		})
	}
}

func TestResolve_NamedOrderIsDeterministic(t *testing.T) {
	// "a" resolves before "b", so the "@{b}" introduced by "a" is replaced too.
	p := Placeholders{Named: map[string]string{"a": "@{b}", "b": "B"}}
	for i := 0; i < 50; i++ {
		if got := Resolve("@{a}", p, Placeholders{}); got != "B" {
			t.Fatalf("iteration %d: got=%q", i, got)
		}
	}
}

func TestTokens(t *testing.T) {
	got := Tokens("/u/@{id}/${1}/@{id}/${x}")
	want := []string{"@{id}", "${1}"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Tokens=%v want=%v", got, want)
	}
	if Tokens("/plain") != nil {
		t.Fatalf("expected nil tokens")
	}
}
