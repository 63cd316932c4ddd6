package action

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/gasoline/internal/keypath"
)

func TestMatchType_Globs(t *testing.T) {
	tests := []struct {
		rule string
		typ  string
		want bool
	}{
		{"ANY*", "ANYTHING", true},
		{"*THING", "ANYTHING", true},
		{"ANY*", "ANY", false},
		{"*THING", "THING", false},
		{"ANYTHING", "ANYTHING", true},
		{"ANY*", "NOTHING", false},
	}
	for _, tt := range tests {
		t.Run(tt.rule+"/"+tt.typ, func(t *testing.T) {
			got, err := MatchType([]string{tt.rule}, tt.typ)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMatchType_InvalidRules(t *testing.T) {
	for _, rule := range []string{"*", "*a*", "a*b", "**a", "b**", "a*b*", "*a*b", "*a*b*"} {
		t.Run(rule, func(t *testing.T) {
			_, err := MatchType([]string{rule}, "ANYTHING")
			require.Error(t, err)
			assert.Equal(t, "Invalid rule: "+rule, err.Error())

			var re *RuleError
			assert.ErrorAs(t, err, &re)
		})
	}
}

func TestMatcher_NilAcceptsAll(t *testing.T) {
	m, err := NewMatcher(nil)
	require.NoError(t, err)

	assert.True(t, m.AcceptsAll())
	assert.True(t, m.Match("whatever"))
	assert.Nil(t, m.Patterns())
}

func TestMatcher_EmptyAcceptsNothing(t *testing.T) {
	m, err := NewMatcher([]string{})
	require.NoError(t, err)

	assert.False(t, m.Match("X"))
	assert.Equal(t, []string{}, m.Patterns())
}

func TestMatcher_CachesResults(t *testing.T) {
	m, err := NewMatcher([]string{"todo/*"})
	require.NoError(t, err)

	assert.True(t, m.Match("todo/add"))
	assert.True(t, m.Match("todo/add"))
	assert.False(t, m.Match("user/add"))
	assert.Len(t, m.cache, 2)
}

func TestNewMatcher_RejectsInvalidRule(t *testing.T) {
	_, err := NewMatcher([]string{"OK", "a*b"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid rule: a*b")
}

func TestParseType(t *testing.T) {
	d, err := ParseType("SET")
	require.NoError(t, err)
	assert.True(t, d.Basic())

	d, err = ParseType("SET:*")
	require.NoError(t, err)
	assert.True(t, d.Generic)
	assert.False(t, d.Bound)

	d, err = ParseType("SET:/foo/bar")
	require.NoError(t, err)
	assert.True(t, d.Bound)
	assert.Equal(t, "/foo/bar", d.Path.String())
	assert.Equal(t, "SET:/foo/bar", d.String())
	assert.Equal(t, "SET:*", d.GenericType())
}

func TestParseType_Errors(t *testing.T) {
	_, err := ParseType("a:b:c")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid action type")

	_, err = ParseType("SET:foo")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid key path")
}

func TestParser_CachesPerInstance(t *testing.T) {
	p1, p2 := NewParser(), NewParser()

	_, err := p1.Parse("SET:/a")
	require.NoError(t, err)
	_, err = p1.Parse("SET:/a")
	require.NoError(t, err)
	_, err = p1.Parse("a:b:c")
	require.Error(t, err)

	assert.Equal(t, 1, p1.Len())
	assert.Equal(t, 0, p2.Len())
}

func TestDescriptor_GenericFor(t *testing.T) {
	d, err := ParseType("SET:/foo/bar")
	require.NoError(t, err)

	assert.Equal(t, "SET:*", d.GenericFor(keypath.MustParse("/foo/bar"), false))
	assert.Equal(t, "SET:/foo/bar", d.GenericFor(keypath.MustParse("/foo"), false), "leaf matches exact path only")
	assert.Equal(t, "SET:*", d.GenericFor(keypath.MustParse("/foo"), true), "container matches descendants")
	assert.Equal(t, "SET:*", d.GenericFor(keypath.Root, true))
	assert.Equal(t, "SET:/foo/bar", d.GenericFor(keypath.MustParse("/other"), true))

	basic, err := ParseType("SET")
	require.NoError(t, err)
	assert.Equal(t, "SET", basic.GenericFor(keypath.MustParse("/foo"), true))
}

func TestBindType(t *testing.T) {
	got, err := BindType("SET:*", keypath.MustParse("/foo"))
	require.NoError(t, err)
	assert.Equal(t, "SET:/foo", got)

	_, err = BindType("SET", keypath.MustParse("/foo"))
	assert.ErrorContains(t, err, "Cannot bind non-generic action type")

	_, err = BindType("SET:/bar", keypath.MustParse("/foo"))
	assert.ErrorContains(t, err, "Cannot bind bound action type")
}

func TestBind_GenericAndTargets(t *testing.T) {
	self := keypath.MustParse("/list/item")
	in := New("SET:*", 1).WithTarget(SelfTarget, "sibling", "/abs")

	out, err := Bind(in, self)
	require.NoError(t, err)

	assert.Equal(t, "SET:/list/item", out.Type)
	require.Len(t, out.Target, 3)
	assert.Equal(t, "/list/item", out.Target[0].String())
	assert.Equal(t, "/list/sibling", out.Target[1].String())
	assert.Equal(t, "/abs", out.Target[2].String())
	assert.Empty(t, out.TargetRefs)
	assert.Equal(t, "SET:*", in.Type, "input must not be mutated")
}

func TestBind_RejectsBound(t *testing.T) {
	_, err := Bind(New("SET:/x", nil), keypath.MustParse("/y"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Unexpected bound generic action")
}

func TestMatchTarget(t *testing.T) {
	targets := []keypath.Path{keypath.MustParse("/a/b")}

	assert.True(t, MatchTarget(keypath.MustParse("/x"), false, nil))
	assert.True(t, MatchTarget(keypath.MustParse("/a/b"), false, targets))
	assert.True(t, MatchTarget(keypath.MustParse("/a/b/c"), false, targets))
	assert.False(t, MatchTarget(keypath.MustParse("/a/c"), false, targets))
	assert.False(t, MatchTarget(keypath.MustParse("/a"), false, targets))
	assert.True(t, MatchTarget(keypath.MustParse("/a"), true, targets), "containers route to targets below them")
	assert.True(t, MatchTarget(keypath.Root, true, targets))
}

func TestIsLifecycle(t *testing.T) {
	assert.True(t, IsLifecycle(TypeStart))
	assert.True(t, IsLifecycle(TypeStop))
	assert.True(t, IsLifecycle(TypeLoad))
	assert.False(t, IsLifecycle("SET"))
}

func TestAction_Clone_Independent(t *testing.T) {
	a := Action{
		Type:   "X",
		Target: []keypath.Path{keypath.MustParse("/a")},
		Meta:   Meta{Dispatch: &DispatchMeta{ID: "1"}},
	}
	c := a.Clone()
	c.Target[0] = keypath.MustParse("/b")
	c.Meta.Dispatch.ID = "2"

	assert.Equal(t, "/a", a.Target[0].String())
	assert.Equal(t, "1", a.Meta.Dispatch.ID)
}

func TestAction_JSON(t *testing.T) {
	a := Action{
		Type:    "SET:/foo",
		Target:  []keypath.Path{keypath.MustParse("/foo")},
		Payload: "hello",
		Meta: Meta{Dispatch: &DispatchMeta{
			ID:   "d-1",
			Seq:  3,
			Time: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		}},
	}

	data, err := json.Marshal(a)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"type": "SET:/foo",
		"target": ["/foo"],
		"payload": "hello",
		"meta": {"dispatch": {"id": "d-1", "seq": 3, "time": "2024-01-01T00:00:00Z"}}
	}`, string(data))

	var back Action
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, "SET:/foo", back.Type)
	assert.True(t, back.Target[0].Equal(a.Target[0]))
	assert.Equal(t, "d-1", back.DispatchID())

	data, err = json.Marshal(New("PING", nil))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"PING"}`, string(data))
}

func TestMatchType_GenericTypeIsLiteral(t *testing.T) {
	ok, err := MatchType([]string{"SET:*"}, "SET:*")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = MatchType([]string{"SET:*"}, "SET:/foo")
	require.NoError(t, err)
	assert.False(t, ok, "bound types only match after being generalized for the node")
}
