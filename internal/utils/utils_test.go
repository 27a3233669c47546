package utils_test

import (
	"testing"

	"github.com/jrsteele09/as2-portal-session/internal/utils"
	"github.com/stretchr/testify/assert"
)

func TestBearerToken(t *testing.T) {
	tests := []struct {
		name   string
		header string
		token  string
		ok     bool
	}{
		{name: "valid", header: "Bearer abc.def", token: "abc.def", ok: true},
		{name: "lower case scheme", header: "bearer abc", token: "abc", ok: true},
		{name: "missing token", header: "Bearer ", ok: false},
		{name: "wrong scheme", header: "Basic abc", ok: false},
		{name: "empty", header: "", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, ok := utils.BearerToken(tt.header)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.token, token)
		})
	}
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, utils.SplitList(" a, ,b ,"))
	assert.Empty(t, utils.SplitList(""))
}

func TestValueAndPtr(t *testing.T) {
	var nilString *string
	assert.Equal(t, "", utils.Value(nilString))
	assert.Equal(t, 42, utils.Value(utils.Ptr(42)))
}

func TestCloneSliceNeverNil(t *testing.T) {
	var in []string
	out := utils.CloneSlice(in)
	assert.NotNil(t, out)
	assert.Len(t, out, 0)

	src := []string{"x"}
	cp := utils.CloneSlice(src)
	cp[0] = "y"
	assert.Equal(t, "x", src[0])
}
