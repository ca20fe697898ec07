package text

import (
	"context"
	"encoding/json"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ttpcrack/pkg/contract"
)

func render(t *testing.T, raw json.RawMessage, rec contract.Recovery) string {
	t.Helper()
	a, err := New(raw)
	require.NoError(t, err)
	r, err := a.Assemble(context.Background(), rec)
	require.NoError(t, err)
	b, err := io.ReadAll(r)
	require.NoError(t, err)
	return string(b)
}

// TestAssembleFormat 报告格式
func TestAssembleFormat(t *testing.T) {
	got := render(t, nil, contract.Recovery{P1: []byte("THE CAT"), P2: []byte("a dog  "), Score: 12.5})
	assert.Equal(t, "--- Plaintext 1 ---\nTHE CAT\n\n--- Plaintext 2 ---\na dog  \n", got)
}

func TestAssembleWithScore(t *testing.T) {
	got := render(t, json.RawMessage(`{"with_score":true}`), contract.Recovery{P1: []byte("a"), P2: []byte("b"), Score: -3.25})
	assert.Equal(t, "--- Plaintext 1 ---\na\n\n--- Plaintext 2 ---\nb\n\nBest score: -3.25\n", got)
}

// TestAssembleInvalidUTF8 每个最大非法子序列一个替换字符
func TestAssembleInvalidUTF8(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"a\xff\xfeb", "a\uFFFD\uFFFDb"},
		{"\xe2\x82A", "\uFFFDA"},
		{"\xe2\x82", "\uFFFD"},
		{"\xf0\x9f\x98 x", "\uFFFD x"},
		{"\xed\xa0\x80", "\uFFFD\uFFFD\uFFFD"},
		{"\xf0\x80\x80", "\uFFFD\uFFFD\uFFFD"},
		{"\xf4\x90\x80\x80", "\uFFFD\uFFFD\uFFFD\uFFFD"},
		{"\xc0\xaf", "\uFFFD\uFFFD"},
		{"\xef\xbf\xbd", "\uFFFD"},
		{"é", "é"},
		{"", ""},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Decode([]byte(tc.in)), "%q", tc.in)
	}
}

func TestAssembleEmpty(t *testing.T) {
	got := render(t, nil, contract.Recovery{})
	assert.Equal(t, "--- Plaintext 1 ---\n\n\n--- Plaintext 2 ---\n\n", got)
}

func TestNewRejectsUnknown(t *testing.T) {
	_, err := New(json.RawMessage(`{"nope":true}`))
	assert.Error(t, err)
}
