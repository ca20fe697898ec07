package jsonreport

import (
	"context"
	"encoding/json"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ttpcrack/pkg/contract"
)

func TestAssembleReport(t *testing.T) {
	a, err := New(json.RawMessage(`{"indent":true}`))
	require.NoError(t, err)
	rec := contract.Recovery{
		P1: []byte("HI"), P2: []byte{'a', 0xff},
		Score: 42.5, Baseline: -10, Seed: 7, Restart: 3, Restarts: 20,
		Proposed: 60000, Accepted: 1234,
		Source: []contract.FileID{"ciphertexts.bin"},
	}
	r, err := a.Assemble(context.Background(), rec)
	require.NoError(t, err)
	b, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(b), "{\n  \""))

	var got Report
	require.NoError(t, json.Unmarshal(b, &got))
	assert.Equal(t, "HI", got.Plaintext1)
	assert.Equal(t, "a�", got.Plaintext2)
	assert.Equal(t, "4849", got.P1Hex)
	assert.Equal(t, "61ff", got.P2Hex)
	assert.Equal(t, 2, got.Length)
	assert.Equal(t, 42.5, got.Score)
	assert.Equal(t, uint64(7), got.Seed)
	assert.Equal(t, 3, got.Restart)
	assert.Equal(t, []string{"ciphertexts.bin"}, got.Sources)
}

func TestAssembleCompactEmpty(t *testing.T) {
	a, err := New(nil)
	require.NoError(t, err)
	r, err := a.Assemble(context.Background(), contract.Recovery{Restart: -1})
	require.NoError(t, err)
	b, _ := io.ReadAll(r)
	assert.JSONEq(t, `{"plaintext1":"","plaintext2":"","p1_hex":"","p2_hex":"","length":0,"score":0,"baseline":0,"seed":0,"restart":-1,"restarts":0,"proposed":0,"accepted":0}`, string(b))
}

func TestAssembleCanceled(t *testing.T) {
	a, _ := New(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := a.Assemble(ctx, contract.Recovery{})
	assert.ErrorIs(t, err, context.Canceled)
}
