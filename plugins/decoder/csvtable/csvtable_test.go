package csvtable

import (
	"context"
	"encoding/json"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ttpcrack/pkg/bigram"
	"ttpcrack/pkg/contract"
)

const sample = ", ,A,B\n" +
	" ,0,3,1\n" +
	"A,2,0,2\n" +
	"B,x,4,\n"

func decode(t *testing.T, raw json.RawMessage, src string) (*bigram.Counts, error) {
	t.Helper()
	d, err := New(raw)
	require.NoError(t, err)
	return d.Decode(context.Background(), "table.csv", strings.NewReader(src))
}

// TestDecodeBasic 表头与行标签，含空格标签
func TestDecodeBasic(t *testing.T) {
	c, err := decode(t, nil, sample)
	require.NoError(t, err)
	assert.Equal(t, 3, c.Rows())

	v, ok := c.Get(0, 1)
	assert.True(t, ok)
	assert.Equal(t, 3.0, v)
	v, _ = c.Get(1, 2)
	assert.Equal(t, 2.0, v)

	// 非数值与空单元按 0 计
	v, ok = c.Get(2, 0)
	assert.True(t, ok)
	assert.Equal(t, 0.0, v)
	v, ok = c.Get(2, 2)
	assert.True(t, ok)
	assert.Equal(t, 0.0, v)

	m := bigram.New(c, bigram.DefaultFloor)
	assert.InDelta(t, math.Log(0.75), m.LogProb(' ', 'A'), 1e-12)
	assert.InDelta(t, 0.0, m.LogProb('B', 'A'), 1e-12)
	assert.Equal(t, m.Floor(), m.LogProb('B', 'B'))
}

// TestDecodeRagged 行长短不一、超出表头的单元被忽略
func TestDecodeRagged(t *testing.T) {
	c, err := decode(t, nil, ",A,B\nA,1\nB,1,2,99,99\n")
	require.NoError(t, err)
	_, ok := c.Get(1, 2)
	assert.False(t, ok)
	m := bigram.New(c, bigram.DefaultFloor)
	assert.InDelta(t, math.Log(2.0/3.0), m.LogProb('B', 'B'), 1e-12)
}

// 表头同时含 X 与 x：x 不覆盖 X，只计入行总量
func TestDecodeLowercaseAndSpaceWord(t *testing.T) {
	c, err := decode(t, nil, ",space,A,X,x\nspace,1,1,0,0\nA,5,0,2,6\na,9,9,9,9\n")
	require.NoError(t, err)
	v, ok := c.Get(1, 0)
	assert.True(t, ok)
	assert.Equal(t, 5.0, v)
	v, _ = c.Get(1, 24)
	assert.Equal(t, 2.0, v)
	assert.Equal(t, 2, c.Rows(), "小写行被忽略")
	m := bigram.New(c, bigram.DefaultFloor)
	assert.InDelta(t, math.Log(2.0/13.0), m.LogProb('A', 'X'), 1e-12)
}

func TestDecodeSemicolonAndComment(t *testing.T) {
	c, err := decode(t, json.RawMessage(`{"comma":";","comment":"#"}`), "# bigram counts\n;A;B\nA;1;1\n")
	require.NoError(t, err)
	v, _ := c.Get(1, 2)
	assert.Equal(t, 1.0, v)
}

func TestDecodeInvalid(t *testing.T) {
	cases := map[string]string{
		"empty":     "",
		"no labels": "x\nA\n",
		"no rows":   ",A,B\n",
		"out of domain rows": ",A\n1,2\n",
	}
	for name, src := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := decode(t, nil, src)
			assert.ErrorIs(t, err, contract.ErrTableInvalid)
		})
	}
}

func TestNewRejectsOptions(t *testing.T) {
	_, err := New(json.RawMessage(`{"comma":";;"}`))
	assert.Error(t, err)
	_, err = New(json.RawMessage(`{"unknown":1}`))
	assert.Error(t, err)
	_, err = New(json.RawMessage(`{"comma":",","comment":","}`))
	assert.Error(t, err)
	_, err = New(json.RawMessage(`null`))
	assert.NoError(t, err)
}
