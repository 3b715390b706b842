package canon

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshal_SortedKeys(t *testing.T) {
	got, err := Marshal(map[string]any{
		"zeta":  1,
		"alpha": 2,
		"mid":   3,
	})
	require.NoError(t, err)
	assert.Equal(t, `{"alpha":2,"mid":3,"zeta":1}`, string(got))
}

func TestMarshal_Nested(t *testing.T) {
	got, err := Marshal(map[string]any{
		"trace": []any{
			map[string]any{"type": "signal", "seq": int64(1)},
			map[string]any{"type": "completion", "seq": int64(2)},
		},
		"name": "run",
	})
	require.NoError(t, err)
	assert.Equal(t,
		`{"name":"run","trace":[{"seq":1,"type":"signal"},{"seq":2,"type":"completion"}]}`,
		string(got))
}

func TestMarshal_NoHTMLEscaping(t *testing.T) {
	got, err := Marshal("a<b>&c")
	require.NoError(t, err)
	assert.Equal(t, `"a<b>&c"`, string(got))
}

func TestMarshal_NFCNormalization(t *testing.T) {
	// "e" + COMBINING ACUTE ACCENT normalizes to the precomposed form.
	decomposed, err := Marshal("cafe\u0301")
	require.NoError(t, err)
	precomposed, err := Marshal("caf\u00e9")
	require.NoError(t, err)
	assert.Equal(t, string(precomposed), string(decomposed))
}

func TestMarshal_RejectsFloatsAndNulls(t *testing.T) {
	_, err := Marshal(3.14)
	assert.Error(t, err)

	_, err = Marshal(nil)
	assert.Error(t, err)

	_, err = Marshal(map[string]any{"x": nil})
	assert.Error(t, err)
}

func TestMarshal_Bools(t *testing.T) {
	got, err := Marshal(map[string]any{"pass": true, "fail": false})
	require.NoError(t, err)
	assert.Equal(t, `{"fail":false,"pass":true}`, string(got))
}

func TestLessUTF16(t *testing.T) {
	// U+FF01 (BMP) sorts before U+10000 (surrogate pair starting 0xD800)
	// under UTF-16 ordering, even though UTF-8 bytes say otherwise.
	assert.True(t, lessUTF16("\U00010000", "！"))
	assert.True(t, lessUTF16("a", "ab"))
	assert.False(t, lessUTF16("b", "a"))
}
