package timelock

import (
	"encoding/hex"
	"math/big"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDescriptor(t *testing.T) {
	d := Descriptor{
		Target:    MustParseAddress("0x00000000000000000000000000000000000000ff"),
		Value:     big.NewInt(5),
		Func:      "foo()",
		Data:      []byte{0x01, 0x02, 0x03},
		Timestamp: 1010,
	}

	enc := encodeDescriptor(d)
	// 5 head words, then length + one padded word for each dynamic value
	require.Len(t, enc, 9*wordSize)

	words := make([]string, 0, 9)
	for i := 0; i < len(enc); i += wordSize {
		words = append(words, hex.EncodeToString(enc[i:i+wordSize]))
	}

	pad := func(s string) string {
		return strings.Repeat("0", 64-len(s)) + s
	}
	padRight := func(s string) string {
		return s + strings.Repeat("0", 64-len(s))
	}

	assert.Equal(t, []string{
		// Head: target, value, offset of func (160), offset of data (160+32+32), timestamp (1010)
		pad("ff"),
		pad("05"),
		pad("a0"),
		pad("e0"),
		pad("03f2"),
		// Tail: func, then data
		pad("05"),
		padRight(hex.EncodeToString([]byte("foo()"))),
		pad("03"),
		padRight("010203"),
	}, words)
}

func TestEncodeDescriptorEmptyDynamicValues(t *testing.T) {
	enc := encodeDescriptor(Descriptor{Timestamp: 1})
	// 5 head words plus two length words
	require.Len(t, enc, 7*wordSize)
	assert.Equal(t, byte(0xa0), enc[3*wordSize-1])
	assert.Equal(t, byte(0xc0), enc[4*wordSize-1])
	assert.Equal(t, byte(0x01), enc[5*wordSize-1])
}

func TestPutUint256(t *testing.T) {
	t.Run("nil is zero", func(t *testing.T) {
		word := make([]byte, wordSize)
		putUint256(word, nil)
		assert.Equal(t, make([]byte, wordSize), word)
	})

	t.Run("max uint256", func(t *testing.T) {
		word := make([]byte, wordSize)
		maxValue := new(big.Int).Sub(uint256Modulus, big.NewInt(1))
		putUint256(word, maxValue)
		assert.Equal(t, strings.Repeat("ff", wordSize), hex.EncodeToString(word))
	})

	t.Run("negative values use two's complement", func(t *testing.T) {
		word := make([]byte, wordSize)
		putUint256(word, big.NewInt(-1))
		assert.Equal(t, strings.Repeat("ff", wordSize), hex.EncodeToString(word))
	})

	t.Run("values larger than 256 bits wrap", func(t *testing.T) {
		word := make([]byte, wordSize)
		putUint256(word, new(big.Int).Add(uint256Modulus, big.NewInt(7)))
		assert.Equal(t, strings.Repeat("00", wordSize-1)+"07", hex.EncodeToString(word))
	})
}
