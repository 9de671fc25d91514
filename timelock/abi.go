package timelock

import (
	"encoding/binary"
	"math/big"
)

const wordSize = 32

// Number of head words in the encoding of a descriptor: target, value, offset(func), offset(data), timestamp
const descriptorHeadWords = 5

var uint256Modulus = new(big.Int).Lsh(big.NewInt(1), 256)

// encodeDescriptor returns the canonical ABI encoding of the tuple (address, uint256, string, bytes, uint256).
// Static values are stored in the head; the two dynamic values are stored in the tail, each as a length word followed by the content right-padded to a multiple of 32 bytes.
func encodeDescriptor(d Descriptor) []byte {
	const headSize = descriptorHeadWords * wordSize

	funcSize := paddedSize(len(d.Func))
	dataSize := paddedSize(len(d.Data))
	funcOffset := headSize
	dataOffset := funcOffset + wordSize + funcSize

	buf := make([]byte, dataOffset+wordSize+dataSize)

	// Head
	copy(buf[wordSize-AddressLength:wordSize], d.Target[:])
	putUint256(buf[wordSize:2*wordSize], d.Value)
	putUint64Word(buf[2*wordSize:3*wordSize], uint64(funcOffset))
	putUint64Word(buf[3*wordSize:4*wordSize], uint64(dataOffset))
	putUint64Word(buf[4*wordSize:5*wordSize], d.Timestamp)

	// Tail
	putUint64Word(buf[funcOffset:funcOffset+wordSize], uint64(len(d.Func)))
	copy(buf[funcOffset+wordSize:], d.Func)
	putUint64Word(buf[dataOffset:dataOffset+wordSize], uint64(len(d.Data)))
	copy(buf[dataOffset+wordSize:], d.Data)

	return buf
}

func paddedSize(n int) int {
	return (n + wordSize - 1) / wordSize * wordSize
}

// putUint64Word writes v as a big-endian 256-bit word into dst, which must be 32 bytes long and zeroed.
func putUint64Word(dst []byte, v uint64) {
	binary.BigEndian.PutUint64(dst[wordSize-8:], v)
}

// putUint256 writes v as a big-endian 256-bit word into dst.
// Values outside of the uint256 range are reduced modulo 2^256, so negative numbers are encoded in two's complement.
func putUint256(dst []byte, v *big.Int) {
	if v == nil || v.Sign() == 0 {
		return
	}
	if v.Sign() < 0 || v.BitLen() > 256 {
		v = new(big.Int).Mod(v, uint256Modulus)
	}
	v.FillBytes(dst[:wordSize])
}
