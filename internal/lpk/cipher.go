package lpk

// blockSize is the keystream period: the generator state is reset at
// every block boundary.
const blockSize = 1024

// DeriveKey computes the 31-multiplier string hash of material over its
// code points and returns the 32-bit result sign-extended to 64 bits.
func DeriveKey(material string) int64 {
	var acc uint32
	for _, r := range material {
		acc = acc*31 + uint32(r)
	}
	return int64(int32(acc))
}

// Decrypt XORs data with the keystream generated from key. It never
// modifies data.
func Decrypt(key int64, data []byte) []byte {
	out := make([]byte, len(data))
	seed := uint32(key)
	for start := 0; start < len(data); start += blockSize {
		end := min(start+blockSize, len(data))
		state := seed
		for i := start; i < end; i++ {
			state = ((2531011 + 214013*state) >> 16) & 0xFFFF
			out[i] = data[i] ^ byte(state)
		}
	}
	return out
}

// Encrypt is Decrypt: the keystream is XORed, so applying it twice
// restores the input.
func Encrypt(key int64, data []byte) []byte {
	return Decrypt(key, data)
}
