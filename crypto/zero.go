package crypto

// zeroBytea32 clears a 32-byte array by filling it with the zero value.
// Used to explicitly clear private key material from memory once a
// subscription no longer needs it.
func zeroBytea32(b *[32]byte) {
	*b = [32]byte{}
}
