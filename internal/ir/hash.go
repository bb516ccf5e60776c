package ir

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
)

// Domain prefixes for content hashes.
// Version suffix enables future algorithm migration.
const (
	DomainAuxWitness = "witnessgen/aux-witness/v1"
	DomainCircuit    = "witnessgen/circuit-input/v1"
)

// hashWithDomain computes SHA-256 with domain separation.
// Format: SHA256(domain + 0x00 + data)
// The null byte separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data ...[]byte) []byte {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	for _, d := range data {
		h.Write(d)
	}
	return h.Sum(nil)
}

// ContentHash returns the hex SHA-256 of data under domain.
func ContentHash(domain string, data []byte) string {
	return hex.EncodeToString(hashWithDomain(domain, data))
}

// CircuitInputDigest binds one circuit input to the round and circuit it is
// proven in, so identical bytes proven in different circuits never share a
// digest.
func CircuitInputDigest(round Round, circuit CircuitID, input []byte) [32]byte {
	var tag [2]byte
	tag[0] = byte(round)
	tag[1] = byte(circuit)
	var length [8]byte
	binary.BigEndian.PutUint64(length[:], uint64(len(input)))

	var out [32]byte
	copy(out[:], hashWithDomain(DomainCircuit, tag[:], length[:], input))
	return out
}
