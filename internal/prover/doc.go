// Package prover defines the proving function used by every round and its
// key material.
//
// A Prover turns a Circuit (the round, the circuit id and the ordered input
// blobs) into an opaque proof. Production uses GnarkProver, a groth16 prover
// over BN254 for a fixed-width commitment circuit. Tests use Marker, which
// returns a fixed proof so outputs are byte-stable.
package prover
