package prover

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/constraint"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/frontend/cs/r1cs"
	"github.com/rs/zerolog"

	"github.com/roach88/witnessgen/internal/ir"
)

// commitmentWidth is the number of field elements a circuit's inputs are
// folded into.
const commitmentWidth = 8

// commitmentCircuit proves knowledge of slot values whose weighted sum of
// squares equals the public commitment.
type commitmentCircuit struct {
	Slots      [commitmentWidth]frontend.Variable
	Commitment frontend.Variable `gnark:",public"`
}

// Define declares the circuit's constraints.
func (c *commitmentCircuit) Define(api frontend.API) error {
	var acc frontend.Variable = 0
	for j, s := range c.Slots {
		acc = api.Add(acc, api.Mul(s, s, j+1))
	}
	api.AssertIsEqual(acc, c.Commitment)
	return nil
}

var compiledCircuit = sync.OnceValues(func() (constraint.ConstraintSystem, error) {
	ccs, err := frontend.Compile(ecc.BN254.ScalarField(), r1cs.NewBuilder, &commitmentCircuit{})
	if err != nil {
		return nil, fmt.Errorf("compile commitment circuit: %w", err)
	}
	return ccs, nil
})

// witnessDigest folds every input of c into one digest. Input order matters.
func witnessDigest(c Circuit) [32]byte {
	h := sha256.New()
	for _, in := range c.Inputs {
		d := ir.CircuitInputDigest(c.Round, c.CircuitID, in)
		h.Write(d[:])
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// assignment derives the circuit's slots from the inputs and computes the
// matching commitment.
func assignment(c Circuit) *commitmentCircuit {
	seed := witnessDigest(c)

	var (
		a   commitmentCircuit
		sum fr.Element
	)
	for j := 0; j < commitmentWidth; j++ {
		h := sha256.Sum256(append(seed[:], byte(j)))

		var slot, term, weight fr.Element
		slot.SetBytes(h[:])
		weight.SetUint64(uint64(j + 1))
		term.Square(&slot).Mul(&term, &weight)
		sum.Add(&sum, &term)

		a.Slots[j] = slot.BigInt(new(big.Int))
	}
	a.Commitment = sum.BigInt(new(big.Int))
	return &a
}

// GnarkProver proves circuits with groth16 over BN254.
type GnarkProver struct {
	log zerolog.Logger

	mu  sync.Mutex
	pks map[string]groth16.ProvingKey
}

// NewGnarkProver returns a prover that caches parsed proving keys by Keys.ID.
func NewGnarkProver(log zerolog.Logger) *GnarkProver {
	return &GnarkProver{
		log: log.With().Str("component", "prover").Logger(),
		pks: make(map[string]groth16.ProvingKey),
	}
}

// Prove generates a groth16 proof for c and returns it in gnark's binary
// encoding.
func (p *GnarkProver) Prove(ctx context.Context, c Circuit, keys Keys) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ccs, err := compiledCircuit()
	if err != nil {
		return nil, err
	}

	pk, err := p.provingKey(keys)
	if err != nil {
		return nil, err
	}

	w, err := frontend.NewWitness(assignment(c), ecc.BN254.ScalarField())
	if err != nil {
		return nil, fmt.Errorf("failed to create witness: %w", err)
	}

	start := time.Now()
	proof, err := groth16.Prove(ccs, pk, w)
	if err != nil {
		return nil, fmt.Errorf("proof generation failed: %w", err)
	}

	var buf bytes.Buffer
	if _, err := proof.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("serialize proof: %w", err)
	}

	p.log.Debug().
		Stringer("round", c.Round).
		Uint8("circuit_id", uint8(c.CircuitID)).
		Int("inputs", len(c.Inputs)).
		Dur("elapsed", time.Since(start)).
		Msg("proof generated")

	return buf.Bytes(), nil
}

func (p *GnarkProver) provingKey(keys Keys) (groth16.ProvingKey, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if pk, ok := p.pks[keys.ID]; ok {
		return pk, nil
	}
	if len(keys.ProvingKey) == 0 {
		return nil, fmt.Errorf("keys %q: empty proving key: %w", keys.ID, ErrKeysNotFound)
	}

	pk := groth16.NewProvingKey(ecc.BN254)
	if _, err := pk.ReadFrom(bytes.NewReader(keys.ProvingKey)); err != nil {
		return nil, fmt.Errorf("failed to read PK %q: %w", keys.ID, err)
	}
	p.pks[keys.ID] = pk
	return pk, nil
}

// Verify checks a proof produced by Prove for the same circuit and keys.
func Verify(c Circuit, keys Keys, proofBytes []byte) error {
	vk := groth16.NewVerifyingKey(ecc.BN254)
	if _, err := vk.ReadFrom(bytes.NewReader(keys.VerificationKey)); err != nil {
		return fmt.Errorf("failed to read VK %q: %w", keys.ID, err)
	}

	proof := groth16.NewProof(ecc.BN254)
	if _, err := proof.ReadFrom(bytes.NewReader(proofBytes)); err != nil {
		return fmt.Errorf("failed to read proof: %w", err)
	}

	public, err := frontend.NewWitness(assignment(c), ecc.BN254.ScalarField(), frontend.PublicOnly())
	if err != nil {
		return fmt.Errorf("failed to create public witness: %w", err)
	}

	if err := groth16.Verify(proof, vk, public); err != nil {
		return fmt.Errorf("verify proof: %w", err)
	}
	return nil
}

const (
	provingKeyFile      = "commitment.pk"
	verificationKeyFile = "commitment.vk"
)

// GnarkKeystore runs the groth16 setup for the commitment circuit once and
// serves the resulting keys for every known circuit. When dir is set the
// keys are loaded from it if present and written to it otherwise.
type GnarkKeystore struct {
	dir string
	log zerolog.Logger

	once sync.Once
	pk   []byte
	vk   []byte
	err  error
}

// NewGnarkKeystore returns a keystore persisting keys under dir.
// An empty dir keeps keys in memory only.
func NewGnarkKeystore(dir string, log zerolog.Logger) *GnarkKeystore {
	return &GnarkKeystore{dir: dir, log: log.With().Str("component", "keystore").Logger()}
}

// Keys returns the keys for (round, circuit), running setup on first use.
func (k *GnarkKeystore) Keys(round ir.Round, circuit ir.CircuitID) (Keys, error) {
	if !KnownCircuit(round, circuit) {
		return Keys{}, fmt.Errorf("%s circuit %d: %w", round, circuit, ErrKeysNotFound)
	}

	k.once.Do(k.load)
	if k.err != nil {
		return Keys{}, k.err
	}
	return Keys{
		ID:              "commitment",
		ProvingKey:      k.pk,
		VerificationKey: k.vk,
	}, nil
}

func (k *GnarkKeystore) load() {
	if k.dir != "" {
		pk, pkErr := os.ReadFile(filepath.Join(k.dir, provingKeyFile))
		vk, vkErr := os.ReadFile(filepath.Join(k.dir, verificationKeyFile))
		if pkErr == nil && vkErr == nil {
			k.pk, k.vk = pk, vk
			k.log.Info().Str("dir", k.dir).Msg("proving keys loaded")
			return
		}
		if !errors.Is(pkErr, os.ErrNotExist) && pkErr != nil {
			k.err = fmt.Errorf("failed to open PK file: %w", pkErr)
			return
		}
	}

	ccs, err := compiledCircuit()
	if err != nil {
		k.err = err
		return
	}

	k.log.Info().
		Int("constraints", ccs.GetNbConstraints()).
		Msg("generating proving and verifying keys")

	pk, vk, err := groth16.Setup(ccs)
	if err != nil {
		k.err = fmt.Errorf("groth16 setup: %w", err)
		return
	}

	var pkBuf, vkBuf bytes.Buffer
	if _, err := pk.WriteTo(&pkBuf); err != nil {
		k.err = fmt.Errorf("serialize PK: %w", err)
		return
	}
	if _, err := vk.WriteTo(&vkBuf); err != nil {
		k.err = fmt.Errorf("serialize VK: %w", err)
		return
	}
	k.pk, k.vk = pkBuf.Bytes(), vkBuf.Bytes()

	if k.dir == "" {
		return
	}
	if err := os.MkdirAll(k.dir, 0o755); err != nil {
		k.err = fmt.Errorf("create keys dir: %w", err)
		return
	}
	if err := os.WriteFile(filepath.Join(k.dir, provingKeyFile), k.pk, 0o644); err != nil {
		k.err = fmt.Errorf("write PK: %w", err)
		return
	}
	if err := os.WriteFile(filepath.Join(k.dir, verificationKeyFile), k.vk, 0o644); err != nil {
		k.err = fmt.Errorf("write VK: %w", err)
		return
	}
	k.log.Info().Str("dir", k.dir).Msg("proving keys saved")
}
