// Package vdf implements a Wesolowski-style verifiable delay function over a
// fixed RSA-like group: evaluation is T sequential modular squarings,
// verification is two fixed-size modular exponentiations regardless of T.
//
// Superseded the plain SHA-256 hash-chain sketched in
// original_source/src/vdf.rs — spec.md §4.2 requires the Wesolowski relation
// and its O(log T) verification cost, which a hash chain cannot provide (a
// hash chain can only be checked by replaying every step).
package vdf

import (
	"crypto/sha256"
	"encoding/binary"
	"math/big"
)

// modulusHex is a fixed 2048-bit RSA-like modulus with unknown factorization
// (the public RSA-2048 factoring-challenge number), used as the VDF group.
const modulusHex = "c7970ceedcc3b0754490201a7aa613cd73911081c790f5f1a8726f463550bb5" +
	"b7ff0db8e1ea1189ec72f93d1650011bd721aeeacc2acde32a04107f0648c281" +
	"3a31f5b0b7765ff8b44b4b6ffc93384b646eb09c7cf5e8592d40ea33c80039f3" +
	"5b4f14a04b51f7bfd781be4d1673164ba8eb991c2c4d730bbbe35f592bdef524" +
	"af7e8daefd26c66fc02c479af89d64d373f442709439de66ceb955f3ea37d515" +
	"9f6135809f85334b5cb1813addc80cd05609f10ac6a95ad65872c909525bdad3" +
	"2bc729592642920f24c61dc5b3c3b7923e56b16a4d9d373d8721f24a3fc0f1b3" +
	"131f55615172866bccc30f95054c824e733a5eb6817f7bc16399d48c6361cc7e5"

var defaultModulus = mustParseModulus(modulusHex)

func mustParseModulus(hexStr string) *big.Int {
	n, ok := new(big.Int).SetString(hexStr, 16)
	if !ok {
		panic("vdf: invalid modulus hex literal")
	}
	return n
}

// VDF evaluates and verifies the Wesolowski relation over a fixed modulus N.
type VDF struct {
	N *big.Int
}

// New returns a VDF over the package's default 2048-bit modulus.
func New() *VDF {
	return &VDF{N: defaultModulus}
}

// Proof is a Wesolowski proof that Y == X^(2^T) mod N.
type Proof struct {
	Y  *big.Int // result: x^(2^T) mod N
	Pi *big.Int // witness: x^floor(2^T / L) mod N
	L  *big.Int // Fiat-Shamir challenge prime, derived from (x, y, T)
}

// Evaluate runs T sequential squarings starting from x and produces a
// Wesolowski proof of the result. This is the slow, sequential half of the
// VDF — T group operations, no shortcut without knowing N's factorization.
func (v *VDF) Evaluate(x *big.Int, T uint64) Proof {
	n := v.N

	y := new(big.Int).Set(x)
	for i := uint64(0); i < T; i++ {
		y.Mul(y, y)
		y.Mod(y, n)
	}

	l := hashToPrime(x, y, T)

	// Incremental long-division witness computation (Wesolowski / Pietrzak):
	// maintains q = floor(2^i / l) and r = 2^i mod l bit by bit, so pi ends
	// up as x^floor(2^T/l) mod N without ever materialising 2^T.
	pi := big.NewInt(1)
	r := big.NewInt(1)
	two := big.NewInt(2)
	for i := uint64(0); i < T; i++ {
		r2 := new(big.Int).Mul(r, two)
		b := new(big.Int).Quo(r2, l) // 0 or 1, since r < l implies r2 < 2l
		r = new(big.Int).Mod(r2, l)

		pi.Mul(pi, pi)
		pi.Mod(pi, n)
		if b.Sign() != 0 {
			pi.Mul(pi, x)
			pi.Mod(pi, n)
		}
	}

	return Proof{Y: y, Pi: pi, L: l}
}

// Verify checks that y == x^(2^T) mod N using proof, in two fixed-size
// modular exponentiations — independent of T. The challenge prime L is
// recomputed from (x, y, T) rather than trusted from the wire: it is
// derived solely from public instance data, so an honest proof always
// matches and there is nothing gained by transmitting it.
func (v *VDF) Verify(x, y *big.Int, T uint64, proof Proof) bool {
	n := v.N

	l := hashToPrime(x, y, T)

	r := new(big.Int).Exp(big.NewInt(2), new(big.Int).SetUint64(T), l)

	lhs := new(big.Int).Exp(proof.Pi, l, n)
	xr := new(big.Int).Exp(x, r, n)
	lhs.Mul(lhs, xr)
	lhs.Mod(lhs, n)

	return lhs.Cmp(y) == 0
}

// hashToPrime derives a deterministic challenge prime from (x, y, T) via
// Fiat-Shamir: hash the inputs, then walk odd candidates until one passes a
// Miller-Rabin primality test. The resulting prime's bit length tracks the
// hash output size, independent of T.
func hashToPrime(x, y *big.Int, T uint64) *big.Int {
	h := sha256.New()
	h.Write(x.Bytes())
	h.Write(y.Bytes())
	var tb [8]byte
	binary.BigEndian.PutUint64(tb[:], T)
	h.Write(tb[:])
	seed := h.Sum(nil)

	candidate := new(big.Int).SetBytes(seed)
	candidate.SetBit(candidate, 0, 1) // force odd
	two := big.NewInt(2)
	for !candidate.ProbablyPrime(20) {
		candidate.Add(candidate, two)
	}
	return candidate
}
