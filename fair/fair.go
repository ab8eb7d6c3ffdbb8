// Package fair implements the provably-fair commit/reveal primitive: a secret
// server seed whose SHA-256 commitment is published before play, and a
// deterministic HMAC draw over (secret, public seed, nonce) that anyone can
// recompute once the secret is disclosed.
package fair

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"sync"
)

// Sides of a coinflip draw.
const (
	Heads = "heads"
	Tails = "tails"
)

// Opposite maps a coin side to the other one.
func Opposite(side string) string {
	if side == Heads {
		return Tails
	}
	return Heads
}

// ValidSide reports whether s is a usable coin side.
func ValidSide(s string) bool {
	return s == Heads || s == Tails
}

// NewServerSeed returns a fresh 32-byte secret as 64 hex chars.
func NewServerSeed() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		panic(fmt.Sprintf("fair: rand.Read: %v", err))
	}
	return hex.EncodeToString(buf)
}

// SeedHash is the commitment for a secret: SHA-256 hex. Safe to publish before
// the outcome is known.
func SeedHash(serverSeed string) string {
	sum := sha256.Sum256([]byte(serverSeed))
	return hex.EncodeToString(sum[:])
}

// HmacHex is the draw core: HMAC-SHA256(key=serverSeed, msg="clientSeed:nonce").
func HmacHex(serverSeed, clientSeed string, nonce int) string {
	mac := hmac.New(sha256.New, []byte(serverSeed))
	mac.Write([]byte(clientSeed + ":" + strconv.Itoa(nonce)))
	return hex.EncodeToString(mac.Sum(nil))
}

// Draw maps the first 32 bits of the HMAC onto [0,1).
func Draw(serverSeed, clientSeed string, nonce int) float64 {
	hexStr := HmacHex(serverSeed, clientSeed, nonce)
	n, _ := strconv.ParseUint(hexStr[:8], 16, 64)
	return float64(n) / float64(1<<32)
}

// Coinflip resolves a draw to heads (< 0.5) or tails.
func Coinflip(serverSeed, clientSeed string, nonce int) string {
	if Draw(serverSeed, clientSeed, nonce) < 0.5 {
		return Heads
	}
	return Tails
}

// DiceRoll resolves a draw to an integer in [1, sides].
func DiceRoll(serverSeed, clientSeed string, nonce int, sides int) int {
	if sides < 1 {
		sides = 6
	}
	v := int(Draw(serverSeed, clientSeed, nonce)*float64(sides)) + 1
	if v > sides { // guard the open-interval edge
		v = sides
	}
	return v
}

// VerifyCoinflip recomputes a flip and compares it to the claimed result.
func VerifyCoinflip(serverSeed, clientSeed string, nonce int, result string) bool {
	return Coinflip(serverSeed, clientSeed, nonce) == result
}

// VerifyDiceRoll recomputes a roll and compares it to the claimed value.
func VerifyDiceRoll(serverSeed, clientSeed string, nonce int, sides, value int) bool {
	return DiceRoll(serverSeed, clientSeed, nonce, sides) == value
}

// Engine holds the process-wide active seed used to mint per-room secrets.
// It replaces a hidden global: construct one at boot, inject it where draws
// are minted, rotate on whatever schedule the operator wants.
type Engine struct {
	mu     sync.Mutex
	secret string
}

// NewEngine returns an Engine with a fresh active seed.
func NewEngine() *Engine {
	return &Engine{secret: NewServerSeed()}
}

// Commit returns the commitment hash of the active seed.
func (e *Engine) Commit() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return SeedHash(e.secret)
}

// Rotate replaces the active seed and returns the previous secret so it can be
// disclosed for verification of past draws.
func (e *Engine) Rotate() (previous string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	previous = e.secret
	e.secret = NewServerSeed()
	return previous
}

// MintCommitment issues an independent per-room secret and its commitment.
// Each room gets its own secret so disclosing one room never weakens another.
func (e *Engine) MintCommitment() (serverSeed, seedHash string) {
	serverSeed = NewServerSeed()
	return serverSeed, SeedHash(serverSeed)
}
