package fair

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeedHashMatchesKnownVector(t *testing.T) {
	// SHA-256("abc")
	assert.Equal(t,
		"ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad",
		SeedHash("abc"))
}

func TestDrawDeterministicAndBounded(t *testing.T) {
	seed := NewServerSeed()
	for nonce := 0; nonce < 50; nonce++ {
		v := Draw(seed, "room1", nonce)
		require.GreaterOrEqual(t, v, 0.0)
		require.Less(t, v, 1.0)
		assert.Equal(t, v, Draw(seed, "room1", nonce), "same inputs must reproduce")
	}
}

func TestDrawDependsOnEveryInput(t *testing.T) {
	seed := NewServerSeed()
	base := Draw(seed, "AbCdE", 0)
	assert.NotEqual(t, base, Draw(seed, "AbCdE", 1))
	assert.NotEqual(t, base, Draw(seed, "AbCdF", 0))
	assert.NotEqual(t, base, Draw(NewServerSeed(), "AbCdE", 0))
}

func TestCoinflipVerifyRoundTrip(t *testing.T) {
	seed := NewServerSeed()
	result := Coinflip(seed, "r1", 0)
	require.True(t, ValidSide(result))
	assert.True(t, VerifyCoinflip(seed, "r1", 0, result))
	assert.False(t, VerifyCoinflip(seed, "r1", 0, Opposite(result)))
}

func TestDiceRollRange(t *testing.T) {
	seed := NewServerSeed()
	for _, sides := range []int{2, 6, 20} {
		for nonce := 0; nonce < 200; nonce++ {
			v := DiceRoll(seed, "r1|u1", nonce, sides)
			require.GreaterOrEqual(t, v, 1)
			require.LessOrEqual(t, v, sides)
		}
	}
}

func TestDiceRollVerify(t *testing.T) {
	seed := NewServerSeed()
	v := DiceRoll(seed, "r1|u1", 3, 6)
	assert.True(t, VerifyDiceRoll(seed, "r1|u1", 3, 6, v))
}

func TestEngineCommitMatchesSecret(t *testing.T) {
	e := NewEngine()
	commit := e.Commit()
	prev := e.Rotate()
	assert.Equal(t, SeedHash(prev), commit, "rotation must disclose the committed secret")
	assert.NotEqual(t, commit, e.Commit())
}

func TestMintCommitmentIndependentSecrets(t *testing.T) {
	e := NewEngine()
	s1, h1 := e.MintCommitment()
	s2, h2 := e.MintCommitment()
	assert.NotEqual(t, s1, s2)
	assert.Equal(t, SeedHash(s1), h1)
	assert.Equal(t, SeedHash(s2), h2)
}
