package cli

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tokenmeta/internal/metadata/models"
	"tokenmeta/internal/metadata/signature"
)

var seed = strings.Repeat("07", 32)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestKeygenFromSeed(t *testing.T) {
	out, err := run(t, "keygen", "--seed", seed, "--format", "json")
	require.NoError(t, err)

	var pair keyPair
	require.NoError(t, json.Unmarshal([]byte(out), &pair))
	assert.Equal(t, seed, pair.PrivateKey)
	assert.Len(t, pair.PublicKey, 64)

	again, err := run(t, "keygen", "--seed", seed, "--format", "json")
	require.NoError(t, err)
	assert.Equal(t, out, again)
}

func TestKeygenRandom(t *testing.T) {
	out, err := run(t, "keygen")
	require.NoError(t, err)
	assert.Contains(t, out, "public key:")
	assert.Contains(t, out, "private key:")
}

func TestHashMatchesCanonicalMessage(t *testing.T) {
	out, err := run(t, "hash", "--subject", "s1", "--property", "entryA", "--value", `{"b":1,"a":[true,null]}`, "--seq", "3")
	require.NoError(t, err)

	entry := models.Entry{Value: models.MustParse(`{"b":1,"a":[true,null]}`), SequenceNumber: 3}
	want, err := signature.CanonicalMessage("s1", "entryA", entry)
	require.NoError(t, err)
	assert.Equal(t, want, strings.TrimSpace(out))
}

func TestSignProducesAuthenticEntry(t *testing.T) {
	out, err := run(t, "sign", "--subject", "s1", "--property", "entryA", "--value", "42", "--seq", "1",
		"--key", seed, "--key", strings.Repeat("09", 32), "--format", "json")
	require.NoError(t, err)

	var entry models.Entry
	require.NoError(t, json.Unmarshal([]byte(out), &entry))
	assert.Len(t, entry.Signatures, 2)
	assert.Equal(t, int64(1), entry.SequenceNumber)

	ok, err := signature.NewVerifier().IsAuthentic("s1", "entryA", entry)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCommandErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"bad format", []string{"keygen", "--format", "xml"}, "invalid format"},
		{"bad seed", []string{"keygen", "--seed", "abcd"}, "must be 32 or 64 bytes"},
		{"sign without key", []string{"sign", "--subject", "s", "--property", "p", "--value", "1"}, "at least one --key"},
		{"well-known property", []string{"hash", "--subject", "s", "--property", "name", "--value", `"x"`}, "well-known"},
		{"invalid value", []string{"hash", "--subject", "s", "--property", "p", "--value", "{"}, "not valid JSON"},
		{"negative sequence", []string{"hash", "--subject", "s", "--property", "p", "--value", "1", "--seq=-1"}, ">= 0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := run(t, tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
