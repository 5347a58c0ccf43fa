package teecrypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSealOpenTeaclaveFileRoundTrips(t *testing.T) {
	info, err := GenerateTeaclaveFile128()
	require.NoError(t, err)

	plaintext := make([]byte, BlockSize*2+17)
	for i := range plaintext {
		plaintext[i] = byte(i)
	}

	sealed, err := SealTeaclaveFile(info.Key, "file:///a", plaintext)
	require.NoError(t, err)

	opened, err := OpenTeaclaveFile(info.Key, "file:///a", sealed)
	require.NoError(t, err)
	assert.Equal(t, plaintext, opened)
}

func TestOpenTeaclaveFileRejectsWrongURL(t *testing.T) {
	info, err := GenerateTeaclaveFile128()
	require.NoError(t, err)
	sealed, err := SealTeaclaveFile(info.Key, "file:///a", []byte("hello"))
	require.NoError(t, err)

	_, err = OpenTeaclaveFile(info.Key, "file:///b", sealed)
	assert.Error(t, err)
}

func TestAppendTeaclaveFileLeavesExistingBlocksByteIdentical(t *testing.T) {
	info, err := GenerateTeaclaveFile128()
	require.NoError(t, err)

	first := make([]byte, BlockSize+5)
	for i := range first {
		first[i] = byte(i)
	}
	sealed, err := SealTeaclaveFile(info.Key, "file:///a", first)
	require.NoError(t, err)

	extra := []byte("appended tail")
	appended, err := AppendTeaclaveFile(info.Key, "file:///a", sealed, extra)
	require.NoError(t, err)

	// The original blocks' header+ciphertext region is untouched: everything
	// between the 4-byte count and the trailing digest of the original file
	// reappears verbatim at the same offset in the appended file.
	origBody := sealed[4 : len(sealed)-32]
	newBody := appended[4 : len(appended)-32]
	require.True(t, len(newBody) >= len(origBody))
	assert.Equal(t, origBody, newBody[:len(origBody)], "existing blocks must not be re-encrypted")

	opened, err := OpenTeaclaveFile(info.Key, "file:///a", appended)
	require.NoError(t, err)
	assert.Equal(t, append(append([]byte(nil), first...), extra...), opened)
}

func TestAppendTeaclaveFileRejectsTamperedInput(t *testing.T) {
	info, err := GenerateTeaclaveFile128()
	require.NoError(t, err)
	sealed, err := SealTeaclaveFile(info.Key, "file:///a", []byte("hello"))
	require.NoError(t, err)
	sealed[len(sealed)-1] ^= 0xFF

	_, err = AppendTeaclaveFile(info.Key, "file:///a", sealed, []byte("more"))
	assert.Error(t, err)
}
