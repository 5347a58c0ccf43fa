// Package teecrypto implements the file confidentiality schemes of spec
// §4.6, grounded on the teacher's infrastructure/crypto envelope: AEAD with
// URL-qualified additional authenticated data, derived per-purpose keys.
package teecrypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"github.com/teaclave-go/platform/internal/model"
	"github.com/teaclave-go/platform/internal/taclerr"
	"golang.org/x/crypto/hkdf"
)

// BlockSize is the size of a TeaclaveFile128 block, matching spec §4.6.
const BlockSize = 4096

// Encrypt seals plaintext under the named scheme, binding the ciphertext to
// url via AAD so swapping a sealed blob between two file records fails
// authentication. Raw is only valid for public functions; callers enforce
// that policy before calling Encrypt.
func Encrypt(info model.CryptoInfo, url string, plaintext []byte) ([]byte, error) {
	switch info.Scheme {
	case model.CryptoRaw:
		return plaintext, nil
	case model.CryptoAesGcm128:
		return sealGCM(info.Key, info.IV, url, plaintext, 16)
	case model.CryptoAesGcm256:
		return sealGCM(info.Key, info.IV, url, plaintext, 32)
	case model.CryptoTeaclaveFile128:
		return SealTeaclaveFile(info.Key, url, plaintext)
	default:
		return nil, taclerr.Crypto(fmt.Sprintf("unknown scheme %q", info.Scheme))
	}
}

// Decrypt opens ciphertext previously produced by Encrypt. A tampered
// ciphertext, wrong key, or mismatched url always yields a Crypto error.
func Decrypt(info model.CryptoInfo, url string, ciphertext []byte) ([]byte, error) {
	switch info.Scheme {
	case model.CryptoRaw:
		return ciphertext, nil
	case model.CryptoAesGcm128:
		return openGCM(info.Key, info.IV, url, ciphertext, 16)
	case model.CryptoAesGcm256:
		return openGCM(info.Key, info.IV, url, ciphertext, 32)
	case model.CryptoTeaclaveFile128:
		return OpenTeaclaveFile(info.Key, url, ciphertext)
	default:
		return nil, taclerr.Crypto(fmt.Sprintf("unknown scheme %q", info.Scheme))
	}
}

func sealGCM(key, iv []byte, aad string, plaintext []byte, keyLen int) ([]byte, error) {
	if len(key) != keyLen {
		return nil, taclerr.Crypto(fmt.Sprintf("key must be %d bytes, got %d", keyLen, len(key)))
	}
	if len(iv) != 12 {
		return nil, taclerr.Crypto(fmt.Sprintf("iv must be 12 bytes, got %d", len(iv)))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, taclerr.Crypto(err.Error())
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, taclerr.Crypto(err.Error())
	}
	return aead.Seal(nil, iv, plaintext, []byte(aad)), nil
}

func openGCM(key, iv []byte, aad string, ciphertext []byte, keyLen int) ([]byte, error) {
	if len(key) != keyLen {
		return nil, taclerr.Crypto(fmt.Sprintf("key must be %d bytes, got %d", keyLen, len(key)))
	}
	if len(iv) != 12 {
		return nil, taclerr.Crypto(fmt.Sprintf("iv must be 12 bytes, got %d", len(iv)))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, taclerr.Crypto(err.Error())
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, taclerr.Crypto(err.Error())
	}
	plaintext, err := aead.Open(nil, iv, ciphertext, []byte(aad))
	if err != nil {
		return nil, taclerr.Crypto("authentication failed")
	}
	return plaintext, nil
}

// GenerateAesGcm128 creates fresh key/IV material for a new AES-GCM-128 file.
func GenerateAesGcm128() (model.CryptoInfo, error) {
	return generateGCMInfo(model.CryptoAesGcm128, 16)
}

// GenerateAesGcm256 creates fresh key/IV material for a new AES-GCM-256 file.
func GenerateAesGcm256() (model.CryptoInfo, error) {
	return generateGCMInfo(model.CryptoAesGcm256, 32)
}

func generateGCMInfo(scheme model.CryptoScheme, keyLen int) (model.CryptoInfo, error) {
	key := make([]byte, keyLen)
	iv := make([]byte, 12)
	if _, err := rand.Read(key); err != nil {
		return model.CryptoInfo{}, taclerr.Internal(err)
	}
	if _, err := rand.Read(iv); err != nil {
		return model.CryptoInfo{}, taclerr.Internal(err)
	}
	return model.CryptoInfo{Scheme: scheme, Key: key, IV: iv}, nil
}

// GenerateTeaclaveFile128 creates a fresh 128-bit master key for a sealed,
// random-access file. The returned CryptoInfo has no IV: per-block nonces
// are derived deterministically from the key and block index.
func GenerateTeaclaveFile128() (model.CryptoInfo, error) {
	key := make([]byte, 16)
	if _, err := rand.Read(key); err != nil {
		return model.CryptoInfo{}, taclerr.Internal(err)
	}
	return model.CryptoInfo{Scheme: model.CryptoTeaclaveFile128, Key: key}, nil
}

// blockKey derives the per-file AES-128 key used to seal TeaclaveFile128
// blocks, binding it to the file's URL so a key can't be replayed against a
// different file record.
func blockKey(masterKey []byte, url string) ([]byte, error) {
	if len(masterKey) != 16 {
		return nil, taclerr.Crypto(fmt.Sprintf("TeaclaveFile128 key must be 16 bytes, got %d", len(masterKey)))
	}
	out := make([]byte, 16)
	r := hkdf.New(sha256.New, masterKey, []byte(url), []byte("teaclave-file-128"))
	if _, err := r.Read(out); err != nil {
		return nil, taclerr.Internal(err)
	}
	return out, nil
}

func blockNonce(blockIndex uint64) []byte {
	nonce := make([]byte, 12)
	binary.BigEndian.PutUint64(nonce[4:], blockIndex)
	return nonce
}

// SealTeaclaveFile splits plaintext into BlockSize blocks, each authenticated
// independently with AES-128-GCM, and chains their tags with a running
// SHA-256 hash (a flattened Merkle chain) so block reordering or truncation
// is detectable even though each block decrypts independently. The wire
// format is: 4-byte block count, then per block: 4-byte length, ciphertext
// (plaintext length + 16-byte GCM tag), followed by the 32-byte chain digest
// covering every block's tag in order.
func SealTeaclaveFile(masterKey []byte, url string, plaintext []byte) ([]byte, error) {
	key, err := blockKey(masterKey, url)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, taclerr.Crypto(err.Error())
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, taclerr.Crypto(err.Error())
	}

	var blocks [][]byte
	chain := sha256.New()
	chain.Write([]byte(url))

	for off := 0; off < len(plaintext) || (off == 0 && len(plaintext) == 0); off += BlockSize {
		end := off + BlockSize
		if end > len(plaintext) {
			end = len(plaintext)
		}
		sealed := aead.Seal(nil, blockNonce(uint64(len(blocks))), plaintext[off:end], []byte(url))
		blocks = append(blocks, sealed)
		tag := sealed[len(sealed)-aead.Overhead():]
		chain.Write(tag)
		if end == len(plaintext) {
			break
		}
	}

	out := make([]byte, 4)
	binary.BigEndian.PutUint32(out, uint32(len(blocks)))
	for _, b := range blocks {
		lenBuf := make([]byte, 4)
		binary.BigEndian.PutUint32(lenBuf, uint32(len(b)))
		out = append(out, lenBuf...)
		out = append(out, b...)
	}
	out = append(out, chain.Sum(nil)...)
	return out, nil
}

// OpenTeaclaveFile verifies the chain digest and every block's GCM tag,
// returning the concatenated plaintext. Any tampering - a flipped byte in a
// block, a reordered block, a truncated file, a digest mismatch - surfaces
// as a Crypto error.
func OpenTeaclaveFile(masterKey []byte, url string, sealed []byte) ([]byte, error) {
	key, err := blockKey(masterKey, url)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, taclerr.Crypto(err.Error())
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, taclerr.Crypto(err.Error())
	}

	if len(sealed) < 4+32 {
		return nil, taclerr.Crypto("sealed file too short")
	}
	count := binary.BigEndian.Uint32(sealed[:4])
	body := sealed[4 : len(sealed)-32]
	wantDigest := sealed[len(sealed)-32:]

	chain := sha256.New()
	chain.Write([]byte(url))

	var plaintext []byte
	pos := 0
	for i := uint32(0); i < count; i++ {
		if pos+4 > len(body) {
			return nil, taclerr.Crypto("truncated block header")
		}
		blen := binary.BigEndian.Uint32(body[pos : pos+4])
		pos += 4
		if pos+int(blen) > len(body) {
			return nil, taclerr.Crypto("truncated block body")
		}
		ct := body[pos : pos+int(blen)]
		pos += int(blen)

		if len(ct) < aead.Overhead() {
			return nil, taclerr.Crypto("block too short")
		}
		tag := ct[len(ct)-aead.Overhead():]
		chain.Write(tag)

		pt, err := aead.Open(nil, blockNonce(uint64(i)), ct, []byte(url))
		if err != nil {
			return nil, taclerr.Crypto("block authentication failed")
		}
		plaintext = append(plaintext, pt...)
	}

	gotDigest := chain.Sum(nil)
	if !hmacEqual(gotDigest, wantDigest) {
		return nil, taclerr.Crypto("chain digest mismatch")
	}
	return plaintext, nil
}

// AppendTeaclaveFile appends plaintext as additional sealed blocks. Every
// existing block's ciphertext is copied byte for byte and never
// re-encrypted; only the new blocks are sealed, and the block count header
// and chain digest are recomputed to cover them.
func AppendTeaclaveFile(masterKey []byte, url string, sealed []byte, extra []byte) ([]byte, error) {
	key, err := blockKey(masterKey, url)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, taclerr.Crypto(err.Error())
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, taclerr.Crypto(err.Error())
	}

	if len(sealed) < 4+32 {
		return nil, taclerr.Crypto("sealed file too short")
	}
	count := binary.BigEndian.Uint32(sealed[:4])
	body := sealed[4 : len(sealed)-32]
	wantDigest := sealed[len(sealed)-32:]

	chain := sha256.New()
	chain.Write([]byte(url))
	pos := 0
	for i := uint32(0); i < count; i++ {
		if pos+4 > len(body) {
			return nil, taclerr.Crypto("truncated block header")
		}
		blen := binary.BigEndian.Uint32(body[pos : pos+4])
		pos += 4
		if pos+int(blen) > len(body) {
			return nil, taclerr.Crypto("truncated block body")
		}
		ct := body[pos : pos+int(blen)]
		pos += int(blen)
		if len(ct) < aead.Overhead() {
			return nil, taclerr.Crypto("block too short")
		}
		chain.Write(ct[len(ct)-aead.Overhead():])
	}
	if !hmacEqual(chain.Sum(nil), wantDigest) {
		return nil, taclerr.Crypto("chain digest mismatch")
	}

	newBody := append([]byte(nil), body...)
	newCount := count
	for off := 0; off < len(extra); off += BlockSize {
		end := off + BlockSize
		if end > len(extra) {
			end = len(extra)
		}
		sealedBlock := aead.Seal(nil, blockNonce(uint64(newCount)), extra[off:end], []byte(url))
		lenBuf := make([]byte, 4)
		binary.BigEndian.PutUint32(lenBuf, uint32(len(sealedBlock)))
		newBody = append(newBody, lenBuf...)
		newBody = append(newBody, sealedBlock...)
		chain.Write(sealedBlock[len(sealedBlock)-aead.Overhead():])
		newCount++
	}

	out := make([]byte, 4)
	binary.BigEndian.PutUint32(out, newCount)
	out = append(out, newBody...)
	out = append(out, chain.Sum(nil)...)
	return out, nil
}

// RenameTeaclaveFile re-seals the file under a new URL binding. Because the
// AAD and per-block nonces are derived from the URL, a rename must
// re-authenticate every block; this is the one operation that is not free,
// matching the general AEAD rule that AAD changes require re-sealing.
func RenameTeaclaveFile(masterKey []byte, oldURL, newURL string, sealed []byte) ([]byte, error) {
	plaintext, err := OpenTeaclaveFile(masterKey, oldURL, sealed)
	if err != nil {
		return nil, err
	}
	return SealTeaclaveFile(masterKey, newURL, plaintext)
}

func hmacEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	var v byte
	for i := range a {
		v |= a[i] ^ b[i]
	}
	return v == 0
}
