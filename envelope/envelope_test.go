package envelope

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helix-tools/ledger-go/internal/awstest"
)

func TestCompressRoundTrip(t *testing.T) {
	data := bytes.Repeat([]byte(`{"station":"KSEA","temp":12.5}`+"\n"), 200)

	compressed, err := Compress(data, 0)
	require.NoError(t, err)
	assert.Less(t, len(compressed), len(data))

	out, err := Decompress(compressed)
	require.NoError(t, err)
	assert.Equal(t, data, out)
}

func TestCompressRejectsBadLevel(t *testing.T) {
	_, err := Compress([]byte("x"), 42)
	assert.Error(t, err)
}

func TestDecompressRejectsGarbage(t *testing.T) {
	_, err := Decompress([]byte("not gzip"))
	assert.Error(t, err)
}

func TestEncryptDecrypt(t *testing.T) {
	ctx := context.Background()
	sealer := NewSealer(awstest.NewKMS(), "alias/ledger")
	plaintext := []byte("dataset bytes")

	sealed, err := sealer.Encrypt(ctx, plaintext)
	require.NoError(t, err)
	assert.NotContains(t, string(sealed), "dataset bytes")

	opened, err := sealer.Decrypt(ctx, sealed)
	require.NoError(t, err)
	assert.Equal(t, plaintext, opened)

	again, err := sealer.Encrypt(ctx, plaintext)
	require.NoError(t, err)
	assert.NotEqual(t, sealed, again, "each payload uses a fresh key and IV")
}

func TestDecryptDetectsTampering(t *testing.T) {
	ctx := context.Background()
	sealer := NewSealer(awstest.NewKMS(), "alias/ledger")

	sealed, err := sealer.Encrypt(ctx, []byte("dataset bytes"))
	require.NoError(t, err)

	sealed[len(sealed)-1] ^= 0xff
	_, err = sealer.Decrypt(ctx, sealed)
	assert.Error(t, err)
}

func TestDecryptRejectsTruncatedPayload(t *testing.T) {
	ctx := context.Background()
	sealer := NewSealer(awstest.NewKMS(), "alias/ledger")

	sealed, err := sealer.Encrypt(ctx, []byte("dataset bytes"))
	require.NoError(t, err)

	for _, n := range []int{0, 3, 4, 10, 30} {
		_, err := sealer.Decrypt(ctx, sealed[:n])
		assert.Error(t, err, "truncated to %d bytes", n)
	}
}

func TestEncryptWithoutKey(t *testing.T) {
	_, err := NewSealer(awstest.NewKMS(), "").Encrypt(context.Background(), []byte("x"))
	assert.ErrorIs(t, err, ErrNoKey)

	var nilSealer *Sealer
	_, err = nilSealer.Encrypt(context.Background(), []byte("x"))
	assert.ErrorIs(t, err, ErrNoKey)
}

func TestEncryptKMSFailure(t *testing.T) {
	client := awstest.NewKMS()
	client.Err = errors.New("AccessDeniedException")

	_, err := NewSealer(client, "alias/ledger").Encrypt(context.Background(), []byte("x"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "KMS encryption failed")
}

func TestPackUnpack(t *testing.T) {
	ctx := context.Background()
	sealer := NewSealer(awstest.NewKMS(), "alias/ledger")
	data := bytes.Repeat([]byte("row,1,2,3\n"), 100)

	tests := []struct {
		name string
		opts Options
	}{
		{name: "plain", opts: Options{}},
		{name: "compressed", opts: Options{Compress: true}},
		{name: "encrypted", opts: Options{Encrypt: true}},
		{name: "both", opts: Options{Compress: true, CompressionLevel: 9, Encrypt: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			packed, err := sealer.Pack(ctx, data, tt.opts)
			require.NoError(t, err)

			out, err := sealer.Unpack(ctx, packed, tt.opts)
			require.NoError(t, err)
			assert.Equal(t, data, out)
		})
	}
}
