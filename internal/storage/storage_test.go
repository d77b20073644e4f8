package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edvin/certgen/internal/config"
)

func TestCertificateKey(t *testing.T) {
	tests := []struct {
		id      string
		want    string
		wantErr bool
	}{
		{id: "CERT-20250101-ABCDEF12", want: "certificates/CERT-20250101-ABCDEF12.pdf"},
		{id: "cert_1.v2", want: "certificates/cert_1.v2.pdf"},
		{id: "", wantErr: true},
		{id: "../etc/passwd", wantErr: true},
		{id: "a..b", wantErr: true},
		{id: "a/b", wantErr: true},
		{id: "-leading", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			got, err := CertificateKey(tt.id)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNew_Local(t *testing.T) {
	b, err := New(context.Background(), &config.Config{
		StorageBackend:   config.StorageLocal,
		LocalStoragePath: t.TempDir(),
	})
	require.NoError(t, err)
	assert.Equal(t, "local", b.Name())
}

func TestNew_Unsupported(t *testing.T) {
	_, err := New(context.Background(), &config.Config{StorageBackend: "gcs"})
	assert.EqualError(t, err, `unsupported storage backend "gcs"`)
}
