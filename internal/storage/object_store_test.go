package storage

import (
	"fmt"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taglens/internal/config"
)

func TestNewObjectStore_EndpointForms(t *testing.T) {
	cases := []struct {
		name     string
		endpoint string
		useSSL   bool
		wantHost string
		wantSSL  bool
	}{
		{"bare host", "minio.internal:9000", false, "minio.internal:9000", false},
		{"http url", "http://minio.internal:9000", true, "minio.internal:9000", false},
		{"https url", "https://objects.example.com", false, "objects.example.com", true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store, err := NewObjectStore(config.StorageConfig{
				Endpoint:  tc.endpoint,
				AccessKey: "access",
				SecretKey: "secret",
				Bucket:    "taglens-photos",
				UseSSL:    tc.useSSL,
			})
			require.NoError(t, err)

			u := store.client.EndpointURL()
			assert.Equal(t, tc.wantHost, u.Host)
			if tc.wantSSL {
				assert.Equal(t, "https", u.Scheme)
			} else {
				assert.Equal(t, "http", u.Scheme)
			}
		})
	}
}

func TestIsNotFound(t *testing.T) {
	missing := minio.ErrorResponse{Code: "NoSuchKey", Message: "The specified key does not exist."}

	assert.True(t, IsNotFound(missing))
	assert.True(t, IsNotFound(fmt.Errorf("read user-1/ph-1.jpg: %w", missing)), "wrapped errors still match")

	assert.False(t, IsNotFound(nil))
	assert.False(t, IsNotFound(fmt.Errorf("plain failure")))
	assert.False(t, IsNotFound(minio.ErrorResponse{Code: "AccessDenied"}))
}
