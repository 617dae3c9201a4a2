package retrieval

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseQdrantURL(t *testing.T) {
	tests := []struct {
		name     string
		url      string
		wantHost string
		wantPort int
		wantTLS  bool
		wantErr  bool
	}{
		{"https with rest port", "https://xyz.cloud.qdrant.io:6333", "xyz.cloud.qdrant.io", 6334, true, false},
		{"http with rest port", "http://localhost:6333", "localhost", 6334, false, false},
		{"explicit grpc port", "http://localhost:6334", "localhost", 6334, false, false},
		{"custom port", "https://qdrant.internal:7000", "qdrant.internal", 7000, true, false},
		{"no port defaults to grpc", "http://qdrant.internal", "qdrant.internal", 6334, false, false},
		{"empty", "", "", 0, false, true},
		{"garbage", "not a url", "", 0, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			host, port, useTLS, err := parseQdrantURL(tt.url)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantHost, host)
			assert.Equal(t, tt.wantPort, port)
			assert.Equal(t, tt.wantTLS, useTLS)
		})
	}
}
