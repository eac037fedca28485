package vectorindex

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNew_ChromemDefault(t *testing.T) {
	idx, err := New(Config{
		Chromem: ChromemConfig{Path: filepath.Join(t.TempDir(), "index")},
	}, zap.NewNop())
	require.NoError(t, err)
	defer idx.Close()

	_, ok := idx.(*ChromemIndex)
	assert.True(t, ok, "expected chromem backend by default")
	assert.Equal(t, 192, idx.Dimension())
}

func TestNew_UnknownBackend(t *testing.T) {
	_, err := New(Config{Backend: "pinecone"}, zap.NewNop())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{
			name:   "chromem with path",
			config: Config{Backend: BackendChromem, Chromem: ChromemConfig{Path: "/tmp/idx", Dimension: 192}},
		},
		{
			name:    "chromem negative dimension",
			config:  Config{Backend: BackendChromem, Chromem: ChromemConfig{Path: "/tmp/idx", Dimension: -1}},
			wantErr: true,
		},
		{
			name:   "qdrant defaults applied",
			config: Config{Backend: BackendQdrant, Qdrant: QdrantConfig{Host: "localhost", Port: 6334, Dimension: 192}},
		},
		{
			name:    "qdrant bad port",
			config:  Config{Backend: BackendQdrant, Qdrant: QdrantConfig{Host: "localhost", Port: -1, Dimension: 192}},
			wantErr: true,
		},
		{
			name:    "empty backend rejected without defaults",
			config:  Config{Backend: "memcached"},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestQdrantConfig_Defaults(t *testing.T) {
	var cfg QdrantConfig
	cfg.ApplyDefaults()

	assert.Equal(t, "localhost", cfg.Host)
	assert.Equal(t, 6334, cfg.Port)
	assert.Equal(t, 192, cfg.Dimension)
	assert.Equal(t, 16*1024*1024, cfg.MaxMessageSize)
}
