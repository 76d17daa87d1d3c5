package timex

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestDuration_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    time.Duration
		wantErr bool
	}{
		{name: "string", in: `"15m"`, want: 15 * time.Minute},
		{name: "nanoseconds", in: `1000000000`, want: time.Second},
		{name: "bad string", in: `"soon"`, wantErr: true},
		{name: "bad type", in: `true`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var d Duration
			err := json.Unmarshal([]byte(tt.in), &d)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, d.Duration)
		})
	}
}

func TestDuration_MarshalJSON(t *testing.T) {
	b, err := json.Marshal(Duration{Duration: 90 * time.Second})
	require.NoError(t, err)
	assert.Equal(t, `"1m30s"`, string(b))
}

func TestDuration_UnmarshalYAML(t *testing.T) {
	var cfg struct {
		Access  Duration `yaml:"access"`
		Refresh Duration `yaml:"refresh"`
	}
	err := yaml.Unmarshal([]byte("access: 15m\nrefresh: 2000000000\n"), &cfg)
	require.NoError(t, err)
	assert.Equal(t, 15*time.Minute, cfg.Access.Duration)
	assert.Equal(t, 2*time.Second, cfg.Refresh.Duration)

	var bad struct {
		Access Duration `yaml:"access"`
	}
	require.Error(t, yaml.Unmarshal([]byte("access: later\n"), &bad))
}
