package trace

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInitDisabled(t *testing.T) {
	shutdown, err := Init(t.Context(), "", "test")
	require.NoError(t, err)
	require.NoError(t, shutdown(t.Context()))
}

func TestExporterOptions(t *testing.T) {
	for name, tc := range map[string]struct {
		endpoint string
		count    int
		err      string
	}{
		"host and port":   {endpoint: "localhost:4318", count: 2},
		"http url":        {endpoint: "http://localhost:4318", count: 2},
		"https with path": {endpoint: "https://otel.example.com/v1/traces", count: 2},
		"https":           {endpoint: "https://otel.example.com", count: 1},
		"bad scheme":      {endpoint: "ftp://otel.example.com", err: `unsupported trace endpoint scheme "ftp"`},
	} {
		t.Run(name, func(t *testing.T) {
			opts, err := exporterOptions(tc.endpoint)
			if tc.err != "" {
				require.EqualError(t, err, tc.err)
				return
			}
			require.NoError(t, err)
			require.Len(t, opts, tc.count)
		})
	}
}
