package version

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersion_DefaultValues(t *testing.T) {
	// These should be the default values set at build time
	assert.Equal(t, "dev", Version)
	assert.Equal(t, "dev", Commit)
	assert.Equal(t, "unknown", BuildTime)
}

func TestGet(t *testing.T) {
	info := Get("ossc-sourcing")
	assert.Equal(t, Info{Service: "ossc-sourcing", Version: "dev", Commit: "dev", BuildTime: "unknown"}, info)
	assert.Equal(t, "ossc-sourcing dev (commit dev, built unknown)", info.String())
}

func TestInfo_JSON(t *testing.T) {
	data, err := json.Marshal(Get("adm"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"service":"adm","version":"dev","commit":"dev","buildTime":"unknown"}`, string(data))
}
