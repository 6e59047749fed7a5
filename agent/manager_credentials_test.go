package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hkdb/agentcore/provider"
	"github.com/hkdb/agentcore/registry"
	"github.com/hkdb/agentcore/tool"
)

// TestManagerSwitchModelResolvesPerProviderCredentials guards against the
// Manager reusing one provider's adapter credentials for another
// provider's adapter: credFor must be consulted with the *target* model's
// provider name on every switch.
func TestManagerSwitchModelResolvesPerProviderCredentials(t *testing.T) {
	models, err := registry.New(t.TempDir())
	require.NoError(t, err)
	defer models.Close()

	var requested []string
	credFor := func(providerName string) provider.Config {
		requested = append(requested, providerName)
		return provider.Config{}
	}

	tools := tool.New(zap.NewNop().Sugar())
	m := NewManager(tools, models, credFor, func() bool { return false }, nil)
	m.BindAdapter(&fakeAdapter{name: "anthropic"})
	router := New(Config{Name: "router"})
	m.Register(router)
	require.NoError(t, m.Select("router"))

	require.NoError(t, m.SwitchModel("llama3.1"))

	require.NotEmpty(t, requested)
	assert.Equal(t, "ollama", requested[len(requested)-1])
	assert.Equal(t, "ollama", router.Adapter().Name())

	cur, ok := models.GetCurrent()
	require.True(t, ok)
	assert.Equal(t, "llama3.1", cur.ID)
}

func TestManagerSwitchModelUnknownModelFails(t *testing.T) {
	models, err := registry.New(t.TempDir())
	require.NoError(t, err)
	defer models.Close()

	tools := tool.New(zap.NewNop().Sugar())
	m := NewManager(tools, models, nil, func() bool { return false }, nil)
	m.BindAdapter(&fakeAdapter{name: "anthropic"})
	m.Register(New(Config{Name: "router"}))
	require.NoError(t, m.Select("router"))

	err = m.SwitchModel("does-not-exist")
	require.Error(t, err)
}
