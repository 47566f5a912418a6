package privilege

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sysgio/sysg/internal/config"
)

func TestBuildPlanRejectsUserSwitchWithoutRoot(t *testing.T) {
	svc := config.ServiceConfig{Command: "/bin/true", User: "nobody"}
	_, err := BuildPlan("abc", svc, false, false)
	require.Error(t, err)
}

func TestBuildPlanDefaultsRlimitsToInfinity(t *testing.T) {
	svc := config.ServiceConfig{Command: "/bin/true"}
	plan, err := BuildPlan("abc", svc, true, false)
	require.NoError(t, err)
	require.Equal(t, RLimInfinity, plan.NoFile)
	require.Equal(t, RLimInfinity, plan.NProc)
	require.Equal(t, RLimInfinity, plan.MemLock)
}

func TestPlanEncodeDecodeRoundTrip(t *testing.T) {
	plan := &Plan{Hash: "abc", Capabilities: []string{"CAP_NET_BIND_SERVICE"}, NoFile: 1024}
	encoded, err := plan.Encode()
	require.NoError(t, err)

	decoded, err := DecodePlan(encoded)
	require.NoError(t, err)
	require.Equal(t, plan.Hash, decoded.Hash)
	require.Equal(t, plan.Capabilities, decoded.Capabilities)
	require.Equal(t, plan.NoFile, decoded.NoFile)
}
