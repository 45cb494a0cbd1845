// SPDX-FileCopyrightText: 2024 Vector Informatik GmbH
//
// SPDX-License-Identifier: MIT

package extension

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCandidateNamesMatchesSearchAlgorithm(t *testing.T) {
	naming := currentPlatformNaming()
	names := candidateNames(naming, "Sample")

	require.Equal(t, "Sample", names[0])
	require.Contains(t, names, naming.prefix+"Sampled"+naming.ext)
	require.Contains(t, names, "Sampled"+naming.ext)
	require.Contains(t, names, naming.prefix+"Sample"+naming.ext)
	require.Contains(t, names, "Sample"+naming.ext)
}

func TestResolveHintsAppendsEnvAndCwdAndExeDir(t *testing.T) {
	naming := currentPlatformNaming()
	t.Setenv(EnvExtensionPath, "/opt/ext"+naming.pathSep+"/usr/local/ext")

	dirs := resolveHints(naming, []string{"/first/hint"})

	require.Equal(t, "/first/hint", dirs[0])
	require.Contains(t, dirs, "/opt/ext")
	require.Contains(t, dirs, "/usr/local/ext")
	require.Contains(t, dirs, ".")
}

func TestResolveHintsSkipsUnsetEnvHint(t *testing.T) {
	naming := currentPlatformNaming()
	t.Setenv(EnvExtensionPath, "")

	dirs := resolveHints(naming, nil)

	require.NotContains(t, dirs, "")
	require.Contains(t, dirs, ".")
}

func TestLoadMissingExtensionAggregatesErrors(t *testing.T) {
	var buildInfos [buildInfoFieldCount]uint32
	loader := NewLoader(4, 0, 0, buildInfos, nil)

	_, err := loader.Load("NoSuchExtensionAnywhere", "/does/not/exist")
	require.Error(t, err)
}
