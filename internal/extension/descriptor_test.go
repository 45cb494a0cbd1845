// SPDX-FileCopyrightText: 2024 Vector Informatik GmbH
//
// SPDX-License-Identifier: MIT

package extension

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"
)

func cBytes(s string) *byte {
	b := append([]byte(s), 0)
	return &b[0]
}

func TestDescriptorRoundTrip(t *testing.T) {
	raw := rawDescriptor{
		versionMajor:  4,
		versionMinor:  1,
		versionPatch:  2,
		extensionName: cBytes("ExampleExtension"),
		vendorName:    cBytes("Vector Informatik GmbH"),
		systemName:    cBytes(currentSystem()),
		buildInfos:    [buildInfoFieldCount]uint32{1, 2, 3, 4},
	}

	d := decodeDescriptor(uintptr(unsafe.Pointer(&raw)))

	require.Equal(t, uint32(4), d.VersionMajor)
	require.Equal(t, uint32(1), d.VersionMinor)
	require.Equal(t, uint32(2), d.VersionPatch)
	require.Equal(t, "ExampleExtension", d.ExtensionName)
	require.Equal(t, "Vector Informatik GmbH", d.VendorName)
	require.Equal(t, currentSystem(), d.SystemName)
	require.Equal(t, [buildInfoFieldCount]uint32{1, 2, 3, 4}, d.BuildInfos)
}

func TestDescriptorVerifyRequiresExactTriple(t *testing.T) {
	host := Descriptor{VersionMajor: 4, VersionMinor: 1, VersionPatch: 0, SystemName: currentSystem()}

	matching := host
	matching.ExtensionName = "Matching"
	require.NoError(t, matching.Verify(host, nil))

	tooNew := host
	tooNew.VersionMajor = host.VersionMajor + 1
	err := tooNew.Verify(host, nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "4.1.0")

	wrongMinor := host
	wrongMinor.VersionMinor++
	require.Error(t, wrongMinor.Verify(host, nil), "minor version must match exactly, not just be >=")
}

func TestDescriptorVerifyRequiresMatchingBuildInfo(t *testing.T) {
	host := Descriptor{VersionMajor: 4, SystemName: currentSystem(), BuildInfos: [buildInfoFieldCount]uint32{1, 2, 3, 4}}
	mismatched := host
	mismatched.BuildInfos[BuildInfoDebug] = 99

	require.Error(t, mismatched.Verify(host, nil))
}

func TestDescriptorVerifyWarnsButAllowsForeignSystem(t *testing.T) {
	host := Descriptor{VersionMajor: 4, SystemName: currentSystem()}
	d := host
	d.SystemName = "SOME_OTHER_OS"

	require.NoError(t, d.Verify(host, nil), "system mismatch is a warning, not a failure")

	unknown := host
	unknown.SystemName = "UNKNOWN"
	require.NoError(t, unknown.Verify(host, nil))
}
