// SPDX-FileCopyrightText: 2024 Vector Informatik GmbH
//
// SPDX-License-Identifier: MIT

// Package extension implements the dynamic-library extension loader
// (spec §4.3, component C3), grounded on
// original_source/IntegrationBus/source/extensions/IbExtensionApi/IbExtensionABI.h
// and LoadExtension_posix.cpp / LoadExtension_win.cpp. Cross-platform
// dlopen/dlsym/dlclose is provided by github.com/ebitengine/purego,
// which the rest of the retrieved example pack also depends on for the
// same purpose.
package extension

import (
	"fmt"
	"runtime"
	"unsafe"

	"go.uber.org/zap"
)

// BuildInfoField indexes the BuildInfos array of a Descriptor.
type BuildInfoField int

const (
	BuildInfoCxx BuildInfoField = iota
	BuildInfoCompiler
	BuildInfoMultithread
	BuildInfoDebug
	buildInfoFieldCount
)

// Descriptor mirrors SilKitExtensionDescriptor from the C ABI: a fixed
// layout of version fields, three C-string pointers, and a fixed-size
// build-info array. It is read directly out of process memory at the
// address of the extension's exported "silkit_extension_descriptor"
// symbol — there is no wire encoding, only this in-memory struct.
type Descriptor struct {
	VersionMajor  uint32
	VersionMinor  uint32
	VersionPatch  uint32
	ExtensionName string
	VendorName    string
	SystemName    string
	BuildInfos    [buildInfoFieldCount]uint32
}

// rawDescriptor is the exact C memory layout: three uint32 version
// fields, three char* pointers, then the build-info array. Field order
// and widths must match the C header bit-for-bit.
type rawDescriptor struct {
	versionMajor  uint32
	versionMinor  uint32
	versionPatch  uint32
	_             uint32 // padding to align the pointers that follow on 64-bit
	extensionName *byte
	vendorName    *byte
	systemName    *byte
	buildInfos    [buildInfoFieldCount]uint32
}

// goString decodes a NUL-terminated C string. It returns "" for a nil
// pointer rather than panicking, since a malformed extension could
// export a zeroed descriptor.
func goString(p *byte) string {
	if p == nil {
		return ""
	}
	n := 0
	for *(*byte)(unsafe.Add(unsafe.Pointer(p), n)) != 0 {
		n++
	}
	return unsafe.String(p, n)
}

// decodeDescriptor reads a Descriptor from the process memory at addr,
// which must point at a live SilKitExtensionDescriptor struct.
func decodeDescriptor(addr uintptr) Descriptor {
	raw := (*rawDescriptor)(unsafe.Pointer(addr))
	return Descriptor{
		VersionMajor:  raw.versionMajor,
		VersionMinor:  raw.versionMinor,
		VersionPatch:  raw.versionPatch,
		ExtensionName: goString(raw.extensionName),
		VendorName:    goString(raw.vendorName),
		SystemName:    goString(raw.systemName),
		BuildInfos:    raw.buildInfos,
	}
}

// currentSystem reports the build-info system string this process was
// built for, mirroring BuildinfoSystem() in IbExtensionUtils.cpp. Verify
// compares it with an extension's SystemName and only warns on a
// mismatch.
func currentSystem() string {
	switch runtime.GOOS {
	case "linux":
		return "LINUX"
	case "windows":
		return "WIN32"
	case "darwin":
		return "DARWIN"
	default:
		return "UNKNOWN"
	}
}

// hostDescriptor returns the descriptor this process presents as its own
// build identity: the loader's required triple and build-info array,
// under the current process's system name.
func hostDescriptor(major, minor, patch uint32, buildInfos [buildInfoFieldCount]uint32) Descriptor {
	return Descriptor{
		VersionMajor: major,
		VersionMinor: minor,
		VersionPatch: patch,
		SystemName:   currentSystem(),
		BuildInfos:   buildInfos,
	}
}

// Verify checks d against host, per VerifyExtension in IbExtensions.cpp:
// the version triple must match exactly, buildInfo must match
// element-wise, and system-name mismatches (including "UNKNOWN" on
// either side) are only a warning, never a failure.
func (d Descriptor) Verify(host Descriptor, lg *zap.Logger) error {
	if d.VersionMajor != host.VersionMajor || d.VersionMinor != host.VersionMinor || d.VersionPatch != host.VersionPatch {
		return fmt.Errorf("extension %q has version %d.%d.%d, host is %d.%d.%d",
			d.ExtensionName, d.VersionMajor, d.VersionMinor, d.VersionPatch,
			host.VersionMajor, host.VersionMinor, host.VersionPatch)
	}
	if d.BuildInfos != host.BuildInfos {
		return fmt.Errorf("extension %q has buildInfo %v, host is %v", d.ExtensionName, d.BuildInfos, host.BuildInfos)
	}
	if lg == nil {
		lg = zap.NewNop()
	}
	if d.SystemName == "UNKNOWN" || host.SystemName == "UNKNOWN" {
		lg.Warn("extension build system unknown, proceeding",
			zap.String("extension", d.ExtensionName), zap.String("extensionSystem", d.SystemName), zap.String("hostSystem", host.SystemName))
	} else if d.SystemName != host.SystemName {
		lg.Warn("extension built for a different system, proceeding",
			zap.String("extension", d.ExtensionName), zap.String("extensionSystem", d.SystemName), zap.String("hostSystem", host.SystemName))
	}
	return nil
}
