// SPDX-FileCopyrightText: 2024 Vector Informatik GmbH
//
// SPDX-License-Identifier: MIT

package extension

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/ebitengine/purego"
	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/vectorgrp/silkit-go/lib/util/errors"
)

const (
	descriptorSymbol = "silkit_extension_descriptor"
	createSymbol     = "CreateExtension"
	releaseSymbol    = "ReleaseExtension"

	// EnvExtensionPath is the well-known search-path environment variable
	// (spec §6), always appended to user-supplied hints.
	EnvExtensionPath = "SILKIT_EXTENSION_PATH"

	negativeCacheTTL = 30 * time.Second
)

// platformNaming captures the per-OS shared-library naming convention,
// grounded on lib_file_extension/lib_prefix/path_sep in
// LoadExtension_posix.cpp and LoadExtension_win.cpp.
type platformNaming struct {
	prefix  string
	ext     string
	pathSep string
}

func currentPlatformNaming() platformNaming {
	switch runtime.GOOS {
	case "windows":
		return platformNaming{prefix: "", ext: ".dll", pathSep: ";"}
	case "darwin":
		return platformNaming{prefix: "lib", ext: ".dylib", pathSep: ":"}
	default:
		return platformNaming{prefix: "lib", ext: ".so", pathSep: ":"}
	}
}

// candidateNames returns the ordered candidate file-name set from
// spec §4.3 step 3: { N, "lib"+N+"d"+ext, N+"d"+ext, "lib"+N+ext, N+ext },
// deduplicated in order (the prefix is empty on Windows, collapsing
// some of these).
func candidateNames(naming platformNaming, name string) []string {
	ordered := []string{
		name,
		naming.prefix + name + "d" + naming.ext,
		name + "d" + naming.ext,
		naming.prefix + name + naming.ext,
		name + naming.ext,
	}
	seen := make(map[string]bool, len(ordered))
	out := make([]string, 0, len(ordered))
	for _, c := range ordered {
		if seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}

// resolveHints expands the hint list per spec §4.3 steps 1-2: the
// caller-supplied hints, then "ENV:SILKIT_EXTENSION_PATH", then ".",
// then the process executable's directory. An "ENV:" hint dereferences
// the named variable and is silently skipped if unset; its value may
// itself be a PATH-style list of directories.
func resolveHints(naming platformNaming, userHints []string) []string {
	hints := append([]string{}, userHints...)
	hints = append(hints, "ENV:"+EnvExtensionPath, ".")
	if exe, err := os.Executable(); err == nil {
		hints = append(hints, filepath.Dir(exe))
	}

	var dirs []string
	for _, h := range hints {
		if rest, ok := strings.CutPrefix(h, "ENV:"); ok {
			v := os.Getenv(rest)
			if v == "" {
				continue
			}
			dirs = append(dirs, strings.Split(v, naming.pathSep)...)
			continue
		}
		dirs = append(dirs, h)
	}
	return dirs
}

// handleEntry is the refcounted cache entry backing one loaded shared
// library. Go has no weak pointers, so instead of the C++ weak_ptr
// cache the loader keeps a strong entry alive only while refCount > 0;
// the last Release closes the library and drops the entry, after which
// a fresh Load reopens it from scratch — observably equivalent to a
// weak cache that has expired (spec §4.3 "handle lifetime", §9 "no
// cyclic ownership").
type handleEntry struct {
	mu         sync.Mutex
	libHandle  uintptr
	descriptor Descriptor
	createFn   func() uintptr
	releaseFn  func(uintptr)
	refCount   int
}

// Extension is a strong reference to a loaded extension instance.
// Callers must call Release exactly once when done with it.
type Extension struct {
	name     string
	instance uintptr
	entry    *handleEntry
	loader   *Loader
}

// Descriptor returns the extension's decoded ABI descriptor.
func (e *Extension) Descriptor() Descriptor { return e.entry.descriptor }

// Handle returns the opaque instance pointer CreateExtension returned,
// for callers that need to pass it back across their own ABI surface.
func (e *Extension) Handle() uintptr { return e.instance }

// Release drops this reference, releasing the extension instance
// through its exported ReleaseExtension. When the last reference to a
// given extension name is released, the library is also closed.
func (e *Extension) Release() {
	e.entry.releaseFn(e.instance)
	e.loader.release(e.name, e.entry)
}

// Loader finds, verifies, and loads SIL Kit style extensions by name
// (spec §4.3). It is safe for concurrent use. Two references to the
// same name obtained while a handle is alive share that handle (spec
// §8 invariant).
type Loader struct {
	host Descriptor
	lg   *zap.Logger

	mu      sync.Mutex
	entries map[string]*handleEntry

	negative *gocache.Cache
}

// NewLoader builds a Loader that only accepts extensions whose version
// triple and build-info array match (major, minor, patch, buildInfos)
// exactly — this process's own build identity.
func NewLoader(major, minor, patch uint32, buildInfos [buildInfoFieldCount]uint32, lg *zap.Logger) *Loader {
	if lg == nil {
		lg = zap.NewNop()
	}
	return &Loader{
		host:     hostDescriptor(major, minor, patch, buildInfos),
		lg:       lg,
		entries:  make(map[string]*handleEntry),
		negative: gocache.New(negativeCacheTTL, 2*negativeCacheTTL),
	}
}

// Load resolves name to a shared library using hints plus the standard
// env/cwd/executable-dir fallback (spec §4.3), verifies its descriptor,
// and returns a strong Extension reference. Concurrent Load calls for
// the same name share one underlying library handle.
func (l *Loader) Load(name string, hints ...string) (*Extension, error) {
	l.mu.Lock()
	if entry, ok := l.entries[name]; ok {
		entry.mu.Lock()
		entry.refCount++
		entry.mu.Unlock()
		l.mu.Unlock()
		instance := entry.createFn()
		return &Extension{name: name, instance: instance, entry: entry, loader: l}, nil
	}
	l.mu.Unlock()

	cacheKey := name + "\x00" + strings.Join(hints, "\x00")
	if cachedErr, ok := l.negative.Get(cacheKey); ok {
		return nil, cachedErr.(error)
	}

	entry, err := l.findAndVerify(name, hints)
	if err != nil {
		l.negative.SetDefault(cacheKey, err)
		return nil, err
	}

	l.mu.Lock()
	if existing, ok := l.entries[name]; ok {
		// Lost a race with a concurrent Load: keep the existing entry,
		// close the one we just opened.
		l.mu.Unlock()
		purego.Dlclose(entry.libHandle)
		existing.mu.Lock()
		existing.refCount++
		existing.mu.Unlock()
		instance := existing.createFn()
		return &Extension{name: name, instance: instance, entry: existing, loader: l}, nil
	}
	entry.refCount = 1
	l.entries[name] = entry
	l.mu.Unlock()

	instance := entry.createFn()
	return &Extension{name: name, instance: instance, entry: entry, loader: l}, nil
}

func (l *Loader) release(name string, entry *handleEntry) {
	entry.mu.Lock()
	entry.refCount--
	last := entry.refCount == 0
	entry.mu.Unlock()

	if !last {
		return
	}
	l.mu.Lock()
	if l.entries[name] == entry {
		delete(l.entries, name)
	}
	l.mu.Unlock()

	if err := purego.Dlclose(entry.libHandle); err != nil {
		l.lg.Warn("failed closing extension library", zap.String("extension", name), zap.Error(err))
	}
}

// findAndVerify runs the FindLibrary/VerifyExtension search: every
// candidate path is tried in discovery order, and the first one whose
// descriptor passes verification wins. Every failed candidate's error
// is preserved and returned aggregated if nothing matches.
func (l *Loader) findAndVerify(name string, userHints []string) (*handleEntry, error) {
	naming := currentPlatformNaming()
	var errs error
	dirs := resolveHints(naming, userHints)
	for _, dir := range dirs {
		for _, candidate := range candidateNames(naming, name) {
			path := filepath.Join(dir, candidate)
			if _, statErr := os.Stat(path); statErr != nil {
				continue
			}
			entry, err := l.tryLoad(path)
			if err != nil {
				errs = multierr.Append(errs, fmt.Errorf("%s: %w", path, err))
				continue
			}
			return entry, nil
		}
	}
	return nil, errors.ExtensionError("no compatible extension %q found, hints consulted: %v: %v", name, dirs, errs)
}

func (l *Loader) tryLoad(path string) (*handleEntry, error) {
	libHandle, err := purego.Dlopen(path, purego.RTLD_NOW)
	if err != nil {
		return nil, err
	}

	descAddr, err := purego.Dlsym(libHandle, descriptorSymbol)
	if err != nil {
		purego.Dlclose(libHandle)
		return nil, fmt.Errorf("invalid descriptor: missing %s symbol: %w", descriptorSymbol, err)
	}
	descriptor := decodeDescriptor(descAddr)
	if err := descriptor.Verify(l.host, l.lg); err != nil {
		purego.Dlclose(libHandle)
		return nil, err
	}

	var createFn func() uintptr
	purego.RegisterLibFunc(&createFn, libHandle, createSymbol)
	var releaseFn func(uintptr)
	purego.RegisterLibFunc(&releaseFn, libHandle, releaseSymbol)

	return &handleEntry{
		libHandle:  libHandle,
		descriptor: descriptor,
		createFn:   createFn,
		releaseFn:  releaseFn,
	}, nil
}
