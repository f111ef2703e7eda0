// Package ffi binds the webrtckit native bridge library. The library exposes
// a small JSON-over-C ABI: requests are posted with a call id and answered
// through a reply callback, commands are fire-and-forget, and engine events
// arrive through a single event callback.
package ffi

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/ebitengine/purego"
)

var (
	// ErrLibraryNotLoaded is returned when the bridge library hasn't been loaded.
	ErrLibraryNotLoaded = errors.New("webrtckit bridge library not loaded")

	// ErrLibraryNotFound is returned when the bridge library cannot be found.
	ErrLibraryNotFound = errors.New("webrtckit bridge library not found")

	// ErrInitFailed is returned when wk_init rejects the callbacks.
	ErrInitFailed = errors.New("bridge initialization failed")

	// ErrVersionMismatch is returned when the bridge ABI version differs.
	ErrVersionMismatch = errors.New("bridge version mismatch")
)

// EnvLibraryPath overrides the library search.
const EnvLibraryPath = "WEBRTCKIT_BRIDGE_PATH"

// ExpectedBridgeVersion is the ABI version this package speaks.
const ExpectedBridgeVersion = "1.0.0"

var (
	libHandle uintptr
	libLoaded atomic.Bool
	libMu     sync.Mutex

	wkVersion func() uintptr
	wkInit    func(eventCb, replyCb uintptr) int32
	wkInvoke  func(callID uint64, method string, args string)
	wkNotify  func(method string, args string)
)

// LoadLibrary loads the bridge library and installs the callbacks.
// It searches in the following locations:
// 1. Path given as argument (if non-empty)
// 2. Path specified by WEBRTCKIT_BRIDGE_PATH environment variable
// 3. ./lib/{os}_{arch}/ relative to the executable and working directory
func LoadLibrary(path string) error {
	libMu.Lock()
	defer libMu.Unlock()

	if libLoaded.Load() {
		return nil
	}

	if path == "" {
		found, ok := findLocalLibrary()
		if !ok {
			return fmt.Errorf("%w: set %s or install %s", ErrLibraryNotFound, EnvLibraryPath, getLibraryName())
		}
		path = found
	}

	handle, err := dlopenLibrary(path, RTLD_NOW|RTLD_GLOBAL)
	if err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}

	if err := registerFunctions(handle); err != nil {
		_ = dlcloseLibrary(handle)
		return err
	}
	if rc := wkInit(eventCallbackPtr(), replyCallbackPtr()); rc != 0 {
		_ = dlcloseLibrary(handle)
		return fmt.Errorf("%w: code %d", ErrInitFailed, rc)
	}

	libHandle = handle
	libLoaded.Store(true)
	return nil
}

func registerFunctions(handle uintptr) error {
	syms := []struct {
		fptr any
		name string
	}{
		{&wkVersion, "wk_version"},
		{&wkInit, "wk_init"},
		{&wkInvoke, "wk_invoke"},
		{&wkNotify, "wk_notify"},
	}
	for _, s := range syms {
		addr, err := dlsymLibrary(handle, s.name)
		if err != nil {
			return fmt.Errorf("resolve %s: %w", s.name, err)
		}
		purego.RegisterFunc(s.fptr, addr)
	}
	return nil
}

// IsLoaded returns true if the bridge library is loaded.
func IsLoaded() bool {
	return libLoaded.Load()
}

// Close unloads the bridge library. Pending calls are failed.
func Close() error {
	libMu.Lock()
	defer libMu.Unlock()

	if !libLoaded.Load() {
		return nil
	}

	libLoaded.Store(false)
	failPending()
	if err := dlcloseLibrary(libHandle); err != nil {
		return err
	}
	libHandle = 0
	return nil
}

// BridgeVersion returns the ABI version reported by the library.
// Returns empty string if library is not loaded.
func BridgeVersion() string {
	if !libLoaded.Load() {
		return ""
	}
	return goString(wkVersion())
}

// CheckVersion verifies the library speaks the expected ABI.
func CheckVersion() error {
	if !libLoaded.Load() {
		return ErrLibraryNotLoaded
	}
	if v := BridgeVersion(); v != ExpectedBridgeVersion {
		return fmt.Errorf("%w: bridge version %q, expected %q", ErrVersionMismatch, v, ExpectedBridgeVersion)
	}
	return nil
}

func findLocalLibrary() (string, bool) {
	if path := os.Getenv(EnvLibraryPath); path != "" {
		if _, err := os.Stat(path); err == nil {
			return path, true
		}
	}

	libName := getLibraryName()
	platformDir := fmt.Sprintf("%s_%s", runtime.GOOS, runtime.GOARCH)

	var searchPaths []string
	if execPath, err := os.Executable(); err == nil {
		searchPaths = append(searchPaths, filepath.Join(filepath.Dir(execPath), "lib", platformDir, libName))
	}
	if wd, err := os.Getwd(); err == nil {
		searchPaths = append(searchPaths,
			filepath.Join(wd, "lib", platformDir, libName),
			filepath.Join(wd, "..", "lib", platformDir, libName),
		)
	}

	for _, path := range searchPaths {
		if _, err := os.Stat(path); err == nil {
			absPath, _ := filepath.Abs(path)
			return absPath, true
		}
	}
	return "", false
}

func getLibraryName() string {
	return getLibraryNameFor(runtime.GOOS)
}

func getLibraryNameFor(goos string) string {
	switch goos {
	case "darwin":
		return "libwebrtckit_bridge.dylib"
	case "windows":
		return "webrtckit_bridge.dll"
	default:
		return "libwebrtckit_bridge.so"
	}
}
