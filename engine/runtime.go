package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

var (
	initialized bool
	initMu      sync.Mutex
)

// LibraryName returns the platform file name of the ONNX Runtime shared library.
func LibraryName() string {
	switch runtime.GOOS {
	case "darwin":
		return "libonnxruntime.dylib"
	case "windows":
		return "onnxruntime.dll"
	default:
		return "libonnxruntime.so"
	}
}

// ResolveLibrary turns a file or directory path into the library file path.
// An empty path falls back to the lib/ directory next to the working directory.
func ResolveLibrary(path string) (string, error) {
	if path == "" {
		path = "lib"
	}

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return "", fmt.Errorf("onnxruntime library not found: %s", path)
	}
	if err != nil {
		return "", err
	}

	if info.IsDir() {
		libPath := filepath.Join(path, LibraryName())
		if _, err := os.Stat(libPath); os.IsNotExist(err) {
			return "", fmt.Errorf("onnxruntime library not found: %s", libPath)
		}
		return libPath, nil
	}
	return path, nil
}

// Initialize sets up the ONNX Runtime environment. Call once at startup.
func Initialize(libPath string) error {
	initMu.Lock()
	defer initMu.Unlock()

	if initialized {
		return nil
	}

	resolved, err := ResolveLibrary(libPath)
	if err != nil {
		return err
	}

	ort.SetSharedLibraryPath(resolved)
	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("failed to initialize ONNX Runtime: %w", err)
	}

	initialized = true
	return nil
}

// Shutdown cleans up the ONNX Runtime environment.
func Shutdown() error {
	initMu.Lock()
	defer initMu.Unlock()

	if !initialized {
		return nil
	}
	if err := ort.DestroyEnvironment(); err != nil {
		return err
	}

	initialized = false
	return nil
}

// Initialized reports whether Initialize has succeeded.
func Initialized() bool {
	initMu.Lock()
	defer initMu.Unlock()
	return initialized
}
