package coordinator

import (
	"fmt"
	"os"
	"path/filepath"
)

// resolveRoutePath resolves a route path for a standalone run: absolute
// paths that exist win; everything else is relative to the configured
// routes directory.
func resolveRoutePath(routesDir, path string) (string, error) {
	if filepath.IsAbs(path) {
		if p, ok := fileExists(path); ok {
			return p, nil
		}
		return "", fmt.Errorf("route file not found: %s", path)
	}
	if p, ok := fileExists(filepath.Join(routesDir, path)); ok {
		return p, nil
	}
	return "", fmt.Errorf("route file not found: %s (routes dir %s)", path, routesDir)
}

// resolveSuiteRoutePath resolves a route referenced from a suite file:
// (a) absolute if rooted and exists, (b) relative to the suite file's
// directory, (c) relative to the parent of the suite file's directory,
// (d) relative to the configured routes directory. First hit wins.
func resolveSuiteRoutePath(routesDir, suitePath, path string) (string, error) {
	if filepath.IsAbs(path) {
		if p, ok := fileExists(path); ok {
			return p, nil
		}
		return "", fmt.Errorf("route file not found: %s", path)
	}

	suiteDir := filepath.Dir(suitePath)
	candidates := []string{
		filepath.Join(suiteDir, path),
		filepath.Join(filepath.Dir(suiteDir), path),
		filepath.Join(routesDir, path),
	}
	for _, candidate := range candidates {
		if p, ok := fileExists(candidate); ok {
			return p, nil
		}
	}
	return "", fmt.Errorf("route file not found: %s (suite %s)", path, suitePath)
}

// fileExists checks the path as-is and with a .json extension appended.
func fileExists(path string) (string, bool) {
	for _, candidate := range []string{path, path + ".json"} {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, true
		}
	}
	return "", false
}
