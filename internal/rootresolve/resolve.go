// Package rootresolve canonicalizes a start path to a project's unique root.
package rootresolve

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"time"
)

// buildManifests is the closed set of build-manifest markers checked in
// resolution step 3.
var buildManifests = []string{
	"go.mod",
	"package.json",
	"pyproject.toml",
	"Cargo.toml",
	"pom.xml",
	"build.gradle",
	"build.gradle.kts",
	"*.csproj",
}

// Resolve returns the canonical project root for start, following the
// deterministic, first-match-wins order from the component design:
//  1. outermost VCS root
//  2. nearest ancestor containing .claude/
//  3. nearest ancestor containing a build manifest
//  4. start itself
//
// The returned path is always absolute and symlink-resolved.
func Resolve(ctx context.Context, start string) (string, error) {
	abs, err := filepath.Abs(start)
	if err != nil {
		return "", err
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		// Path may not exist yet (e.g. init on a fresh dir); fall back to abs.
		resolved = abs
	}

	if root, ok := vcsRoot(ctx, resolved); ok {
		return canonical(root)
	}
	if root, ok := nearestAncestorWith(resolved, ".claude"); ok {
		return canonical(root)
	}
	if root, ok := nearestAncestorWithManifest(resolved); ok {
		return canonical(root)
	}
	return canonical(resolved)
}

func canonical(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	if real, err := filepath.EvalSymlinks(abs); err == nil {
		return real, nil
	}
	return abs, nil
}

// vcsRoot invokes `git rev-parse --show-toplevel` with a 5-second timeout,
// returning the outermost enclosing VCS root. A timeout or non-zero exit is
// treated as absence of a VCS root, not an error.
func vcsRoot(ctx context.Context, start string) (string, bool) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", "rev-parse", "--show-toplevel")
	cmd.Dir = start
	out, err := cmd.Output()
	if err != nil {
		return "", false
	}
	root := trimNewline(string(out))
	if root == "" {
		return "", false
	}

	// Walk up from root looking for an outer VCS root (e.g. a submodule
	// nested inside a parent repo): the outermost wins.
	outer := root
	for {
		parent := filepath.Dir(outer)
		if parent == outer {
			break
		}
		cmd := exec.CommandContext(ctx, "git", "rev-parse", "--show-toplevel")
		cmd.Dir = parent
		out, err := cmd.Output()
		if err != nil {
			break
		}
		candidate := trimNewline(string(out))
		if candidate == "" || candidate == outer {
			break
		}
		outer = candidate
	}
	return outer, true
}

func trimNewline(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}

// nearestAncestorWith walks up from start looking for a directory entry
// named marker (a subdirectory).
func nearestAncestorWith(start, marker string) (string, bool) {
	dir := start
	for {
		candidate := filepath.Join(dir, marker)
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return dir, true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false
		}
		dir = parent
	}
}

// nearestAncestorWithManifest walks up from start looking for any of the
// closed set of build-manifest markers.
func nearestAncestorWithManifest(start string) (string, bool) {
	dir := start
	for {
		for _, m := range buildManifests {
			if filepath.Ext(m) == ".csproj" && m[0] == '*' {
				matches, _ := filepath.Glob(filepath.Join(dir, m))
				if len(matches) > 0 {
					return dir, true
				}
				continue
			}
			if _, err := os.Stat(filepath.Join(dir, m)); err == nil {
				return dir, true
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false
		}
		dir = parent
	}
}
