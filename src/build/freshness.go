package build

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	git "github.com/go-git/go-git/v5"
)

// Content-based freshness: a build is skippable when the crate's source
// state, keyed together with target triple and profile, matches the stamp
// written after the last successful build AND the artifact still exists.
// The fingerprint covers HEAD plus the content of every dirty file, so an
// uncommitted edit invalidates the stamp. Crates outside a git worktree
// always rebuild.

// isFresh reports whether the previous artifact can be reused.
func isFresh(env *Environment) (bool, error) {
	fp, ok := fingerprint(env)
	if !ok {
		return false, nil
	}

	prev, err := os.ReadFile(stampPath(env))
	if err != nil || string(prev) != fp {
		return false, nil
	}

	if _, err := resolveArtifact(env); err != nil {
		return false, nil
	}
	return true, nil
}

// writeStamp records the current fingerprint. Best-effort: a failed
// stamp write only costs a rebuild next time.
func writeStamp(env *Environment) {
	fp, ok := fingerprint(env)
	if !ok {
		return
	}
	_ = os.WriteFile(stampPath(env), []byte(fp), 0o644)
}

func stampPath(env *Environment) string {
	return filepath.Join(env.OutputDir,
		fmt.Sprintf(".ptxforge-stamp-%s-%s", env.Target, env.Profile))
}

// fingerprint hashes the crate's git state together with the build key.
// Returns ok=false when the crate is not inside a usable git worktree.
func fingerprint(env *Environment) (string, bool) {
	repo, err := git.PlainOpenWithOptions(env.CratePath, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return "", false
	}

	head, err := repo.Head()
	if err != nil {
		return "", false
	}

	wt, err := repo.Worktree()
	if err != nil {
		return "", false
	}
	status, err := wt.Status()
	if err != nil {
		return "", false
	}

	h := sha256.New()
	io.WriteString(h, head.Hash().String())
	io.WriteString(h, "\x00"+env.Target)
	io.WriteString(h, "\x00"+env.Profile.String())
	io.WriteString(h, "\x00"+env.CrateType.String())

	root := wt.Filesystem.Root()
	for _, path := range dirtyPaths(status) {
		io.WriteString(h, "\x00"+path+"\x00")
		data, err := os.ReadFile(filepath.Join(root, path))
		if err != nil {
			// Deleted or unreadable: the path itself still perturbs
			// the hash.
			continue
		}
		h.Write(data)
	}

	return hex.EncodeToString(h.Sum(nil)), true
}

func dirtyPaths(status git.Status) []string {
	var paths []string
	for path, s := range status {
		if s.Worktree == git.Unmodified && s.Staging == git.Unmodified {
			continue
		}
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}
