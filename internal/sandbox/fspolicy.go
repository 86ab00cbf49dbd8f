package sandbox

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ipochto/zug-zug/pkg/zugerr"
)

// luaSignature is the classical LUA_SIGNATURE magic that opens every
// precompiled Lua bytecode chunk; a sandbox refuses to run any file
// that starts with it, regardless of extension.
const luaSignature = "\x1bLua"

// FilesystemPolicy is the SB filesystem sandbox: a root directory plus
// an allow-list of admitted subpaths, per spec.md §3/§4.2.3. The zero
// value has an empty root and therefore admits nothing.
type FilesystemPolicy struct {
	root    string
	allowed []string
	sink    io.Writer
}

// SetPaths replaces the root and allow-list atomically. A root that is
// empty or not absolute disables the filesystem sandbox entirely
// (root=="" and allowed==nil), matching "filesystem access is denied by
// default" from spec.md §3.
func (fp *FilesystemPolicy) SetPaths(root string, allowed []string) {
	if root == "" || !filepath.IsAbs(root) {
		fp.root = ""
		fp.allowed = nil
		return
	}
	fp.root = filepath.Clean(root)
	fp.allowed = nil
	for _, a := range allowed {
		fp.allowed = append(fp.allowed, fp.join(a))
	}
}

// Allow admits one additional path, relative to root if not already
// absolute. Silently ignored (returns false) when the sandbox has no
// root, matching spec.md §4.2's AllowScriptPath description.
func (fp *FilesystemPolicy) Allow(path string) bool {
	if fp.root == "" {
		return false
	}
	fp.allowed = append(fp.allowed, fp.join(path))
	return true
}

func (fp *FilesystemPolicy) join(p string) string {
	if !filepath.IsAbs(p) {
		p = filepath.Join(fp.root, p)
	}
	return filepath.Clean(p)
}

// isAdmitted reports whether p (already absolute and clean) lies under
// one of the allow-listed subpaths, matched on path-component
// boundaries so "/srv/scripts-extra" does not admit under an allow
// entry of "/srv/scripts". root itself is not implicitly admitted: an
// empty allow-list rejects everything, including files directly under
// root — a caller that wants root readable must list it explicitly.
func (fp *FilesystemPolicy) isAdmitted(p string) bool {
	if fp.root == "" {
		return false
	}
	for _, a := range fp.allowed {
		if hasPathPrefix(a, p) {
			return true
		}
	}
	return false
}

func hasPathPrefix(base, p string) bool {
	if base == p {
		return true
	}
	sep := string(filepath.Separator)
	return strings.HasPrefix(p, strings.TrimSuffix(base, sep)+sep)
}

// Resolve turns a script-supplied name into an admitted, existing,
// non-bytecode absolute path, or returns a PolicyReject describing
// which of the three checks failed. This is the single choke point
// every path-taking primitive (RunFile, dofile, loadfile, require_file)
// routes through.
func (fp *FilesystemPolicy) Resolve(name string) (string, error) {
	p := fp.join(name)
	if !fp.isAdmitted(p) {
		return "", zugerr.New(zugerr.PolicyReject, "attempting to run a script outside the allowed path: %s", name)
	}
	info, err := os.Stat(p)
	if err != nil || info.IsDir() {
		return "", zugerr.New(zugerr.PolicyReject, "attempting to run a non-existent script: %s", name)
	}
	if isBytecode(p) {
		return "", zugerr.New(zugerr.PolicyReject, "attempting to run precompiled Lua bytecode: %s", name)
	}
	return p, nil
}

func isBytecode(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()
	buf := make([]byte, len(luaSignature))
	n, _ := io.ReadFull(f, buf)
	return n == len(luaSignature) && string(buf) == luaSignature
}
