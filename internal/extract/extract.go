// Package extract turns shell commands into package references.
//
// Matching is heuristic and table driven: install rules are tried in order
// and the first match wins, then lockfile rules. Anything else is out of scope.
package extract

import "strings"

// Kind classifies a command.
type Kind int

const (
	KindNone Kind = iota
	KindPackageAdd
	KindLockfileOnly
)

// String returns the lowercase kind name.
func (k Kind) String() string {
	switch k {
	case KindPackageAdd:
		return "package_add"
	case KindLockfileOnly:
		return "lockfile_only"
	default:
		return "none"
	}
}

// PackageRef identifies the package a command is about to add.
type PackageRef struct {
	Ecosystem string
	Name      string // canonical, version specifier stripped
	Manager   string
	Raw       string // argument as written in the command
}

// Result is the outcome of extracting a command. Refs is empty unless Kind is
// KindPackageAdd, in which case it holds every package the command names, in
// command order.
type Result struct {
	Kind Kind
	Refs []PackageRef
}

// Extractor matches commands against ordered rule tables.
type Extractor struct {
	install  []Rule
	lockfile []Rule
}

// New creates an Extractor from the given tables.
func New(install, lockfile []Rule) *Extractor {
	return &Extractor{install: install, lockfile: lockfile}
}

// Default returns an Extractor with the npm/yarn/pnpm/bun tables.
func Default() *Extractor {
	return New(DefaultInstallRules(), DefaultLockfileRules())
}

// Extract classifies cmd and, for package adds, returns the canonical references.
func (e *Extractor) Extract(cmd string) Result {
	cmd = strings.TrimSpace(cmd)
	if cmd == "" {
		return Result{Kind: KindNone}
	}

	for _, r := range e.install {
		loc := r.Pattern.FindStringSubmatchIndex(cmd)
		if len(loc) < 4 || loc[2] < 0 {
			continue
		}
		refs := packageArgs(cmd[loc[2]:], r)
		if len(refs) == 0 {
			continue
		}
		return Result{Kind: KindPackageAdd, Refs: refs}
	}

	for _, r := range e.lockfile {
		if r.Pattern.MatchString(cmd) {
			return Result{Kind: KindLockfileOnly}
		}
	}

	return Result{Kind: KindNone}
}

// packageArgs collects the positional arguments of one invocation, starting at
// the first package argument and stopping at the next shell separator,
// redirection or comment. Flags are skipped and duplicates dropped.
func packageArgs(tail string, r Rule) []PackageRef {
	if i := strings.IndexAny(tail, "&;|()\n"); i >= 0 {
		tail = tail[:i]
	}

	var refs []PackageRef
	seen := make(map[string]bool)
	for _, arg := range strings.Fields(tail) {
		if strings.ContainsAny(arg, "<>") || strings.HasPrefix(arg, "#") {
			break
		}
		if strings.HasPrefix(arg, "-") {
			continue
		}
		name := Canonical(arg)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		refs = append(refs, PackageRef{
			Ecosystem: r.Ecosystem,
			Name:      name,
			Manager:   r.Manager,
			Raw:       arg,
		})
	}
	return refs
}

// Canonical strips surrounding quotes and a trailing @version or @tag.
// A leading @ belongs to a scope and is kept.
func Canonical(arg string) string {
	s := strings.Trim(arg, `"'`)
	if at := strings.LastIndex(s, "@"); at > 0 {
		s = s[:at]
	}
	return s
}
