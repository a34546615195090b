package extract

import "regexp"

// EcosystemNPM is the registry shared by every default package manager.
const EcosystemNPM = "npm"

// Rule maps one package-manager invocation shape to an ecosystem.
// For install rules, Pattern must capture the first package argument in group 1;
// later positional arguments of the same invocation are taken as well.
type Rule struct {
	Manager   string
	Ecosystem string
	Pattern   *regexp.Regexp
}

// Command fragments shared by the default tables. Matching is anchored at the
// start of a line or right after a shell separator so that "pnpm" never
// matches the "npm" rules. Leading VAR=value assignments and wrappers such as
// sudo, env or time are skipped.
const (
	cmdStart = `(?:(?m:^)|&&|\|\||[;|(&])\s*` + cmdPrefix
	cmdEnd   = `\s*(?:(?m:$)|&&|\|\||[;|)&])`
	flags    = `(?:[ \t]+-\S+)*`
	pkgArg   = `[ \t]+([^\s;&|()<>#\-][^\s;&|()<>]*)`

	cmdPrefix = `(?:(?:sudo|env|time|nohup|exec|command)(?:[ \t]+-\S+)*[ \t]+|[A-Za-z_][A-Za-z0-9_]*=\S*[ \t]+)*`
)

func installRule(manager, verbs string) Rule {
	return Rule{
		Manager:   manager,
		Ecosystem: EcosystemNPM,
		Pattern:   regexp.MustCompile(cmdStart + manager + `[ \t]+` + verbs + flags + pkgArg),
	}
}

func lockfileRule(manager, verbs string) Rule {
	return Rule{
		Manager:   manager,
		Ecosystem: EcosystemNPM,
		Pattern:   regexp.MustCompile(cmdStart + manager + verbs + flags + cmdEnd),
	}
}

// DefaultInstallRules cover the "add a dependency" forms of npm, yarn, pnpm and bun.
func DefaultInstallRules() []Rule {
	return []Rule{
		installRule("npm", `(?:install|i|add)`),
		installRule("yarn", `(?:global[ \t]+)?add`),
		installRule("pnpm", `(?:add|install|i)`),
		installRule("bun", `(?:add|install|i)`),
	}
}

// DefaultLockfileRules cover installs that only resolve an existing lock manifest.
func DefaultLockfileRules() []Rule {
	return []Rule{
		lockfileRule("npm", `[ \t]+(?:install|i|ci)`),
		lockfileRule("yarn", `(?:[ \t]+install)?`),
		lockfileRule("pnpm", `[ \t]+(?:install|i)`),
		lockfileRule("bun", `[ \t]+(?:install|i)`),
	}
}
