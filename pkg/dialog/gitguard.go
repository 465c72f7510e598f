package dialog

import "regexp"

var destructiveGit = regexp.MustCompile(`git\s+(reset|checkout\s+--|restore|clean)`)

// IsDestructiveGitCommand reports whether cmd would discard work tree or
// index changes. Such commands are never offered for remote approval.
func IsDestructiveGitCommand(cmd string) bool {
	return destructiveGit.MatchString(cmd)
}

func anyDestructive(cmds []string) bool {
	for _, c := range cmds {
		if IsDestructiveGitCommand(c) {
			return true
		}
	}
	return false
}
