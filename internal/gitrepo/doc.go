// Package gitrepo drives a local git working copy through the git CLI.
//
// Every operation runs `git` with the repository as working directory,
// GIT_TERMINAL_PROMPT=0 and LC_ALL=C. Failures are returned as *CommandError
// carrying the arguments and combined output. Transport and credentials are
// whatever the git installation is configured with.
package gitrepo
