package config

import "strings"

// GlobMatch checks if a project name matches a glob pattern. A "*" matches
// part of a component; a "**" component matches any number of whole
// components. Components split on "." so patterns like "incident.*" and
// "archive.**" behave the same way the teacher's path-component globbing
// does for "/"-separated paths (config/globmatch.go), just applied to
// dotted project names instead of filesystem paths.
//
// The algorithm is the backtracking approach described in
// https://research.swtch.com/glob.
func GlobMatch(pattern, name string) bool {
	patternComponents := strings.Split(pattern, ".")
	nameComponents := strings.Split(name, ".")
	i, j := 0, 0
	bti, btj := 0, 0 // backtrack indices

	for i < len(patternComponents) || j < len(nameComponents) {
		if i < len(patternComponents) {
			pc := patternComponents[i]
			if pc == "**" {
				bti = i
				btj = j + 1
				i++
				continue
			}

			if j < len(nameComponents) {
				nc := nameComponents[j]
				if componentsMatch(pc, nc) {
					i++
					j++
					continue
				}
			}
		}

		if 0 < btj && btj <= len(nameComponents) {
			i = bti
			j = btj
			continue
		}

		return false
	}

	return true
}

// componentsMatch checks if a component in the pattern matches a component
// of the name, where "*" in the pattern matches any run of characters.
func componentsMatch(pc, nc string) bool {
	i, j := 0, 0
	bti, btj := 0, 0

	for i < len(pc) || j < len(nc) {
		if i < len(pc) {
			p := pc[i]
			if p == '*' {
				bti = i
				btj = j + 1
				i++
				continue
			}

			if j < len(nc) {
				n := nc[j]
				if p == n {
					i++
					j++
					continue
				}
			}
		}

		if 0 < btj && btj <= len(nc) {
			i = bti
			j = btj
			continue
		}

		return false
	}

	return true
}
