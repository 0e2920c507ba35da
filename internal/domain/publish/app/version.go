package app

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/relicta-tech/launchpad/internal/domain/publish/domain"
)

// iterationVersion returns the version published for a task of an iteration.
// npm packages outside production get "<version>-<tag>.<counter+1>".
func iterationVersion(it *domain.Iteration, pt domain.ProjectType, env domain.Node) string {
	tag := env.PrereleaseTag()
	if !pt.IsPackage() || tag == "" {
		return it.Version
	}
	return fmt.Sprintf("%s-%s.%d", it.Version, tag, it.Counter(env)+1)
}

// nextPrerelease returns the npm version for an external publish: the
// prerelease number of the previous task on the environment plus one, or 1
// when there is no comparable previous task.
func nextPrerelease(version string, env domain.Node, previous *domain.Task) string {
	tag := env.PrereleaseTag()
	if tag == "" {
		return version
	}
	return fmt.Sprintf("%s-%s.%d", version, tag, prereleaseNumber(version, tag, previous)+1)
}

func prereleaseNumber(version, tag string, previous *domain.Task) int {
	if previous == nil {
		return 0
	}
	base, err := semver.NewVersion(version)
	if err != nil {
		return 0
	}
	prev, err := semver.NewVersion(previous.Version)
	if err != nil {
		return 0
	}
	if prev.Major() != base.Major() || prev.Minor() != base.Minor() || prev.Patch() != base.Patch() {
		return 0
	}
	ident, num, ok := strings.Cut(prev.Prerelease(), ".")
	if !ok || ident != tag {
		return 0
	}
	n, err := strconv.Atoi(num)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
