package zlink

import "git.sr.ht/~varlinkrt/zlink-go/internal/zlinkcfg"

// profileFromConfig maps the configuration-layer Profile (internal/zlinkcfg,
// which cannot import this package without a cycle) onto the core's own
// Profile.
func profileFromConfig(p zlinkcfg.Profile) Profile {
	if p == zlinkcfg.ProfileFixed {
		return ProfileFixed
	}
	return ProfileHeap
}

func classFromConfig(c zlinkcfg.Class) Class {
	switch c {
	case zlinkcfg.Class4KiB:
		return Class4KiB
	case zlinkcfg.Class16KiB:
		return Class16KiB
	case zlinkcfg.Class1MiB:
		return Class1MiB
	default:
		return Class2KiB
	}
}
