// Package all imports all supported platform providers.
//
// Import this package for its side effects to register every platform:
//
//	import (
//		"github.com/skorotkiewicz/checkup"
//		_ "github.com/skorotkiewicz/checkup/all"
//	)
//
//	// Now all platforms are available
//	platforms := checkup.SupportedPlatforms()
//	// ["cgit", "forgejo", "github", "gitlab"]
package all

import (
	_ "github.com/skorotkiewicz/checkup/internal/cgit"
	_ "github.com/skorotkiewicz/checkup/internal/forgejo"
	_ "github.com/skorotkiewicz/checkup/internal/github"
	_ "github.com/skorotkiewicz/checkup/internal/gitlab"
)
