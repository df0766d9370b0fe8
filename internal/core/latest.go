package core

import "strings"

// multiExtensions are matched before the last-dot rule so compound archive
// suffixes survive extraction intact.
var multiExtensions = []string{".tar.gz", ".tar.bz2", ".tar.xz", ".tar.zst"}

// ExtractExtension returns the extension of an asset name, keeping compound
// archive suffixes whole: "app-1.0.0.tar.gz" -> "tar.gz". A name with no dot
// is returned as-is.
func ExtractExtension(name string) string {
	for _, ext := range multiExtensions {
		if strings.HasSuffix(name, ext) {
			return ext[1:]
		}
	}
	if pos := strings.LastIndex(name, "."); pos >= 0 {
		return name[pos+1:]
	}
	return name
}

// LatestAsset picks the asset a latest.{ext} request redirects to.
//
// Releases are scanned in upstream order (newest first). The first non-draft
// release is the only one considered: if it has no asset whose name ends in
// "."+ext, the lookup fails rather than falling back to an older release.
// Prereleases are eligible. Matching is an exact case-sensitive tail match of
// the whole requested token, so "tar.gz" never matches a bare ".gz" name.
func LatestAsset(releases []Release, ext string) (*Asset, bool) {
	if ext == "" {
		return nil, false
	}

	for i := range releases {
		if releases[i].Draft {
			continue
		}
		suffix := "." + ext
		for j := range releases[i].Assets {
			if strings.HasSuffix(releases[i].Assets[j].Name, suffix) {
				return &releases[i].Assets[j], true
			}
		}
		// Latest binds to the newest eligible release only.
		return nil, false
	}
	return nil, false
}
