package jobqueue

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// DeriveID computes the deterministic job ID for a request: the hash of
// (folder_path, include_code, sorted languages, sorted exclude_patterns,
// rebuild flag), so identical requests always collapse to the same ID.
func DeriveID(req Request) string {
	languages := append([]string(nil), req.Languages...)
	sort.Strings(languages)
	excludes := append([]string(nil), req.ExcludePatterns...)
	sort.Strings(excludes)

	key := fmt.Sprintf("%s|%t|%s|%s|%t",
		req.FolderPath, req.IncludeCode,
		strings.Join(languages, ","), strings.Join(excludes, ","),
		req.Rebuild)

	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])[:32]
}
