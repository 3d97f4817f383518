package payload

import (
	"fmt"
	"regexp"
)

// storagePathPattern mirrors the store's own storage-path contract:
// <bucket>/<yyyy>/<mm>/<dd>/<file>.(html|txt).gz — no embedded path
// separators inside the bucket or filename segments. Compiled once at
// package init, following the teacher's convention of package-level
// compiled regex for hot-path validation.
var storagePathPattern = regexp.MustCompile(`^[^/]+/\d{4}/\d{2}/\d{2}/[^/]+\.(html|txt)\.gz$`)

// ValidateStoragePath reports a local error before any atomic-insert
// call is made, so a malformed storage_path surfaces as a clear
// 400-class failure instead of a rejected remote call (spec §4.9,
// Scenario F).
func ValidateStoragePath(path string) error {
	if !storagePathPattern.MatchString(path) {
		return fmt.Errorf("storage_path %q does not match the required <bucket>/yyyy/mm/dd/<file>.(html|txt).gz pattern", path)
	}
	return nil
}
