package core

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// GenerateUnifiedDiff renders the change from remote to local in unified
// diff format. It returns "" when both are equal.
func GenerateUnifiedDiff(name string, remote, local []byte) (string, error) {
	if bytes.Equal(remote, local) {
		return "", nil
	}

	dmp := diffmatchpatch.New()

	// Line-mode diff for record-per-line output
	remoteStr, localStr := string(remote), string(local)
	a, b, lineArray := dmp.DiffLinesToChars(remoteStr, localStr)
	diffs := dmp.DiffMain(a, b, false)
	diffs = dmp.DiffCharsToLines(diffs, lineArray)

	patches := dmp.PatchMake(remoteStr, diffs)
	if len(patches) == 0 {
		return "", nil
	}

	var result strings.Builder
	result.WriteString(fmt.Sprintf("--- remote/%s\n", name))
	result.WriteString(fmt.Sprintf("+++ local/%s\n", name))
	result.WriteString(dmp.PatchToText(patches))

	return result.String(), nil
}
