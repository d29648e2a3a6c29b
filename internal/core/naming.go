package core

import (
	"fmt"
	"regexp"
	"strings"
)

var evenRe = regexp.MustCompile("(?i)" + regexp.QuoteMeta(even))

// RemoveEven strips every case-insensitive occurrence of "even". Imported
// tomograms carry it in their tsId and output names must not.
func RemoveEven(s string) string {
	return evenRe.ReplaceAllString(s, "")
}

// ValidateTsId rejects tsIds that cannot be used as a file name inside a run
// directory.
func ValidateTsId(tsId string) error {
	switch {
	case strings.TrimSpace(tsId) == "":
		return fmt.Errorf("tomogram id is empty")
	case tsId == "." || tsId == "..":
		return fmt.Errorf("tomogram id '%s' is not a valid file name", tsId)
	case strings.ContainsAny(tsId, "/\\\x00"):
		return fmt.Errorf("tomogram id '%s' must not contain path separators", tsId)
	case RemoveEven(tsId) == "":
		return fmt.Errorf("tomogram id '%s' is empty once '%s' is removed", tsId, even)
	}
	return nil
}

// denoisedName is the folder cryoCARE writes the denoised tomogram of tsId to.
func denoisedName(tsId string) string {
	return RemoveEven(tsId + "_" + DenoisedSuffix)
}
