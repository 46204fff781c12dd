package validation

import "regexp"

var TrackingCodePattern = regexp.MustCompile(`^RB-[A-Z0-9]{6}$`)
