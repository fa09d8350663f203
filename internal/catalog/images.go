package catalog

import (
	"fmt"
	"strings"
)

// Upstream image references arrive as "<bucket>,<path>" pairs that the
// client is expected to expand against the CDN, at whatever render size it
// wants. Absolute http(s) URLs occasionally appear instead and pass
// through untouched.
const (
	cdnLogoTemplate  = "https://d229kpbsb5jevy.cloudfront.net/frndlytv/%d/%d/content/%s/logos/%s"
	cdnImageTemplate = "https://d229kpbsb5jevy.cloudfront.net/frndlytv/%d/%d/content/%s/%s"

	logoSize  = 400
	imageSize = 400
)

// LogoURL expands a channel logo reference. Returns "" when the reference
// is empty or not in bucket,path form.
func LogoURL(ref string) string {
	bucket, path, ok := splitImageRef(ref)
	if !ok {
		return ""
	}
	return fmt.Sprintf(cdnLogoTemplate, logoSize, logoSize, bucket, path)
}

// ImageURL expands a program artwork reference. Absolute URLs pass through.
func ImageURL(ref string) string {
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return ref
	}
	bucket, path, ok := splitImageRef(ref)
	if !ok {
		return ""
	}
	return fmt.Sprintf(cdnImageTemplate, imageSize, imageSize, bucket, path)
}

func splitImageRef(ref string) (bucket, path string, ok bool) {
	bucket, path, found := strings.Cut(ref, ",")
	if !found || bucket == "" || path == "" {
		return "", "", false
	}
	return bucket, path, true
}
