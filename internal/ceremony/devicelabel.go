package ceremony

import "strings"

const maxLabelLength = 64

var platforms = []struct {
	token string
	label string
}{
	{"iPhone", "iPhone"},
	{"iPad", "iPad"},
	{"Android", "Android"},
	{"CrOS", "Chromebook"},
	{"Macintosh", "Mac"},
	{"Mac OS X", "Mac"},
	{"Windows", "Windows"},
	{"Linux", "Linux"},
}

// Order matters: Edge and Opera also advertise Chrome, and Chrome advertises Safari.
var browsers = []struct {
	token string
	label string
}{
	{"Edg/", "Edge"},
	{"OPR/", "Opera"},
	{"Firefox/", "Firefox"},
	{"FxiOS/", "Firefox"},
	{"CriOS/", "Chrome"},
	{"Chrome/", "Chrome"},
	{"Safari/", "Safari"},
}

// DeviceLabel derives a display name such as "Chrome on Mac" from a User-Agent header.
// The result is for display only.
func DeviceLabel(userAgent string) string {
	ua := strings.TrimSpace(userAgent)
	if ua == "" {
		return "Unknown device"
	}
	var platform, browser string
	for _, p := range platforms {
		if strings.Contains(ua, p.token) {
			platform = p.label
			break
		}
	}
	for _, b := range browsers {
		if strings.Contains(ua, b.token) {
			browser = b.label
			break
		}
	}
	var label string
	switch {
	case browser != "" && platform != "":
		label = browser + " on " + platform
	case platform != "":
		label = platform
	case browser != "":
		label = browser
	default:
		label = ua
	}
	if len(label) > maxLabelLength {
		label = label[:maxLabelLength]
	}
	return label
}
