package device

import "regexp"

var (
	reEdge    = regexp.MustCompile(`Edg/(\d+)`)
	reChrome  = regexp.MustCompile(`Chrome/(\d+)`)
	reFirefox = regexp.MustCompile(`Firefox/(\d+)`)
	reSafari  = regexp.MustCompile(`Version/(\d+).*Safari`)
)

// Label turns a User-Agent into "Browser N on OS" for the admin dashboard.
// It is cosmetic and never used for access decisions.
func Label(userAgent string) string {
	browser := "Unknown Browser"
	// Edge and Chrome both advertise Chrome/N, so order matters.
	for _, c := range []struct {
		re   *regexp.Regexp
		name string
	}{
		{reEdge, "Edge"},
		{reChrome, "Chrome"},
		{reFirefox, "Firefox"},
		{reSafari, "Safari"},
	} {
		if m := c.re.FindStringSubmatch(userAgent); m != nil {
			browser = c.name + " " + m[1]
			break
		}
	}

	return browser + " on " + labelOS(userAgent)
}

var osRules = []struct {
	re   *regexp.Regexp
	name string
}{
	{regexp.MustCompile(`iPhone`), "iPhone"},
	{regexp.MustCompile(`iPad`), "iPad"},
	{regexp.MustCompile(`Android`), "Android"},
	{regexp.MustCompile(`Mac OS X`), "macOS"},
	{regexp.MustCompile(`Windows`), "Windows"},
	{regexp.MustCompile(`Linux`), "Linux"},
}

func labelOS(ua string) string {
	for _, r := range osRules {
		if r.re.MatchString(ua) {
			return r.name
		}
	}
	return "Unknown OS"
}
