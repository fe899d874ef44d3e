package fetch

import (
	"bytes"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// captchaMarkers are provider-specific indicator substrings found in
// challenge pages
var captchaMarkers = []string{
	"px-captcha",
	"press & hold",
	"press and hold",
	"are you a robot",
	"verify you are human",
	"g-recaptcha",
	"h-captcha",
	"cf-challenge",
	"_incapsula_",
	"distil_r_captcha",
}

// captchaSelectors are element/iframe selectors found in challenge pages
var captchaSelectors = []string{
	"#px-captcha",
	"iframe[src*='captcha']",
	"iframe[src*='challenge']",
	"div.g-recaptcha",
	"div.h-captcha",
	"form#challenge-form",
}

// DetectCaptcha reports whether a page body looks like an anti-bot
// challenge rather than real content
func DetectCaptcha(body []byte) bool {
	lower := strings.ToLower(string(body))
	for _, marker := range captchaMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return false
	}
	for _, sel := range captchaSelectors {
		if doc.Find(sel).Length() > 0 {
			return true
		}
	}
	return false
}
