// Package textutil holds the pure text-normalization helpers used to make
// ticket content comparable: HTML stripping, quoted-reply trimming, and raw
// email cleanup. Deterministic, no I/O.
package textutil

import (
	"html"
	"regexp"
	"strings"
)

var (
	htmlTagRe    = regexp.MustCompile(`<[^>]*>`)
	whitespaceRe = regexp.MustCompile(`\s+`)

	// Quoted-reply markers: "On Mon, 2 Jan 2006, someone wrote:",
	// "---- On ..." and "Forwarded message:".
	onWroteRe   = regexp.MustCompile(`(?i)on\s+\w{3},\s+\d{1,2}\s+\w{3,9}\s+\d{4},?.*wrote:`)
	dashedOnRe  = regexp.MustCompile(`(?i)----\s+on\s+`)
	forwardedRe = regexp.MustCompile(`(?i)forwarded message:`)

	mimeBoundaryRe    = regexp.MustCompile(`(?m)^--[-A-Za-z0-9_.+]+.*$`)
	contentSectionRe  = regexp.MustCompile(`(?mis)^Content-.*?(?:\n\n|\n$)`)
	machineHeaderRe   = regexp.MustCompile(`(?mi)^(dkim|spf|arc|received|x-[\w-]+|mime-version|message-id|return-path|domainkey-signature):.*$`)
	headerBlockRe     = regexp.MustCompile(`(?s)^.*?\n\n`)
	multiBlankLinesRe = regexp.MustCompile(`\n{2,}`)
)

// StripHTML removes tags, collapses whitespace and trims.
func StripHTML(raw string) string {
	out := htmlTagRe.ReplaceAllString(raw, "")
	out = whitespaceRe.ReplaceAllString(out, " ")
	return strings.TrimSpace(out)
}

// StripQuoted keeps only the text preceding the first quoted-reply or
// forwarded-message marker.
func StripQuoted(text string) string {
	for _, re := range []*regexp.Regexp{onWroteRe, dashedOnRe, forwardedRe} {
		if loc := re.FindStringIndex(text); loc != nil {
			text = text[:loc[0]]
		}
	}
	return strings.TrimSpace(text)
}

// NormalizeThreadContent applies the full-conversation normalization:
// HTML stripping followed by quoted-reply trimming.
func NormalizeThreadContent(raw string) string {
	return StripQuoted(StripHTML(raw))
}

// CleanRawEmail reduces a raw RFC-822 email body to readable text: the
// header block, MIME boundaries, Content-* sections and machine-generated
// headers are removed, soft quoted-printable line breaks are joined, HTML
// is stripped and entities decoded, and blank lines collapsed.
func CleanRawEmail(raw string) string {
	txt := strings.ReplaceAll(raw, "\r\n", "\n")

	txt = headerBlockRe.ReplaceAllString(txt, "")
	txt = mimeBoundaryRe.ReplaceAllString(txt, "")
	txt = contentSectionRe.ReplaceAllString(txt, "")
	txt = machineHeaderRe.ReplaceAllString(txt, "")
	txt = strings.ReplaceAll(txt, "=\n", "")
	txt = html.UnescapeString(htmlTagRe.ReplaceAllString(txt, " "))
	txt = multiBlankLinesRe.ReplaceAllString(txt, "\n")

	return strings.TrimSpace(txt)
}
