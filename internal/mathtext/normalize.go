// Package mathtext repairs the LaTeX the model tends to mangle before the
// answer reaches the client-side renderer.
package mathtext

import (
	"regexp"
	"strings"
)

var (
	bareFrac    = regexp.MustCompile(`([^\\])frac\{`)
	bareSqrt    = regexp.MustCompile(`([^\\])sqrt\{`)
	bareMathbb  = regexp.MustCompile(`([^\\])mathbb\{`)
	bareNeq     = regexp.MustCompile(` eq ([0-9xX-])`)
	bareSetmin  = regexp.MustCompile(`([^\\])setminus`)
	realSet     = regexp.MustCompile(`\\in R\b`)
	realSetMid  = regexp.MustCompile(`(\\mathbb\{R\})\s*\|\s*`)
	multiSlash  = regexp.MustCompile(`\\\\+([a-zA-Z])`)
	openParen   = regexp.MustCompile(`\\+\(`)
	closeParen  = regexp.MustCompile(`\\+\)`)
	openBrack   = regexp.MustCompile(`\\+\[`)
	closeBrack  = regexp.MustCompile(`\\+\]`)
	headingMark = regexp.MustCompile(`(?m)^###\s*`)
	displayOpen = regexp.MustCompile(`\\\[`)
	displayEnd  = regexp.MustCompile(`\\\]`)
	inlineGapL  = regexp.MustCompile(`\\\(\s+`)
	inlineGapR  = regexp.MustCompile(`\s+\\\)`)
)

// PrepareForRender fixes bare LaTeX commands the model drops the backslash
// from and collapses doubled delimiter slashes. The model already emits
// \( \) wrappers, so nothing is re-wrapped here.
func PrepareForRender(text string) string {
	if text == "" {
		return text
	}
	t := fixBareCommands(text)
	t = multiSlash.ReplaceAllString(t, `\$1`)
	t = openParen.ReplaceAllString(t, `\(`)
	t = closeParen.ReplaceAllString(t, `\)`)
	t = openBrack.ReplaceAllString(t, `\[`)
	t = closeBrack.ReplaceAllString(t, `\]`)
	return t
}

// CleanForPage prepares an answer for the standalone solution page: markdown
// heading markers go away and display math becomes inline, because the page
// splits lines into separate DOM nodes and a stray \] would show up as text.
func CleanForPage(text string) string {
	t := headingMark.ReplaceAllString(text, "")
	t = displayOpen.ReplaceAllString(t, `\(`)
	t = displayEnd.ReplaceAllString(t, `\)`)
	t = openParen.ReplaceAllString(t, `\(`)
	t = closeParen.ReplaceAllString(t, `\)`)
	// Keep each delimiter glued to its formula so <br> insertion cannot
	// separate them.
	t = inlineGapL.ReplaceAllString(t, `\( `)
	t = inlineGapR.ReplaceAllString(t, ` \)`)
	return t
}

func fixBareCommands(text string) string {
	t := bareFrac.ReplaceAllString(text, `$1\frac{`)
	if strings.HasPrefix(t, "frac{") {
		t = `\` + t
	}
	t = bareSqrt.ReplaceAllString(t, `$1\sqrt{`)
	t = bareMathbb.ReplaceAllString(t, `$1\mathbb{`)
	t = bareNeq.ReplaceAllString(t, ` \neq $1`)
	t = bareSetmin.ReplaceAllString(t, `$1\setminus`)
	t = realSet.ReplaceAllString(t, `\in \mathbb{R}`)
	t = realSetMid.ReplaceAllString(t, `$1 \mid `)
	return t
}
