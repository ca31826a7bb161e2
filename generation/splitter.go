package generation

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Splitter slices a complete answer into fragments for simulated streaming.
// Concatenating the fragments must reproduce the input exactly.
type Splitter func(text string) []string

// Splitter names.
const (
	SplitWhole    = "whole"
	SplitToken    = "token"
	SplitSentence = "sentence"
	SplitLine     = "line"
	SplitSmart    = "smart"
)

const (
	tokenFlushRunes = 12
	smartGroupRunes = 50
	tokenBreaks     = " \n，。.,!?！？；;"
	sentenceEnds    = "。！？!?"
)

// ParseSplitter resolves a splitter by name. Empty selects SplitToken.
func ParseSplitter(name string) (Splitter, error) {
	switch name {
	case "", SplitToken:
		return SplitTokens, nil
	case SplitWhole:
		return SplitWholeText, nil
	case SplitSentence:
		return SplitSentences, nil
	case SplitLine:
		return SplitLines, nil
	case SplitSmart:
		return SplitSmartGroups, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownSplitter, name)
	}
}

// SplitWholeText yields the text as a single fragment.
func SplitWholeText(text string) []string {
	if text == "" {
		return nil
	}
	return []string{text}
}

// SplitTokens flushes after a break character or once 12 runes have
// accumulated.
func SplitTokens(text string) []string {
	var (
		parts []string
		buf   strings.Builder
		n     int
	)
	for _, r := range text {
		buf.WriteRune(r)
		n++
		if n >= tokenFlushRunes || strings.ContainsRune(tokenBreaks, r) {
			parts = append(parts, buf.String())
			buf.Reset()
			n = 0
		}
	}
	if buf.Len() > 0 {
		parts = append(parts, buf.String())
	}
	return parts
}

// SplitSentences cuts after each sentence terminator.
func SplitSentences(text string) []string {
	var (
		parts []string
		start int
	)
	for i, r := range text {
		if strings.ContainsRune(sentenceEnds, r) {
			end := i + utf8.RuneLen(r)
			parts = append(parts, text[start:end])
			start = end
		}
	}
	if start < len(text) {
		parts = append(parts, text[start:])
	}
	return parts
}

// SplitLines cuts after each newline.
func SplitLines(text string) []string {
	if text == "" {
		return nil
	}
	return strings.SplitAfter(text, "\n")
}

// SplitSmartGroups packs whole sentences into fragments of up to 50 runes. A
// single longer sentence is emitted alone.
func SplitSmartGroups(text string) []string {
	var (
		parts []string
		buf   strings.Builder
		n     int
	)
	for _, sentence := range SplitSentences(text) {
		size := utf8.RuneCountInString(sentence)
		if n > 0 && n+size > smartGroupRunes {
			parts = append(parts, buf.String())
			buf.Reset()
			n = 0
		}
		buf.WriteString(sentence)
		n += size
	}
	if buf.Len() > 0 {
		parts = append(parts, buf.String())
	}
	return parts
}
