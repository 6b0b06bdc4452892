package engine

import (
	"fmt"
	"strings"
)

var vcardDayAbbr = [7]string{"Su", "Mo", "Tu", "We", "Th", "Fr", "Sa"}

// vcardEscape escapes backslash, semicolon and comma per RFC 6350.
func vcardEscape(value string) string {
	value = strings.ReplaceAll(value, `\`, `\\`)
	value = strings.ReplaceAll(value, ";", `\;`)
	return strings.ReplaceAll(value, ",", `\,`)
}

// vcardText renders the business card from the configured identity and
// the weekly schedule. Lines use CRLF per the vCard format.
func (e *Engine) vcardText() (string, error) {
	weekly, err := e.db.BusinessHours()
	if err != nil {
		return "", fmt.Errorf("failed to load business hours: %w", err)
	}

	var hoursParts []string
	for _, h := range weekly {
		if h.Closed {
			continue
		}
		abbr := "?"
		if h.Day >= 0 && h.Day < len(vcardDayAbbr) {
			abbr = vcardDayAbbr[h.Day]
		}
		hoursParts = append(hoursParts, fmt.Sprintf("%s %s-%s", abbr, h.Open, h.Close))
	}

	biz := e.cfg.Business
	name := vcardEscape(biz.Name)

	lines := []string{
		"BEGIN:VCARD",
		"VERSION:3.0",
		"FN:" + name,
		"N:" + name + ";;;;",
		"ORG:" + name,
	}
	if biz.Phone != "" {
		lines = append(lines, "TEL;TYPE=WORK,VOICE:"+biz.Phone)
	}
	if biz.Address != "" {
		lines = append(lines, "ADR;TYPE=WORK:;;"+vcardEscape(biz.Address)+";;;;")
	}
	if biz.Website != "" {
		lines = append(lines, "URL:"+biz.Website)
	}
	if len(hoursParts) > 0 {
		lines = append(lines, "NOTE:"+vcardEscape(strings.Join(hoursParts, " | ")))
	}
	lines = append(lines, "END:VCARD")
	return strings.Join(lines, "\r\n"), nil
}
