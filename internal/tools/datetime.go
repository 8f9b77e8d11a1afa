// Package tools - datetime.go is the builtin clock tool.
package tools

import (
	"fmt"
	"time"
)

// DateTimeKeyword is the keyword of the builtin local-time tool.
const DateTimeKeyword = "AI_DATE_TIME_NOW"

const dateTimeInstruction = "You have access to real current local date and time value now. To check it respond with " +
	"single word ${KEYWORD}.\nYou will receive reply with current local system date and time " +
	"in ISO 8601 format including time zone offset (e.g., Monday " +
	"2025-04-25T16:10:00+03:00).\nTreat " +
	"received value as fact, as current known date and time.\nTranslate the fact to proper " +
	"language user uses."

// DateTimeNow returns the builtin tool that reports local date and time.
// The payload is the weekday plus an ISO 8601 timestamp with zone offset and
// a line stating whether daylight saving is in effect.
func DateTimeNow() Command {
	return DateTimeNowAt(time.Now)
}

// DateTimeNowAt is DateTimeNow with an injectable clock.
func DateTimeNowAt(clock func() time.Time) Command {
	return Command{
		Keyword:     DateTimeKeyword,
		Instruction: dateTimeInstruction,
		Handler: KeywordOnly(func(string) string {
			now := clock()
			dst := "disabled"
			if now.IsDST() {
				dst = "active"
			}
			return fmt.Sprintf("%s\nDST is %s now.", now.Format("Monday 2006-01-02T15:04:05-07:00"), dst)
		}),
	}
}
