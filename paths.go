package mlworkflow

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// ExpandPath substitutes run-naming placeholders in a path template:
//
//	{}         current date and time, YYYYMMDD_HHMMSS
//	{datetime} same as {}
//	{date}     current date, YYYYMMDD
//	{time}     current time, HHMMSS
//	{uuid}     a random UUID, for collision-free names
//
// Templates without placeholders pass through unchanged. OpenCollection
// applies this to its path, so each run of a notebook cell gets its own
// log file.
func ExpandPath(template string) string {
	return expandPath(template, time.Now(), uuid.NewString)
}

func expandPath(template string, now time.Time, newUUID func() string) string {
	if !strings.Contains(template, "{") {
		return template
	}
	date := now.Format("20060102")
	tm := now.Format("150405")
	r := strings.NewReplacer(
		"{}", date+"_"+tm,
		"{datetime}", date+"_"+tm,
		"{date}", date,
		"{time}", tm,
		"{uuid}", newUUID(),
	)
	return r.Replace(template)
}
