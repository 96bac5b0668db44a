package appointment

import (
	"fmt"
	"math/rand"
	"time"
)

// CodePrefix is the appointment identifier prefix.
const CodePrefix = "APT"

// maxCodeAttempts bounds identifier regeneration when the random
// disambiguator collides with an existing code for the day.
const maxCodeAttempts = 5

// generateCode produces a human-readable appointment identifier:
// prefix, 8-digit date stamp, 4-digit random disambiguator.
func generateCode(date time.Time) string {
	return fmt.Sprintf("%s%s%04d", CodePrefix, date.Format("20060102"), rand.Intn(10000))
}
