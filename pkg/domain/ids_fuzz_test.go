//go:build go1.18

package domain

import (
	"testing"
)

// FuzzParseAthleteID tests that parsing never panics on arbitrary input
// and always returns either a valid ID or an error.
func FuzzParseAthleteID(f *testing.F) {
	f.Add("")
	f.Add("550e8400-e29b-41d4-a716-446655440000")
	f.Add("00000000-0000-0000-0000-000000000000")
	f.Add("not-a-uuid")
	f.Add("'; DROP TABLE athletes;--")
	f.Add(string([]byte{0x00, 0x01, 0x02}))

	f.Fuzz(func(t *testing.T, input string) {
		id, err := ParseAthleteID(input)
		if err != nil {
			return
		}
		if id.IsNil() {
			t.Error("parsed a nil athlete id")
		}
		roundTrip, err := ParseAthleteID(id.String())
		if err != nil {
			t.Errorf("valid ID failed round-trip: %v", err)
		}
		if roundTrip != id {
			t.Error("round-trip changed ID value")
		}
	})
}
