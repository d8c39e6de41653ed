package commands

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roster/internal/identity/models"
	id "roster/pkg/domain"
)

func TestReadRecords(t *testing.T) {
	t.Run("decodes rows and defaults the source system", func(t *testing.T) {
		in := strings.NewReader(`{"name":"Ryan Weiss","date_of_birth":"2003-05-14","height":73.5}

{"name":"Maria Diaz","source_system":"hitting","gender":"F"}
`)
		recs, err := readRecords(in, models.SourcePitching)
		require.NoError(t, err)
		require.Len(t, recs, 2)

		assert.Equal(t, models.SourcePitching, recs[0].SourceSystem)
		require.NotNil(t, recs[0].Observation.DateOfBirth)
		assert.Equal(t, "2003-05-14", recs[0].Observation.DateOfBirth.Format("2006-01-02"))
		assert.Equal(t, 73.5, *recs[0].Observation.Height)
		assert.Equal(t, models.SourceHitting, recs[1].SourceSystem)
		assert.Equal(t, "F", *recs[1].Observation.Gender)
	})

	t.Run("reports the failing line", func(t *testing.T) {
		_, err := readRecords(strings.NewReader("{\"name\":\"A\"}\n{bad\n"), models.SourcePitching)
		assert.ErrorContains(t, err, "line 2")

		_, err = readRecords(strings.NewReader(`{"name":"A","date_of_birth":"14/05/2003"}`), models.SourcePitching)
		assert.ErrorContains(t, err, "YYYY-MM-DD")
	})
}

func TestWriteAttached(t *testing.T) {
	athleteID := id.NewAthleteID()
	var buf bytes.Buffer
	require.NoError(t, writeAttached(&buf, []models.Record{
		{Name: "Ryan Weiss", SourceSystem: models.SourcePitching, AthleteID: athleteID},
		{Name: "Nobody", SourceSystem: models.SourcePitching},
	}))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"athlete_uuid":"`+athleteID.String()+`"`)
	assert.NotContains(t, lines[1], "athlete_uuid")
}
