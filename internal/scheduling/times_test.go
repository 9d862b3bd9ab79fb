package scheduling

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDay(t *testing.T) {
	d, err := ParseDay("2026-09-10")
	require.NoError(t, err)
	assert.Equal(t, "2026-09-10", d.String())
	assert.Equal(t, time.UTC, d.Location())

	_, err = ParseDay("10/09/2026")
	assert.ErrorIs(t, err, ErrInvalidDay)
	_, err = ParseDay("")
	assert.ErrorIs(t, err, ErrInvalidDay)
}

func TestDayOfNormalizesToUTCMidnight(t *testing.T) {
	loc := time.FixedZone("UTC+5", 5*60*60)
	// 02:30 local on the 11th is still the 10th in UTC.
	local := time.Date(2026, time.September, 11, 2, 30, 0, 0, loc)

	d := DayOf(local)
	assert.Equal(t, "2026-09-10", d.String())
	assert.Equal(t, 0, d.Hour())
}

func TestDayAt(t *testing.T) {
	d := NewDay(2026, time.September, 10)
	at := d.At(mustTime(t, "09:30"))
	assert.Equal(t, time.Date(2026, time.September, 10, 9, 30, 0, 0, time.UTC), at)
}

func TestTimeOfDayParseAndFormat(t *testing.T) {
	tod, err := ParseTimeOfDay("09:05")
	require.NoError(t, err)
	assert.Equal(t, TimeOfDay(9*60+5), tod)
	assert.Equal(t, "09:05", tod.String())

	for _, in := range []string{"9am", "25:00", "09:61", ""} {
		_, err := ParseTimeOfDay(in)
		assert.ErrorIs(t, err, ErrInvalidTimeOfDay, "input %q", in)
	}
}

func TestDayJSONRoundTrip(t *testing.T) {
	type doc struct {
		Day   Day       `json:"day"`
		Start TimeOfDay `json:"start"`
	}

	in := doc{Day: NewDay(2026, time.September, 10), Start: mustTime(t, "14:30")}
	data, err := json.Marshal(in)
	require.NoError(t, err)
	assert.JSONEq(t, `{"day":"2026-09-10","start":"14:30"}`, string(data))

	var out doc
	require.NoError(t, json.Unmarshal(data, &out))
	assert.True(t, out.Day.Equal(in.Day.Time))
	assert.Equal(t, in.Start, out.Start)

	assert.Error(t, json.Unmarshal([]byte(`{"day":"next tuesday"}`), &out))
	assert.Error(t, json.Unmarshal([]byte(`{"start":"2pm"}`), &out))
}
