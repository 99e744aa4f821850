package releases_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/bugfeat/pkg/releases"
)

const calendarYAML = `releases:
  - version: "71.0"
    date: 2019-12-03
  - version: "70.0"
    date: 2019-10-22
  - version: "69.0.1"
    date: "2019-09-18T00:00:00Z"
`

func TestParseOrdersByDate(t *testing.T) {
	t.Parallel()

	schedule, err := releases.Parse([]byte(calendarYAML))
	require.NoError(t, err)

	versions := make([]string, 0, 3)
	for _, release := range schedule.Releases() {
		versions = append(versions, release.Version)
	}

	assert.Equal(t, []string{"69.0.1", "70.0", "71.0"}, versions)
	assert.Equal(t, uint64(70), schedule.Releases()[1].Semver().Major())
}

func TestClosestRelease(t *testing.T) {
	t.Parallel()

	schedule, err := releases.Parse([]byte(calendarYAML))
	require.NoError(t, err)

	release, ok := schedule.ClosestRelease(time.Date(2019, time.October, 1, 0, 0, 0, 0, time.UTC))
	require.True(t, ok)
	assert.Equal(t, "70.0", release.Version)

	release, ok = schedule.ClosestRelease(time.Date(2019, time.October, 22, 0, 0, 0, 0, time.UTC))
	require.True(t, ok)
	assert.Equal(t, "70.0", release.Version, "a release on the same instant is the closest")

	_, ok = schedule.ClosestRelease(time.Date(2020, time.January, 1, 0, 0, 0, 0, time.UTC))
	assert.False(t, ok)
}

func TestParseRejectsInvalidEntries(t *testing.T) {
	t.Parallel()

	_, err := releases.Parse([]byte("releases:\n  - version: banana\n    date: 2019-01-01\n"))
	require.ErrorIs(t, err, releases.ErrInvalidCalendar)

	_, err = releases.Parse([]byte("releases:\n  - version: \"1.0\"\n    date: yesterday\n"))
	require.ErrorIs(t, err, releases.ErrInvalidCalendar)
}

func TestLoad(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "releases.yaml")
	require.NoError(t, os.WriteFile(path, []byte(calendarYAML), 0o600))

	schedule, err := releases.Load(path)
	require.NoError(t, err)
	assert.Len(t, schedule.Releases(), 3)

	_, err = releases.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
