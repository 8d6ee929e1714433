package talk

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry(t *testing.T) {
	assert.Equal(t, []string{"hina", "nogi", "saku"}, GroupIDs())

	tests := []struct {
		id      string
		baseURL string
		appID   string
	}{
		{"nogi", "https://api.n46.glastonr.net", "jp.co.sonymusic.communication.nogizaka 2.4"},
		{"saku", "https://api.s46.glastonr.net", "jp.co.sonymusic.communication.sakurazaka 2.4"},
		{"hina", "https://api.kh.glastonr.net", "jp.co.sonymusic.communication.keyakizaka 2.4"},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			g, ok := LookupGroup(tt.id)
			require.True(t, ok)
			assert.Equal(t, tt.baseURL, g.BaseURL)
			assert.Equal(t, tt.appID, g.AppID)
			assert.Equal(t, tt.baseURL+"/v2/update_token", g.TokenURL())
		})
	}

	_, ok := LookupGroup("keya")
	assert.False(t, ok)
}

func TestWithBaseURL(t *testing.T) {
	g, _ := LookupGroup("hina")
	local := g.WithBaseURL("http://127.0.0.1:8080/")
	assert.Equal(t, "http://127.0.0.1:8080", local.BaseURL)
	assert.Equal(t, g.AppID, local.AppID)
	assert.Equal(t, "https://api.kh.glastonr.net", g.BaseURL)

	assert.Equal(t, g, g.WithBaseURL(""))
}

func TestTimelineURL(t *testing.T) {
	g, _ := LookupGroup("saku")

	t.Run("before baseline", func(t *testing.T) {
		url := g.TimelineURL("12", time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC))
		assert.Equal(t,
			"https://api.s46.glastonr.net/v2/groups/12/timeline?count=100&order=asc&created_from=2023-02-02T11%3A16%3A09Z",
			url)
	})

	t.Run("after baseline", func(t *testing.T) {
		jst := time.FixedZone("JST", 9*60*60)
		url := g.TimelineURL("12", time.Date(2023, 5, 1, 19, 0, 0, 0, jst))
		assert.Contains(t, url, "created_from=2023-05-01T10%3A00%3A00Z")
	})
}

func TestCreatedFromNeverBeforeBaseline(t *testing.T) {
	for _, since := range []time.Time{
		{},
		Baseline.Add(-time.Second),
		Baseline,
	} {
		assert.Equal(t, "2023-02-02T11:16:09Z", CreatedFrom(since))
	}
	assert.Equal(t, "2023-02-02T11:16:10Z", CreatedFrom(Baseline.Add(time.Second)))
}

func TestMessageIDUnmarshal(t *testing.T) {
	var m Message
	require.NoError(t, json.Unmarshal([]byte(`{"id":1234567890123}`), &m))
	assert.Equal(t, MessageID("1234567890123"), m.ID)

	require.NoError(t, json.Unmarshal([]byte(`{"id":"abc"}`), &m))
	assert.Equal(t, MessageID("abc"), m.ID)

	assert.Error(t, json.Unmarshal([]byte(`{"id":true}`), &m))
}
