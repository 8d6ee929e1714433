package talk

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"talksync/pkg/config"
	"talksync/pkg/errors"
	"talksync/pkg/logger"
)

const timelineBody = `{"messages":[
	{"id":1,"state":"published","type":"text","published_at":"2023-05-01T09:00:00Z","text":"hello"},
	{"id":"2","state":"unpublished","type":"text","published_at":"2023-05-01T09:30:00Z"},
	{"id":42,"state":"published","type":"picture","published_at":"2023-05-01T10:00:00Z","text":"caption","file":"https://cdn.test/42.jpg"}
]}`

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *logger.TestLogger) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	group, ok := LookupGroup("nogi")
	require.True(t, ok)

	log := logger.NewTestLogger()
	client := NewClient(group.WithBaseURL(server.URL), &config.HTTPConfig{
		RequestTimeout:  2 * time.Second,
		DownloadTimeout: 2 * time.Second,
	}, log)
	return client, log
}

func gzipBytes(t *testing.T, s string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write([]byte(s))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestExchangeTokenSendsFixedHeaders(t *testing.T) {
	var got *http.Request
	var payload TokenRequest

	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		got = r.Clone(context.Background())
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"access_token":"access-1"}`)
	})

	token, err := client.ExchangeToken(context.Background(), "refresh-1")
	require.NoError(t, err)
	assert.Equal(t, "access-1", token)

	require.NotNil(t, got)
	assert.Equal(t, http.MethodPost, got.Method)
	assert.Equal(t, TokenEndpoint, got.URL.Path)
	assert.Equal(t, "refresh-1", payload.RefreshToken)
	assert.Equal(t, "application/json", got.Header.Get("Accept"))
	assert.Equal(t, "application/json", got.Header.Get("Content-Type"))
	assert.Equal(t, "jp.co.sonymusic.communication.nogizaka 2.4", got.Header.Get("X-Talk-App-ID"))
	assert.Equal(t, UserAgent, got.Header.Get("User-Agent"))
	assert.Equal(t, "ja-JP", got.Header.Get("Accept-Language"))
	assert.Equal(t, "gzip", got.Header.Get("Accept-Encoding"))
	assert.Equal(t, "gzip, deflate; q=0.5", got.Header.Get("TE"))
	assert.Empty(t, got.Header.Get("Authorization"))
}

func TestExchangeTokenFailures(t *testing.T) {
	tests := []struct {
		name      string
		handler   http.HandlerFunc
		transport errors.ErrorType
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
			},
			transport: errors.ErrorTypeServerError,
		},
		{
			name: "unauthorized",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusUnauthorized)
			},
			transport: errors.ErrorTypeAuth,
		},
		{
			name: "invalid json",
			handler: func(w http.ResponseWriter, r *http.Request) {
				io.WriteString(w, `{"access_token":`)
			},
			transport: errors.ErrorTypeParsing,
		},
		{
			name: "empty token",
			handler: func(w http.ResponseWriter, r *http.Request) {
				io.WriteString(w, `{"access_token":""}`)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _ := newTestClient(t, tt.handler)

			_, err := client.ExchangeToken(context.Background(), "refresh")
			require.Error(t, err)
			assert.True(t, errors.IsType(err, errors.ErrorTypeTokenExchange))
			if tt.transport != "" {
				assert.True(t, errors.IsType(err, tt.transport), "expected %s in %v", tt.transport, err)
			}
		})
	}
}

func TestExchangeTokenWithoutRefreshToken(t *testing.T) {
	var calls int32
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	})

	_, err := client.ExchangeToken(context.Background(), "")
	assert.True(t, errors.IsType(err, errors.ErrorTypeTokenExchange))
	assert.Zero(t, atomic.LoadInt32(&calls))
}

func TestFetchMessages(t *testing.T) {
	var gotQuery, gotAuth, gotPath string
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		gotAuth = r.Header.Get("Authorization")
		io.WriteString(w, timelineBody)
	})

	since := time.Date(2023, 5, 1, 8, 0, 0, 0, time.UTC)
	msgs, err := client.FetchMessages(context.Background(), "access-1", "64", since)
	require.NoError(t, err)

	assert.Equal(t, "/v2/groups/64/timeline", gotPath)
	assert.Equal(t, "count=100&order=asc&created_from=2023-05-01T08%3A00%3A00Z", gotQuery)
	assert.Equal(t, "Bearer access-1", gotAuth)

	require.Len(t, msgs, 3)
	assert.Equal(t, MessageID("1"), msgs[0].ID)
	assert.True(t, msgs[0].IsPublished())
	assert.False(t, msgs[1].IsPublished())
	assert.Equal(t, "42", msgs[2].ID.String())
	assert.Equal(t, TypePicture, msgs[2].Type)
	assert.Equal(t, "https://cdn.test/42.jpg", msgs[2].File)
}

func TestTimelineUsesGroupAppID(t *testing.T) {
	var gotAppID string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAppID = r.Header.Get("X-Talk-App-ID")
		io.WriteString(w, `{"messages":[]}`)
	}))
	t.Cleanup(server.Close)

	group, ok := LookupGroup("saku")
	require.True(t, ok)
	client := NewClient(group.WithBaseURL(server.URL), &config.HTTPConfig{
		RequestTimeout:  2 * time.Second,
		DownloadTimeout: 2 * time.Second,
	}, logger.NewNopLogger())

	_, err := client.FetchMessages(context.Background(), "access-1", "7", time.Time{})
	require.NoError(t, err)
	assert.Equal(t, "jp.co.sonymusic.communication.sakurazaka 2.4", gotAppID)
}

func TestFetchMessagesGzipMatchesPlain(t *testing.T) {
	plain, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, timelineBody)
	})
	compressed, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Encoding", "gzip")
		w.Write(gzipBytes(t, timelineBody))
	})

	since := time.Now()
	want, err := plain.FetchMessages(context.Background(), "a", "1", since)
	require.NoError(t, err)
	got, err := compressed.FetchMessages(context.Background(), "a", "1", since)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestFetchMessagesEmpty(t *testing.T) {
	for _, body := range []string{`{"messages":null}`, `{}`, `{"messages":[]}`} {
		t.Run(body, func(t *testing.T) {
			client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				io.WriteString(w, body)
			})
			msgs, err := client.FetchMessages(context.Background(), "a", "1", time.Now())
			require.NoError(t, err)
			assert.NotNil(t, msgs)
			assert.Empty(t, msgs)
		})
	}
}

func TestFetchMessagesFailures(t *testing.T) {
	t.Run("status", func(t *testing.T) {
		client, log := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		})
		_, err := client.FetchMessages(context.Background(), "a", "1", time.Now())
		assert.True(t, errors.IsType(err, errors.ErrorTypeFetch))
		assert.True(t, errors.IsType(err, errors.ErrorTypeServerError))
		assert.True(t, log.HasError())
	})

	t.Run("corrupt gzip", func(t *testing.T) {
		client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Encoding", "gzip")
			io.WriteString(w, "not gzip at all")
		})
		_, err := client.FetchMessages(context.Background(), "a", "1", time.Now())
		assert.True(t, errors.IsType(err, errors.ErrorTypeFetch))
	})

	t.Run("timeout", func(t *testing.T) {
		client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-time.After(5 * time.Second):
			}
		})
		client.requestTimeout = 50 * time.Millisecond

		_, err := client.FetchMessages(context.Background(), "a", "1", time.Now())
		assert.True(t, errors.IsType(err, errors.ErrorTypeFetch))
		assert.True(t, errors.IsType(err, errors.ErrorTypeNetwork))
	})
}

type countingLimiter struct{ waits int32 }

func (l *countingLimiter) Allow() bool { return true }
func (l *countingLimiter) Wait(ctx context.Context) error {
	atomic.AddInt32(&l.waits, 1)
	return nil
}
func (l *countingLimiter) Reset() {}

func TestRequestsWaitForLimiter(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"messages":[]}`)
	})
	limiter := &countingLimiter{}
	client.SetLimiter(limiter)

	for i := 0; i < 3; i++ {
		_, err := client.FetchMessages(context.Background(), "a", "1", time.Now())
		require.NoError(t, err)
	}
	assert.Equal(t, int32(3), atomic.LoadInt32(&limiter.waits))
}

func TestDownload(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/media/42.jpg":
			assert.Empty(t, r.Header.Get("Authorization"))
			w.Write([]byte("jpeg-bytes"))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
	base := client.Group().BaseURL

	var buf bytes.Buffer
	n, err := client.Download(context.Background(), base+"/media/42.jpg", &buf)
	require.NoError(t, err)
	assert.Equal(t, int64(10), n)
	assert.Equal(t, "jpeg-bytes", buf.String())

	_, err = client.Download(context.Background(), base+"/media/missing.jpg", io.Discard)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeMediaDownload))
}

func TestCredentialSet(t *testing.T) {
	creds := NewCredentialSet()
	_, ok := creds.Get("nogi")
	assert.False(t, ok)

	creds.Set("saku", "s")
	creds.Set("hina", "h")
	token, ok := creds.Get("saku")
	assert.True(t, ok)
	assert.Equal(t, "s", token)
	assert.Equal(t, []string{"hina", "saku"}, creds.Groups())
}

func TestTokenManagerAcquireAll(t *testing.T) {
	good, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"access_token":"tok"}`)
	})
	bad, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	saku, _ := LookupGroup("saku")
	bad.group = saku.WithBaseURL(bad.group.BaseURL)

	log := logger.NewTestLogger()
	m := NewTokenManager(log)
	failures := m.AcquireAll(context.Background(), []TokenTarget{
		{Client: bad, RefreshToken: "r1"},
		{Client: good, RefreshToken: "r2"},
	})

	require.Len(t, failures, 1)
	assert.Contains(t, failures, "saku")

	token, ok := m.Credentials().Get("nogi")
	assert.True(t, ok)
	assert.Equal(t, "tok", token)
	_, ok = m.Credentials().Get("saku")
	assert.False(t, ok)

	require.Len(t, log.FindMessages("failed to acquire access token"), 1)
}
