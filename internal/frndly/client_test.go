package frndly

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func testClient(srv *httptest.Server) *Client {
	c := New(srv.URL+"/service/api", srv.URL+"/service/api", srv.URL+"/app.json", 5*time.Second)
	c.HTTPClient = srv.Client()
	c.HTTPClient.Timeout = 5 * time.Second
	return c
}

func TestLogin_success(t *testing.T) {
	var signinHeaders http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/v1/get/token"):
			fmt.Fprint(w, `{"response":{"sessionId":"sess-123"}}`)
		case strings.HasSuffix(r.URL.Path, "/auth/signin"):
			signinHeaders = r.Header.Clone()
			var payload map[string]any
			if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
				t.Errorf("signin body: %v", err)
			}
			if payload["login_id"] != "user@example.com" {
				t.Errorf("login_id = %v", payload["login_id"])
			}
			fmt.Fprint(w, `{"status":true}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := testClient(srv)
	sid, err := c.Login(context.Background(), "user@example.com", "pw")
	if err != nil {
		t.Fatal(err)
	}
	if sid != "sess-123" {
		t.Errorf("session id = %q", sid)
	}
	if signinHeaders.Get("session-id") != "sess-123" {
		t.Errorf("signin must carry the anonymous session id; got %q", signinHeaders.Get("session-id"))
	}
	if signinHeaders.Get("tenant-code") != "frndlytv" {
		t.Errorf("tenant-code = %q", signinHeaders.Get("tenant-code"))
	}
}

func TestLogin_badCredentials(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/v1/get/token") {
			fmt.Fprint(w, `{"response":{"sessionId":"anon"}}`)
			return
		}
		fmt.Fprint(w, `{"status":false,"error":{"message":"Invalid email or password"}}`)
	}))
	defer srv.Close()

	_, err := testClient(srv).Login(context.Background(), "u", "wrong")
	if !errors.Is(err, ErrBadCredentials) {
		t.Fatalf("want ErrBadCredentials, got %v", err)
	}
	if !strings.Contains(err.Error(), "Invalid email or password") {
		t.Errorf("error should carry upstream message: %v", err)
	}
}

func TestChannels_dropsBannerRows(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("session-id") != "sess" {
			t.Errorf("missing session-id header")
		}
		fmt.Fprint(w, `{"response":{"data":[
			{"id":1,"display":{"title":"Hallmark"},"metadata":{"channelNumber":"100"}},
			{"id":2,"display":{"title":"AD"},"metadata":{"isChannelBanner":"true"}},
			{"id":3,"display":{"title":"UPtv"},"metadata":{"channelNumber":101}}
		]}}`)
	}))
	defer srv.Close()

	chs, err := testClient(srv).Channels(context.Background(), "sess")
	if err != nil {
		t.Fatal(err)
	}
	if len(chs) != 2 {
		t.Fatalf("channels = %d, want 2 (banner dropped)", len(chs))
	}
	if chs[0].Display.Title != "Hallmark" || chs[1].Display.Title != "UPtv" {
		t.Errorf("titles = %q, %q", chs[0].Display.Title, chs[1].Display.Title)
	}
	if chs[0].Metadata.ChannelNumber.Int() != 100 || chs[1].Metadata.ChannelNumber.Int() != 101 {
		t.Errorf("numbers = %d, %d (string and int forms must both decode)",
			chs[0].Metadata.ChannelNumber.Int(), chs[1].Metadata.ChannelNumber.Int())
	}
}

func TestGet_emptyEnvelopeIsAuthRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"error":{"code":401,"message":"session expired"}}`)
	}))
	defer srv.Close()

	_, err := testClient(srv).Channels(context.Background(), "stale")
	if !errors.Is(err, ErrAuthRejected) {
		t.Fatalf("want ErrAuthRejected, got %v", err)
	}
}

func TestGet_httpAuthStatusIsAuthRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := testClient(srv).Channels(context.Background(), "stale")
	if !errors.Is(err, ErrAuthRejected) {
		t.Fatalf("want ErrAuthRejected, got %v", err)
	}
}

func TestGuide_chunksPerDay(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if r.URL.Query().Get("channel_ids") != "1,2" {
			t.Errorf("channel_ids = %q", r.URL.Query().Get("channel_ids"))
		}
		if r.URL.Query().Get("start_time") == "" || r.URL.Query().Get("end_time") == "" {
			t.Error("missing start_time/end_time")
		}
		fmt.Fprintf(w, `{"response":{"data":[{"channelId":1,"programs":[{"display":{"title":"Day %d"}}]}]}}`, n)
	}))
	defer srv.Close()

	progs, err := testClient(srv).Guide(context.Background(), "sess", []string{"1", "2"}, time.Now(), 3)
	if err != nil {
		t.Fatal(err)
	}
	if calls != 3 {
		t.Errorf("upstream calls = %d, want 3 (one per day)", calls)
	}
	if len(progs["1"]) != 3 {
		t.Errorf("programs merged = %d, want 3", len(progs["1"]))
	}
}

func TestStream_prefersClearStreamAndEndsSession(t *testing.T) {
	var sessionEnded int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/v1/stream/session/end") {
			atomic.AddInt32(&sessionEnded, 1)
			if r.FormValue("poll_key") != "pk-1" {
				t.Errorf("poll_key = %q", r.FormValue("poll_key"))
			}
			fmt.Fprint(w, `{"status":true}`)
			return
		}
		fmt.Fprint(w, `{"response":{
			"streams":[
				{"url":"https://cdn/drm.mpd?a=1","streamType":"widevine","keys":{"licenseKey":"zzz"}},
				{"url":"https://cdn/clear.m3u8?a=1","streamType":"hls","keys":{}}
			],
			"playerSettings":[{"value":"1700000000000"}],
			"sessionInfo":{"streamPollKey":"pk-1"}
		}}`)
	}))
	defer srv.Close()

	res, err := testClient(srv).Stream(context.Background(), "sess", "channel/live/hallmark")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(res.URL, "https://cdn/clear.m3u8") {
		t.Errorf("url = %q, want clear variant", res.URL)
	}
	if !strings.Contains(res.URL, "start=1700000000") || !strings.Contains(res.URL, "startTime=1700000000") {
		t.Errorf("url should carry start params: %q", res.URL)
	}
	if atomic.LoadInt32(&sessionEnded) != 1 {
		t.Errorf("stream poll session not ended")
	}
}

func TestStream_drmOnlyFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"response":{"streams":[{"url":"https://cdn/drm.mpd","streamType":"widevine","keys":{"licenseKey":"k"}}]}}`)
	}))
	defer srv.Close()

	_, err := testClient(srv).Stream(context.Background(), "sess", "p")
	if err == nil || !strings.Contains(err.Error(), "DRM") {
		t.Fatalf("want DRM rejection, got %v", err)
	}
}

func TestLiveMap_decodes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"155":{"chno":100,"slug":"hallmark-channel","gracenote":"65675"},"156":{"chno":"101","slug":"uptv"}}`)
	}))
	defer srv.Close()

	m, err := testClient(srv).LiveMap(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if m["155"].ChNo.Int() != 100 || m["155"].Gracenote.String() != "65675" {
		t.Errorf("entry 155 = %+v", m["155"])
	}
	if m["156"].ChNo.Int() != 101 {
		t.Errorf("string chno should decode: %+v", m["156"])
	}
}

func TestFlexTypes(t *testing.T) {
	var p RawProgram
	raw := `{
		"display":{"title":"Movie Night","markers":{"startTime":{"value":"1700000000000"},"endTime":{"value":1700007200000}}},
		"metadata":{"genres":"Drama, Family","season":"2","episodeNumber":5,"isNew":"true","rating":"TV14"}
	}`
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		t.Fatal(err)
	}
	if p.Display.Markers.StartTime.Value.Int64() != 1700000000000 {
		t.Errorf("string marker: %d", p.Display.Markers.StartTime.Value.Int64())
	}
	if p.Display.Markers.EndTime.Value.Int64() != 1700007200000 {
		t.Errorf("number marker: %d", p.Display.Markers.EndTime.Value.Int64())
	}
	if got := []string(p.Metadata.Genres); len(got) != 2 || got[0] != "Drama" || got[1] != "Family" {
		t.Errorf("comma genres: %v", got)
	}
	if p.Metadata.Season.Int() != 2 || p.Metadata.EpisodeNumber.Int() != 5 {
		t.Errorf("season/episode: %d/%d", p.Metadata.Season.Int(), p.Metadata.EpisodeNumber.Int())
	}
	if !p.Metadata.IsNew.True() {
		t.Error("isNew string form")
	}
}
