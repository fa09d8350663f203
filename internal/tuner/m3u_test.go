package tuner

import (
	"bytes"
	"strings"
	"testing"

	"github.com/frndlytuner/frndly-tuner/internal/catalog"
)

func renderPlaylist(t *testing.T, channels []catalog.Channel, f Filters) string {
	t.Helper()
	var buf bytes.Buffer
	if err := WritePlaylist(&buf, channels, "http://tuner.local:8183", f); err != nil {
		t.Fatal(err)
	}
	return buf.String()
}

func TestWritePlaylist_entries(t *testing.T) {
	out := renderPlaylist(t, testChannels, Filters{})

	if !strings.HasPrefix(out, "#EXTM3U x-tvg-url=\"http://tuner.local:8183/epg.xml\"\n") {
		t.Errorf("header: %q", strings.SplitN(out, "\n", 2)[0])
	}
	for _, want := range []string{
		`channel-id="frndly-1"`,
		`tvg-id="frndly-1"`,
		`tvc-guide-stationid="65675"`,
		`tvg-chno="100"`,
		`tvg-name="Hallmark"`,
		`radio="false"`,
		"http://tuner.local:8183/play/hallmark-1.m3u8",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %s in:\n%s", want, out)
		}
	}
	// Channels without a station id carry no stationid attribute.
	for _, line := range strings.Split(out, "\n") {
		if strings.Contains(line, `channel-id="frndly-2"`) && strings.Contains(line, "tvc-guide-stationid") {
			t.Errorf("frndly-2 should not have a station id: %s", line)
		}
	}
}

func TestWritePlaylist_startChnoRenumbers(t *testing.T) {
	out := renderPlaylist(t, testChannels, Filters{StartChno: 200})
	for _, want := range []string{`tvg-chno="200"`, `tvg-chno="201"`, `tvg-chno="202"`} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %s", want)
		}
	}
	if strings.Contains(out, `tvg-chno="100"`) {
		t.Error("real channel number leaked despite start_chno")
	}
}

func TestWritePlaylist_epgURLCarriesGracenote(t *testing.T) {
	out := renderPlaylist(t, testChannels, Filters{Gracenote: GracenoteNone})
	if !strings.Contains(out, `x-tvg-url="http://tuner.local:8183/epg.xml?gracenote=exclude"`) {
		t.Errorf("epg url should carry the gracenote filter:\n%s", out)
	}
	if strings.Contains(out, "frndly-1") || strings.Contains(out, "frndly-3") {
		t.Error("gracenote channels should be filtered out")
	}
}

func TestWritePlaylist_sanitizesNames(t *testing.T) {
	channels := []catalog.Channel{{ID: "frndly-9", Name: `News, "Live" Now`, Number: 1, Slug: "news-9"}}
	out := renderPlaylist(t, channels, Filters{})
	if strings.Contains(out, `News, "Live"`) {
		t.Errorf("unsanitized name in output:\n%s", out)
	}
	if !strings.Contains(out, "News  'Live' Now") {
		t.Errorf("sanitized name missing:\n%s", out)
	}
}

func TestWritePlaylist_deterministic(t *testing.T) {
	a := renderPlaylist(t, testChannels, Filters{StartChno: 50})
	b := renderPlaylist(t, testChannels, Filters{StartChno: 50})
	if a != b {
		t.Error("identical inputs must render identical playlists")
	}
}
