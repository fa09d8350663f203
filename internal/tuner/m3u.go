package tuner

import (
	"fmt"
	"io"
	"strings"

	"github.com/frndlytuner/frndly-tuner/internal/catalog"
)

// WritePlaylist emits the filtered lineup as an M3U playlist. Entries
// point at our /play/ redirect endpoint so clients never see (or cache)
// the short-lived upstream URLs. Pure function of its inputs; the handler
// layer supplies the advertised base URL.
func WritePlaylist(w io.Writer, channels []catalog.Channel, baseURL string, f Filters) error {
	base := strings.TrimSuffix(baseURL, "/")
	if _, err := fmt.Fprintf(w, "#EXTM3U x-tvg-url=%q\n", base+"/epg.xml"+f.EPGQuery()); err != nil {
		return err
	}

	chno := f.StartChno
	for _, ch := range f.Apply(channels) {
		attrs := []string{
			fmt.Sprintf("channel-id=%q", ch.ID),
			fmt.Sprintf("tvg-id=%q", ch.ID),
		}
		if ch.LogoURL != "" {
			attrs = append(attrs, fmt.Sprintf("tvg-logo=%q", ch.LogoURL))
		}
		if ch.Gracenote != "" {
			attrs = append(attrs, fmt.Sprintf("tvc-guide-stationid=%q", ch.Gracenote))
		}
		if chno > 0 {
			attrs = append(attrs, fmt.Sprintf("tvg-chno=%q", fmt.Sprint(chno)))
			chno++
		} else if ch.Number > 0 {
			attrs = append(attrs, fmt.Sprintf("tvg-chno=%q", fmt.Sprint(ch.Number)))
		}
		attrs = append(attrs,
			fmt.Sprintf("tvg-name=%q", sanitizeName(ch.Name)),
			`radio="false"`,
		)

		if _, err := fmt.Fprintf(w, "#EXTINF:-1 %s,%s\n%s/play/%s.m3u8\n",
			strings.Join(attrs, " "), sanitizeName(ch.Name), base, ch.Slug); err != nil {
			return err
		}
	}
	return nil
}

// sanitizeName strips characters that break EXTINF parsing in common clients.
func sanitizeName(name string) string {
	name = strings.ReplaceAll(name, `"`, "'")
	return strings.ReplaceAll(name, ",", " ")
}
