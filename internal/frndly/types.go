package frndly

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// The upstream API is duck-typed: the same field arrives as a string in one
// payload and a number or list in the next, and half the metadata keys have
// a sibling spelling. The Flex* types absorb that at decode time so the
// rest of the code sees stable Go types. Unknown fields are simply ignored.

// FlexString decodes a string, number or bool into its string form.
type FlexString string

func (f *FlexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*f = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	// Number, bool: keep the literal text.
	*f = FlexString(string(b))
	return nil
}

func (f FlexString) String() string { return string(f) }

// FlexInt decodes a number or numeric string. Non-numeric input decodes to 0.
type FlexInt int

func (f *FlexInt) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*f = 0
		return nil
	}
	s := string(b)
	if b[0] == '"' {
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
	}
	s = strings.TrimSpace(s)
	n, err := strconv.Atoi(s)
	if err != nil {
		// Floats show up occasionally ("5.0"); truncate rather than fail.
		if fl, ferr := strconv.ParseFloat(s, 64); ferr == nil {
			*f = FlexInt(int(fl))
			return nil
		}
		*f = 0
		return nil
	}
	*f = FlexInt(n)
	return nil
}

func (f FlexInt) Int() int { return int(f) }

// FlexBool decodes a bool, "true"/"false"-ish string, or 0/1 number.
type FlexBool bool

func (f *FlexBool) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	s := strings.Trim(string(b), `"`)
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1", "yes":
		*f = true
	default:
		*f = false
	}
	return nil
}

func (f FlexBool) True() bool { return bool(f) }

// FlexStrings decodes a JSON array of strings or a single comma-separated string.
type FlexStrings []string

func (f *FlexStrings) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*f = nil
		return nil
	}
	if b[0] == '[' {
		var raw []FlexString
		if err := json.Unmarshal(b, &raw); err != nil {
			return err
		}
		out := make([]string, 0, len(raw))
		for _, v := range raw {
			if s := strings.TrimSpace(v.String()); s != "" {
				out = append(out, s)
			}
		}
		*f = out
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	*f = out
	return nil
}

// Marker is a timestamped guide marker; Value is epoch milliseconds.
type Marker struct {
	Value FlexInt64 `json:"value"`
}

// FlexInt64 is FlexInt for epoch-millisecond fields.
type FlexInt64 int64

func (f *FlexInt64) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*f = 0
		return nil
	}
	s := string(b)
	if b[0] == '"' {
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
	}
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		if fl, ferr := strconv.ParseFloat(s, 64); ferr == nil {
			*f = FlexInt64(int64(fl))
			return nil
		}
		*f = 0
		return nil
	}
	*f = FlexInt64(n)
	return nil
}

func (f FlexInt64) Int64() int64 { return int64(f) }

// RawChannel is one lineup row as the upstream sends it.
type RawChannel struct {
	ID      FlexString `json:"id"`
	Display struct {
		Title    string `json:"title"`
		ImageURL string `json:"imageUrl"`
	} `json:"display"`
	Metadata struct {
		ChannelNumber   FlexInt    `json:"channelNumber"`
		IsChannelBanner FlexBool   `json:"isChannelBanner"`
		Category        FlexString `json:"category"`
		Group           FlexString `json:"group"`
		IsHD            FlexBool   `json:"isHD"`
	} `json:"metadata"`
}

// RawProgram is one guide entry as the upstream sends it. Sibling spellings
// (season/seasonNumber, genre/genres, ...) are all captured; the catalog
// normalizer picks whichever is populated.
type RawProgram struct {
	ID      FlexString `json:"id"`
	Display struct {
		Title       string `json:"title"`
		Subtitle    string `json:"subtitle"`
		Description string `json:"description"`
		ImageURL    string `json:"imageUrl"`
		Markers     struct {
			StartTime Marker `json:"startTime"`
			EndTime   Marker `json:"endTime"`
		} `json:"markers"`
	} `json:"display"`
	Metadata struct {
		SeasonNumber  FlexInt     `json:"seasonNumber"`
		Season        FlexInt     `json:"season"`
		EpisodeNumber FlexInt     `json:"episodeNumber"`
		Episode       FlexInt     `json:"episode"`
		EpisodeTitle  string      `json:"episodeTitle"`
		ContentType   FlexString  `json:"contentType"`
		Type          FlexString  `json:"type"`
		IsLive        FlexBool    `json:"isLive"`
		Live          FlexBool    `json:"live"`
		IsNew         FlexBool    `json:"isNew"`
		New           FlexBool    `json:"new"`
		IsPremiere    FlexBool    `json:"isPremiere"`
		IsFinale      FlexBool    `json:"isFinale"`
		IsRepeat      FlexBool    `json:"isRepeat"`
		Rating        FlexString  `json:"rating"`
		TVRating      FlexString  `json:"tvRating"`
		ContentRating FlexString  `json:"contentRating"`
		Year          FlexInt     `json:"year"`
		ReleaseYear   FlexInt     `json:"releaseYear"`
		OriginalAir   string      `json:"originalAirDate"`
		Genres        FlexStrings `json:"genres"`
		Genre         FlexStrings `json:"genre"`
		Cast          FlexStrings `json:"cast"`
		Actors        FlexStrings `json:"actors"`
		Directors     FlexStrings `json:"directors"`
		Director      FlexStrings `json:"director"`
		Thumbnail     string      `json:"thumbnail"`
		Image         string      `json:"image"`
		PosterURL     string      `json:"posterUrl"`
		BackgroundURL string      `json:"backgroundUrl"`
		SeriesID      FlexString  `json:"seriesId"`
	} `json:"metadata"`
	Target struct {
		Path string `json:"path"`
	} `json:"target"`
}

// LiveMapEntry is one row of the community channel map, keyed upstream by
// the numeric channel id.
type LiveMapEntry struct {
	ChNo      FlexInt    `json:"chno"`
	Slug      string     `json:"slug"`
	Gracenote FlexString `json:"gracenote"`
	Name      string     `json:"name"`
	Logo      string     `json:"logo"`
}
