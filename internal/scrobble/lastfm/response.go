package lastfm

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// flexInt decodes Last.fm counters, which arrive either as numbers or as strings.
type flexInt int

func (f *flexInt) UnmarshalJSON(b []byte) error {
	b = bytes.Trim(b, `"`)
	if len(b) == 0 || string(b) == "null" {
		*f = 0
		return nil
	}
	n, err := strconv.Atoi(string(b))
	if err != nil {
		return err
	}
	*f = flexInt(n)
	return nil
}

type scrobbleResponse struct {
	Scrobbles struct {
		Attr struct {
			Accepted flexInt `json:"accepted"`
			Ignored  flexInt `json:"ignored"`
		} `json:"@attr"`
		Scrobble json.RawMessage `json:"scrobble"`
	} `json:"scrobbles"`
}

type ignoredReason struct {
	Code flexInt `json:"code"`
	Text string  `json:"#text"`
}

// ignoredMessage digs out the reason Last.fm gives for an ignored scrobble.
// The "scrobble" field is an object for single submissions and an array for batches.
func (r scrobbleResponse) ignoredMessage() string {
	var single struct {
		IgnoredMessage ignoredReason `json:"ignoredMessage"`
	}
	if err := json.Unmarshal(r.Scrobbles.Scrobble, &single); err == nil && single.IgnoredMessage.Code != 0 {
		return single.IgnoredMessage.Text
	}
	var batch []struct {
		IgnoredMessage ignoredReason `json:"ignoredMessage"`
	}
	if err := json.Unmarshal(r.Scrobbles.Scrobble, &batch); err == nil {
		for _, s := range batch {
			if s.IgnoredMessage.Code != 0 {
				return s.IgnoredMessage.Text
			}
		}
	}
	return ""
}
