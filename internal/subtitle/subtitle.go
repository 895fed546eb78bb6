package subtitle

import (
	"encoding/json"
	"io"
	"time"

	"github.com/mgpai22/lipistudio/internal/timecode"
)

// one time-stamped piece of transcript text
type Segment struct {
	ID        string
	StartTime time.Duration
	EndTime   time.Duration
	Text      string
}

// wire form: times are float seconds
type segmentJSON struct {
	ID        string  `json:"id"`
	StartTime float64 `json:"startTime"`
	EndTime   float64 `json:"endTime"`
	Text      string  `json:"text"`
}

func (s Segment) MarshalJSON() ([]byte, error) {
	return json.Marshal(segmentJSON{
		ID:        s.ID,
		StartTime: timecode.Seconds(s.StartTime),
		EndTime:   timecode.Seconds(s.EndTime),
		Text:      s.Text,
	})
}

func (s *Segment) UnmarshalJSON(data []byte) error {
	var raw segmentJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*s = Segment{
		ID:        raw.ID,
		StartTime: timecode.FromSeconds(raw.StartTime),
		EndTime:   timecode.FromSeconds(raw.EndTime),
		Text:      raw.Text,
	}
	return nil
}

// represents supported subtitle formats
type Format string

const (
	FormatSRT Format = "srt"
	FormatVTT Format = "vtt"
	FormatASS Format = "ass"
)

// serializes segments, in list order, to a subtitle format
type Encoder interface {
	Encode(w io.Writer, segments []Segment) error
}

// reads a subtitle file back into segments
type Decoder interface {
	Decode(r io.Reader) ([]Segment, error)
}
