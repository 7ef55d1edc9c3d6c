package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/kilianp07/bloodlift/core/model"
)

// Format selects the queue output encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
)

// Write encodes the mission queue in the requested format.
func Write(w io.Writer, f Format, queue []model.MissionCandidate) error {
	switch f {
	case FormatJSON:
		return WriteJSON(w, queue)
	case FormatCSV:
		return WriteCSV(w, queue)
	default:
		return fmt.Errorf("unknown export format %q", f)
	}
}

// WriteJSON writes the mission queue to w in JSON format.
func WriteJSON(w io.Writer, queue []model.MissionCandidate) error {
	if queue == nil {
		queue = []model.MissionCandidate{}
	}
	enc := json.NewEncoder(w)
	return enc.Encode(queue)
}

// WriteCSV writes one row per queued mission, best candidate first.
func WriteCSV(w io.Writer, queue []model.MissionCandidate) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"request_id", "blood_type", "units", "urgency", "source", "destination", "total_km", "priority_score"}); err != nil {
		return err
	}
	for _, c := range queue {
		rec := []string{
			strconv.FormatInt(c.Request.ID, 10),
			c.Request.BloodType,
			strconv.Itoa(c.Request.Units),
			string(c.Request.Urgency),
			c.Source.Name,
			c.Destination.Name,
			strconv.FormatFloat(c.TotalDistance, 'f', 3, 64),
			strconv.FormatFloat(c.PriorityScore, 'f', 3, 64),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
