package clustering

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Row is one student row returned by the clustering service, normalized at the boundary.
type Row struct {
	IDNumber      string  `json:"id_number"`
	Name          string  `json:"name"`
	TrackLevel    string  `json:"track_level"`
	Section       string  `json:"section"`
	TotalAbsences float64 `json:"total_absences"`
	TotalSessions float64 `json:"total_sessions"`
	Status        string  `json:"status"`
	Cluster       string  `json:"cluster"`
	Insight       string  `json:"insight"`

	// Raw holds every field as the service sent it.
	Raw map[string]interface{} `json:"raw,omitempty"`
}

// field aliases, external names first
var (
	idNumberKeys      = []string{"NIM", "nim", "id_number"}
	nameKeys          = []string{"Nama Mahasiswa", "nama_mahasiswa", "NAMA", "nama", "name"}
	trackLevelKeys    = []string{"TINGKAT", "tingkat", "track_level"}
	sectionKeys       = []string{"KELAS", "kelas", "section"}
	totalAbsencesKeys = []string{"TOTAL_A", "total_a", "total_absences"}
	totalSessionsKeys = []string{"JP", "jp", "total_sessions"}
	statusKeys        = []string{"KEDISIPLINAN", "kedisiplinan", "status"}
	clusterKeys       = []string{"Cluster", "cluster", "CLUSTER"}
	insightKeys       = []string{"Insight", "insight", "INSIGHT"}
)

func (r *Row) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	raw := make(map[string]interface{})
	if err := dec.Decode(&raw); err != nil {
		return err
	}

	*r = Row{
		IDNumber:      textOf(lookup(raw, idNumberKeys)),
		Name:          textOf(lookup(raw, nameKeys)),
		TrackLevel:    textOf(lookup(raw, trackLevelKeys)),
		Section:       textOf(lookup(raw, sectionKeys)),
		TotalAbsences: numberOf(lookup(raw, totalAbsencesKeys)),
		TotalSessions: numberOf(lookup(raw, totalSessionsKeys)),
		Status:        textOf(lookup(raw, statusKeys)),
		Cluster:       textOf(lookup(raw, clusterKeys)),
		Insight:       textOf(lookup(raw, insightKeys)),
		Raw:           raw,
	}
	if r.Cluster == "" {
		r.Cluster = "0"
	}
	return nil
}

func lookup(raw map[string]interface{}, keys []string) interface{} {
	for _, k := range keys {
		if v, ok := raw[k]; ok && v != nil {
			return v
		}
	}
	return nil
}

func textOf(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(val)
	case json.Number:
		return val.String()
	case bool:
		return strconv.FormatBool(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	}
	return ""
}

// numberOf coerces v to a finite number; anything else is 0.
func numberOf(v interface{}) float64 {
	var f float64
	var err error
	switch val := v.(type) {
	case json.Number:
		f, err = val.Float64()
	case string:
		f, err = strconv.ParseFloat(strings.TrimSpace(val), 64)
	case float64:
		f = val
	default:
		return 0
	}
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}
