package models

import "time"

type Group struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type Image struct {
	ID        int64     `json:"id"`
	GroupID   int64     `json:"group_id"`
	Path      string    `json:"path"`
	ThumbPath string    `json:"thumb_path,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type DetectionBatch struct {
	ID        int64     `json:"id"`
	CreatedAt time.Time `json:"created_at"`
}

type Detection struct {
	ID            int64      `json:"id"`
	BatchID       int64      `json:"batch_id"`
	ImageID       int64      `json:"image_id"`
	Label         string     `json:"label"`
	BBox          [4]float64 `json:"bbox"`
	PredConf      float64    `json:"pred_conf,omitempty"`
	DetectionConf float64    `json:"detection_conf,omitempty"`
	Source        string     `json:"source,omitempty"`
}

type ReidRun struct {
	ID        int64     `json:"id"`
	Species   string    `json:"species"`
	CreatedAt time.Time `json:"created_at"`
}

type ReidIndividual struct {
	ID    int64  `json:"id"`
	RunID int64  `json:"run_id"`
	Name  string `json:"name"`
}

type ReidMember struct {
	ID           int64 `json:"id"`
	IndividualID int64 `json:"individual_id"`
	DetectionID  int64 `json:"detection_id"`
}
