package models

import "time"

// Project status values. Legal transitions are defined in status.go.
const (
	ProjectStatusDraft      = "draft"      // editable, no generation running
	ProjectStatusQueued     = "queued"     // a generation run has been accepted
	ProjectStatusGenerating = "generating" // orchestrator or render stage active
	ProjectStatusReady      = "ready"      // rendered output available
	ProjectStatusError      = "error"      // last run failed, errorMessage set
)

type Project struct {
	ID              string      `gorm:"primaryKey;type:varchar(64)" json:"id"`
	Title           string      `json:"title"`
	ScriptText      string      `json:"scriptText"`
	Status          string      `json:"status"`
	Progress        int         `json:"progress"`
	ProgressMessage string      `json:"progressMessage"`
	ErrorMessage    string      `json:"errorMessage"`
	VoiceID         string      `json:"voiceId"`
	ImageStyle      string      `json:"imageStyle"`
	ImageGenerator  string      `json:"imageGenerator"`
	TargetSeconds   int         `json:"targetSeconds"`
	Manifest        *Manifest   `gorm:"type:json" json:"manifest"`
	OutputPath      string      `json:"outputPath"`
	ThumbnailPath   string      `json:"thumbnailPath"`
	Chapters        ChapterList `gorm:"type:json" json:"chapters"`
	DurationSec     float64     `json:"durationSec"`
	// RunSeq increments every time a new generation run starts; stale runs
	// carry an older value and their commits are dropped.
	RunSeq    int       `json:"runSeq"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (Project) TableName() string {
	return "project"
}
