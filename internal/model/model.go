package model

import (
	"time"

	"gorm.io/datatypes"
)

////////////////////////
// DATABASE STRUCTURES //
////////////////////////

// DatabaseModels is a list of all the structs exported here which represent tables in the database schema
var DatabaseModels = []interface{}{
	&Recording{},
	&SessionVideo{},
}

// Recording is one stored recording. The header columns mirror the blob
// header so metadata and usage queries never read Data.
type Recording struct {
	ID            uint           `json:"id" gorm:"primarykey;autoIncrement;"`
	CreatedAt     time.Time      `json:"createdAt" gorm:"index"`
	UpdatedAt     time.Time      `json:"updatedAt"`
	Name          string         `json:"name" gorm:"size:200;uniqueIndex;not null"`
	FormatVersion uint32         `json:"formatVersion"`
	FrameCount    int            `json:"frameCount"`
	Duration      float64        `json:"duration"`
	HasJoints     bool           `json:"hasJoints"`
	SizeBytes     int64          `json:"sizeBytes"`
	Footprint     datatypes.JSON `json:"footprint"`
	Data          []byte         `json:"-" gorm:"not null"`
}

func (*Recording) TableName() string {
	return "recordings"
}

// SessionVideo records where a synchronized session's video was finalized.
type SessionVideo struct {
	ID          uint      `json:"id" gorm:"primarykey;autoIncrement;"`
	CreatedAt   time.Time `json:"createdAt"`
	SessionID   string    `json:"sessionId" gorm:"size:200;uniqueIndex;not null"`
	Path        string    `json:"path" gorm:"size:1024"`
	Error       string    `json:"error" gorm:"size:1024"`
	FinalizedAt time.Time `json:"finalizedAt"`
}

func (*SessionVideo) TableName() string {
	return "session_videos"
}
