package journal

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tphakala/lightsheet-go/internal/microscope"
)

// Playback is one synchronized playback of a microscope queue.
type Playback struct {
	ID         string    `gorm:"primaryKey;type:varchar(36)"`
	Microscope string    `gorm:"type:varchar(100);not null;index:idx_playback_microscope_started,priority:1"`
	QueueID    string    `gorm:"type:varchar(36);not null;index"`
	StartedAt  time.Time `gorm:"not null;index:idx_playback_microscope_started,priority:2"`
	DurationMs int64     `gorm:"not null"`
	Devices    string    `gorm:"type:text"` // comma separated device names
	TimePoints int       `gorm:"not null"`
	Success    bool      `gorm:"not null;index"`
	Stacks     []Stack   `gorm:"foreignKey:PlaybackID;constraint:OnDelete:CASCADE"`
	CreatedAt  time.Time `gorm:"autoCreateTime"`
}

// TableName returns the table name for GORM.
func (Playback) TableName() string {
	return "playbacks"
}

// Stack is a stack acquired during a playback.
type Stack struct {
	ID             uint   `gorm:"primaryKey"`
	PlaybackID     string `gorm:"type:varchar(36);not null;index"`
	Camera         string `gorm:"type:varchar(100);not null"`
	StackIndex     int64  `gorm:"not null"`
	TimestampNanos int64  `gorm:"not null"`
	Channel        int    `gorm:"not null"`
	Width          int64  `gorm:"not null"`
	Height         int64  `gorm:"not null"`
	Depth          int64  `gorm:"not null"`
}

// TableName returns the table name for GORM.
func (Stack) TableName() string {
	return "stacks"
}

func playbackFrom(r microscope.PlaybackRecord) Playback {
	return Playback{
		ID:         r.ID.String(),
		Microscope: r.Microscope,
		QueueID:    r.QueueID.String(),
		StartedAt:  r.StartedAt.UTC(),
		DurationMs: r.Duration.Milliseconds(),
		Devices:    strings.Join(r.Devices, ","),
		TimePoints: r.TimePoints,
		Success:    r.Success,
	}
}

func stackFrom(r microscope.StackRecord) Stack {
	return Stack{
		PlaybackID:     r.PlaybackID.String(),
		Camera:         r.Camera,
		StackIndex:     r.Index,
		TimestampNanos: r.TimestampNanos,
		Channel:        r.Channel,
		Width:          r.Width,
		Height:         r.Height,
		Depth:          r.Depth,
	}
}

// Record converts p back to the microscope representation.
func (p Playback) Record() microscope.PlaybackRecord {
	var devices []string
	if p.Devices != "" {
		devices = strings.Split(p.Devices, ",")
	}
	id, _ := uuid.Parse(p.ID)
	queueID, _ := uuid.Parse(p.QueueID)
	return microscope.PlaybackRecord{
		ID:         id,
		Microscope: p.Microscope,
		QueueID:    queueID,
		StartedAt:  p.StartedAt,
		Duration:   time.Duration(p.DurationMs) * time.Millisecond,
		Devices:    devices,
		TimePoints: p.TimePoints,
		Success:    p.Success,
	}
}

// Info converts s back to the microscope representation.
func (s Stack) Info() microscope.StackInfo {
	return microscope.StackInfo{
		Camera:         s.Camera,
		Index:          s.StackIndex,
		TimestampNanos: s.TimestampNanos,
		Channel:        s.Channel,
		Width:          s.Width,
		Height:         s.Height,
		Depth:          s.Depth,
	}
}
