package tui

import "github.com/scrypster/voxmemo/internal/pipeline"

// SnapshotMsg carries the newest controller snapshot.
type SnapshotMsg struct {
	Snapshot pipeline.Snapshot
}

// FeedClosedMsg is sent when the controller stops publishing.
type FeedClosedMsg struct{}

// DeleteResultMsg reports the outcome of deleting a memory.
type DeleteResultMsg struct {
	ID  string
	Err error
}

// ClearNoticeMsg clears a transient notice.
type ClearNoticeMsg struct{}
