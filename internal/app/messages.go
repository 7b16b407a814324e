package app

import (
	"fmt"
	"time"
)

// ProgressMsg updates the overall progress bar.
type ProgressMsg struct {
	Tag      string
	Current  int64
	Total    int64
	Activity string
}

// FileProgressMsg updates the row for a single document.
type FileProgressMsg struct {
	FileID      string
	FileName    string
	Status      string // Queued, Downloading, Complete, Error, Skipped
	ElapsedTime time.Duration
	ErrMsg      string
}

// TaskFinishedMsg signals the completion of a background task.
type TaskFinishedMsg struct {
	Tag       string
	Err       error
	StartTime time.Time
	EndTime   time.Time
	Message   string
}

func NewProgress(tag string, current, total int64, activity string) ProgressMsg {
	return ProgressMsg{Tag: tag, Current: current, Total: total, Activity: activity}
}

func NewFileProgress(fileID, fileName, status string, elapsed time.Duration, errMsg string) FileProgressMsg {
	return FileProgressMsg{
		FileID:      fileID,
		FileName:    fileName,
		Status:      status,
		ElapsedTime: elapsed,
		ErrMsg:      errMsg,
	}
}

func NewTaskFinished(tag string, start time.Time, err error, msg string) TaskFinishedMsg {
	return TaskFinishedMsg{
		Tag:       tag,
		StartTime: start,
		EndTime:   time.Now(),
		Err:       err,
		Message:   msg,
	}
}

func (p ProgressMsg) String() string {
	return fmt.Sprintf("Progress %s: %d/%d", p.Tag, p.Current, p.Total)
}
func (fp FileProgressMsg) String() string {
	return fmt.Sprintf("FileProgress %s: %s", fp.FileID, fp.Status)
}
func (tf TaskFinishedMsg) String() string { return fmt.Sprintf("TaskFinished %s", tf.Tag) }
