package ui

import "github.com/desertthunder/imgx/internal/tasks"

type progressMsg tasks.ProgressUpdate

type batchDoneMsg struct {
	result *tasks.BatchResult
	err    error
}
