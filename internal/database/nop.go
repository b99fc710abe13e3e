package database

import (
	"zbackup/internal/model"
	"zbackup/internal/zb"
)

// NopHistory discards every record. Used when history is disabled.
type NopHistory struct{}

func (NopHistory) StartRun(*model.Run) error                       { return nil }
func (NopHistory) FinishRun(*model.Run) error                      { return nil }
func (NopHistory) RecordEviction(*model.Eviction) error            { return nil }
func (NopHistory) ListRuns(int) ([]*model.Run, error)              { return nil, nil }
func (NopHistory) ListEvictions(string) ([]*model.Eviction, error) { return nil, nil }
func (NopHistory) Close() error                                    { return nil }

var _ zb.History = NopHistory{}
