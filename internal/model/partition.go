package model

import "time"

// Partition месячная секция таблицы appointments или system_events
type Partition struct {
	ParentTable string    `json:"parent_table"`
	Name        string    `json:"name"`
	RangeStart  time.Time `json:"range_start"` // включительно
	RangeEnd    time.Time `json:"range_end"`   // не включительно
	RowCount    int64     `json:"row_count"`
	SizeBytes   int64     `json:"size_bytes"`
	IsDefault   bool      `json:"is_default"`
}

// EnsureReport результат создания будущих секций
type EnsureReport struct {
	Created         []string `json:"created"`
	AlreadyExisting []string `json:"already_existing"`
}

// RetireReport результат удаления старых секций
type RetireReport struct {
	Cutoff  time.Time `json:"cutoff"`
	Retired []string  `json:"retired"`
	Kept    []string  `json:"kept"`
	DryRun  bool      `json:"dry_run"`
}
