package redun

import (
	"database/sql"
	"time"
)

// Data set layouts.
const (
	// ModePair stores two independent inputs as the primary and secondary copies.
	ModePair = "pair"
	// ModeSplit stores the two halves of one input as the primary and secondary copies.
	ModeSplit = "split"
	// ModeTree stores a directory as two archives, each holding part of its
	// files; read back to back they form one archive of the whole tree.
	ModeTree = "tree"
)

// DataSet is a tracked group of three copies.
type DataSet struct {
	ID             string
	Name           string
	Mode           string
	PrimaryPath    string
	SecondaryPath  string
	RedundancyPath string // empty until the first build
	Size           int64  // bytes of original input
	Blocks         int64  // block pairs in the manifest
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Paths returns the copy locations of the data set.
func (d *DataSet) Paths() Paths {
	return Paths{Primary: d.PrimaryPath, Secondary: d.SecondaryPath, Redundancy: d.RedundancyPath}
}

// Operation is one recorded CLI operation.
type Operation struct {
	ID         int64
	Operation  string
	Parameters string
	Status     string
	StartedAt  time.Time
	FinishedAt sql.NullTime
}

// CheckResult is one recorded integrity check of a data set.
type CheckResult struct {
	ID          int64
	DataSetID   string
	CheckedAt   time.Time
	Healthy     bool
	Recoverable bool
	Damaged     string // comma-separated roles
}

// Catalog records data sets, operations, and check results.
type Catalog interface {
	// CreateDataSet inserts a new data set. Names are unique.
	CreateDataSet(ds *DataSet) error

	// UpdateDataSet stores the mutable fields of ds.
	UpdateDataSet(ds *DataSet) error

	// FindDataSet returns the data set with the given name, or nil.
	FindDataSet(name string) (*DataSet, error)

	// ListDataSets returns all data sets ordered by name.
	ListDataSets() ([]*DataSet, error)

	// CreateOperation starts a new operation record.
	CreateOperation(operation, parameters string) (*Operation, error)

	// FinishOperation marks an operation finished with status.
	FinishOperation(id int64, status string) error

	// ListOperations returns the most recent operations, newest first.
	ListOperations(limit int) ([]*Operation, error)

	// MaxOperationID returns the highest operation id, or 0.
	MaxOperationID() (int64, error)

	// RecordCheck stores the result of an integrity check.
	RecordCheck(c *CheckResult) error

	// ListChecks returns the most recent checks of a data set, newest first.
	ListChecks(dataSetID string, limit int) ([]*CheckResult, error)

	Close() error
}
