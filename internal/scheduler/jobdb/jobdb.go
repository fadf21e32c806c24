package jobdb

import (
	"github.com/hashicorp/go-memdb"
	"github.com/pkg/errors"

	"github.com/armadaproject/clustersim/internal/common/armadaerrors"
)

const (
	jobsTable = "jobs"
	idIndex   = "id"   // index for looking up jobs by id
	typeIndex = "type" // index for looking up all jobs of a given job type
)

// JobDb stores every job the scheduler has ever accepted, indexed by id and by job type.
// It is implemented on top of https://github.com/hashicorp/go-memdb. Only immutable job attributes are indexed;
// statuses change in place and must be read from the jobs themselves.
type JobDb struct {
	db *memdb.MemDB
}

// jobRecord is what gets stored in memdb. memdb indexes exported struct fields, which Job does not have.
type jobRecord struct {
	Id   string
	Type string
	Job  *Job
}

func NewJobDb() (*JobDb, error) {
	db, err := memdb.NewMemDB(jobDbSchema())
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return &JobDb{db: db}, nil
}

// Insert adds job. Inserting a second job with the same id fails with ErrAlreadyExists.
func (jobDb *JobDb) Insert(job *Job) error {
	txn := jobDb.db.Txn(true)
	defer txn.Abort()
	existing, err := txn.First(jobsTable, idIndex, job.id)
	if err != nil {
		return errors.WithStack(err)
	}
	if existing != nil {
		return errors.WithStack(&armadaerrors.ErrAlreadyExists{Type: "job", Value: job.id})
	}
	if err := txn.Insert(jobsTable, &jobRecord{Id: job.id, Type: job.jobType, Job: job}); err != nil {
		return errors.WithStack(err)
	}
	txn.Commit()
	return nil
}

// Delete removes the job with the given id. Deleting a job that does not exist fails with ErrNotFound.
func (jobDb *JobDb) Delete(id string) error {
	txn := jobDb.db.Txn(true)
	defer txn.Abort()
	existing, err := txn.First(jobsTable, idIndex, id)
	if err != nil {
		return errors.WithStack(err)
	}
	if existing == nil {
		return errors.WithStack(&armadaerrors.ErrNotFound{Type: "job", Value: id})
	}
	if err := txn.Delete(jobsTable, existing); err != nil {
		return errors.WithStack(err)
	}
	txn.Commit()
	return nil
}

// GetById returns the job with the given id or nil if no such job exists.
func (jobDb *JobDb) GetById(id string) *Job {
	txn := jobDb.db.Txn(false)
	obj, err := txn.First(jobsTable, idIndex, id)
	if err != nil || obj == nil {
		return nil
	}
	return obj.(*jobRecord).Job
}

// GetAll returns all jobs ordered by id.
func (jobDb *JobDb) GetAll() []*Job {
	return jobDb.collect(idIndex)
}

// GetByType returns all jobs of the given job type ordered by id.
func (jobDb *JobDb) GetByType(jobType string) []*Job {
	return jobDb.collect(typeIndex, jobType)
}

func (jobDb *JobDb) Len() int {
	return len(jobDb.GetAll())
}

func (jobDb *JobDb) collect(index string, args ...interface{}) []*Job {
	txn := jobDb.db.Txn(false)
	it, err := txn.Get(jobsTable, index, args...)
	if err != nil {
		return nil
	}
	rv := make([]*Job, 0)
	for obj := it.Next(); obj != nil; obj = it.Next() {
		rv = append(rv, obj.(*jobRecord).Job)
	}
	return rv
}

// jobDbSchema creates the database schema: a single "jobs" table indexed by id and job type.
func jobDbSchema() *memdb.DBSchema {
	indexes := make(map[string]*memdb.IndexSchema)
	indexes[idIndex] = &memdb.IndexSchema{
		Name:    idIndex, // lookup by primary key
		Unique:  true,
		Indexer: &memdb.StringFieldIndex{Field: "Id"},
	}
	indexes[typeIndex] = &memdb.IndexSchema{
		Name:         typeIndex,
		Unique:       false,
		AllowMissing: true, // jobs without a type are left out of this index
		// Entries of non-unique indexes are suffixed with the primary key, so jobs of one type come out ordered by id.
		Indexer: &memdb.StringFieldIndex{Field: "Type"},
	}
	return &memdb.DBSchema{
		Tables: map[string]*memdb.TableSchema{
			jobsTable: {
				Name:    jobsTable,
				Indexes: indexes,
			},
		},
	}
}
