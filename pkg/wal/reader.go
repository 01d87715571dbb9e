package wal

import (
	"storemy/pkg/dberrors"
	"storemy/pkg/storage/disk"
)

// ReadAllRecords scans the entire log from the start, decoding every
// complete record. It stops cleanly at the first record it cannot fully
// deserialize, the same truncated-tail tolerance recovery.Manager.Redo
// applies, since both read the same on-disk format. Grounded on the
// pattern of a LogReader.ReadAll over a log file, adapted from a path-based
// file reader to this engine's disk.Manager.ReadLog seam.
func ReadAllRecords(d disk.Manager, bufferSize int) ([]*Record, error) {
	var records []*Record

	buf := make([]byte, bufferSize)
	readOffset := int64(0)

	for {
		n, err := d.ReadLog(buf, readOffset)
		if err != nil {
			return nil, dberrors.Wrap(err, "ReadAllRecords", "wal")
		}
		if n == 0 {
			break
		}

		consumed := 0
		for {
			rec, err := Decode(buf[consumed:n])
			if err != nil {
				break
			}
			records = append(records, rec)
			consumed += int(rec.Size)
			readOffset += int64(rec.Size)
		}
		if consumed == 0 {
			break
		}
	}

	return records, nil
}

// String names a log record's type, for display and logging.
func (t RecordType) String() string {
	switch t {
	case Insert:
		return "INSERT"
	case Update:
		return "UPDATE"
	case ApplyDelete:
		return "APPLY_DELETE"
	case MarkDelete:
		return "MARK_DELETE"
	case RollbackDelete:
		return "ROLLBACK_DELETE"
	case NewPage:
		return "NEW_PAGE"
	case Begin:
		return "BEGIN"
	case Commit:
		return "COMMIT"
	case Abort:
		return "ABORT"
	default:
		return "UNKNOWN"
	}
}
