package columns

import "strings"

// ColumnID identifies one output column. The rendering library that turns
// cell values into a table (or JSON, or raw lines) lives outside this
// module; the engine only resolves (process, file, column) triples to
// strings on demand.
type ColumnID int

const (
	ColCommand ColumnID = iota
	ColPID
	ColTID
	ColUser
	ColUID
	ColKThread
	ColAssoc
	ColFD
	ColMode
	ColXMode
	ColType
	ColSTType
	ColSource
	ColPartition
	ColDev
	ColRDev
	ColInode
	ColNLink
	ColDeleted
	ColSize
	ColFUID
	ColMntID
	ColPos
	ColFlags
	ColMapLen
	ColName
	ColKName
	ColNSName
	ColNSType
	ColEndpoints
	ColEventpollTFDs
	NCols // must stay last
)

var names = [NCols]string{
	ColCommand:       "COMMAND",
	ColPID:           "PID",
	ColTID:           "TID",
	ColUser:          "USER",
	ColUID:           "UID",
	ColKThread:       "KTHREAD",
	ColAssoc:         "ASSOC",
	ColFD:            "FD",
	ColMode:          "MODE",
	ColXMode:         "XMODE",
	ColType:          "TYPE",
	ColSTType:        "STTYPE",
	ColSource:        "SOURCE",
	ColPartition:     "PARTITION",
	ColDev:           "DEV",
	ColRDev:          "RDEV",
	ColInode:         "INODE",
	ColNLink:         "NLINK",
	ColDeleted:       "DELETED",
	ColSize:          "SIZE",
	ColFUID:          "FUID",
	ColMntID:         "MNTID",
	ColPos:           "POS",
	ColFlags:         "FLAGS",
	ColMapLen:        "MAPLEN",
	ColName:          "NAME",
	ColKName:         "KNAME",
	ColNSName:        "NS.NAME",
	ColNSType:        "NS.TYPE",
	ColEndpoints:     "ENDPOINTS",
	ColEventpollTFDs: "EVENTPOLL.TFDS",
}

func (c ColumnID) String() string {
	if c < 0 || c >= NCols {
		return "UNKNOWN"
	}
	return names[c]
}

// DefaultColumns is the column set emitted when the caller does not pick
// its own.
var DefaultColumns = []ColumnID{
	ColCommand, ColPID, ColUser, ColAssoc, ColXMode,
	ColType, ColSource, ColMntID, ColInode, ColName,
}

// DefaultThreadColumns adds TID for thread-level listings.
var DefaultThreadColumns = []ColumnID{
	ColCommand, ColPID, ColTID, ColUser, ColAssoc, ColXMode,
	ColType, ColSource, ColMntID, ColInode, ColName,
}

// ByName resolves a column name case-insensitively. Returns false for an
// unknown name.
func ByName(name string) (ColumnID, bool) {
	for i := ColumnID(0); i < NCols; i++ {
		if strings.EqualFold(names[i], name) {
			return i, true
		}
	}
	return 0, false
}

// Getter resolves one column of the current row. The second return is
// false when no class in the chain produced a value.
type Getter func(id ColumnID) (string, bool)

// Sink receives fully resolved rows. Formatting, truncation, sorting and
// serialization are the sink's problem, not the engine's.
type Sink interface {
	// BeginRow opens a row; the engine then calls get for each column it
	// was asked to emit, in order.
	Row(cols []ColumnID, get Getter) error
	Flush() error
}

// RowFilter decides whether a row reaches the sink. The expression
// language behind it is an external collaborator; the engine only feeds
// it the same per-column callback the sink gets.
type RowFilter interface {
	Matches(get Getter) bool
}
