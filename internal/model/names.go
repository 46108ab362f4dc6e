package model

import (
	"fmt"
	"time"
)

// CanonicalSnapshotName is "<source>.<iso8601 ctime with offset>.<ctransid>",
// the name every kept snapshot must carry on disk.
func CanonicalSnapshotName(source string, info SnapshotInfo, loc *time.Location) string {
	t := time.Unix(info.Ctime, 0).In(loc).Format("2006-01-02T15:04:05Z07:00")
	return fmt.Sprintf("%s.%s.%d", source, t, info.Ctransid)
}

// ProposedSnapshotName is the transient name a snapshot carries between
// creation and the rename action that gives it its canonical name.
func ProposedSnapshotName(source string, pid int) string {
	return fmt.Sprintf("%s.NEW.%d", source, pid)
}
