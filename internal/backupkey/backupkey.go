// Package backupkey encodes and decodes the suffix-based object key that
// carries a backup's identity and lineage in its name, so the planner can
// recover a BackupInfo from a bare remote listing without a side index.
package backupkey

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/google/uuid"

	"snapvault/internal/model"
)

// ErrIncomplete is returned when a key is missing one of the parameters a
// valid backup name must carry.
var ErrIncomplete = fmt.Errorf("missing or incomplete parameters for backup name")

var (
	reTime      = regexp.MustCompile(`\.t([0-9TZ:+\-]+)`)
	reCtransid  = regexp.MustCompile(`\.i(\d+)`)
	reUUID      = regexp.MustCompile(`\.u([0-9a-fA-F-]{36})`)
	reSendParent = regexp.MustCompile(`\.s([0-9a-fA-F-]{36})`)
	reFull      = regexp.MustCompile(`\.full`)
	reParent    = regexp.MustCompile(`\.p([0-9a-fA-F-]{36})`)
)

// Encode builds the canonical suffix string for info, rooted at prefix
// (typically "<source>.<basename>"). The .t field is a bare Unix-second
// timestamp: backup names are permutation-decoded, not reconstructed from a
// calendar, so no timezone-sensitive formatting is needed here.
func Encode(prefix string, info model.BackupInfo) string {
	out := fmt.Sprintf("%s.t%d.i%d.u%s", prefix, info.Ctime, info.Ctransid, info.UUID.String())
	if info.Full() {
		out += ".full"
	} else {
		out += ".s" + info.SendParentUUID.String()
	}
	if info.ParentUUID != model.ZeroUUID {
		out += ".p" + info.ParentUUID.String()
	}
	return out
}

// Decode extracts a BackupInfo from an object key by regex, independent of
// suffix order — the suffixes may appear in any order in the stored name.
func Decode(key string) (model.BackupInfo, error) {
	var info model.BackupInfo

	tm := reTime.FindStringSubmatch(key)
	im := reCtransid.FindStringSubmatch(key)
	um := reUUID.FindStringSubmatch(key)
	if tm == nil || im == nil || um == nil {
		return info, ErrIncomplete
	}

	ctransid, err := strconv.ParseInt(im[1], 10, 64)
	if err != nil {
		return info, ErrIncomplete
	}
	u, err := uuid.Parse(um[1])
	if err != nil {
		return info, ErrIncomplete
	}

	ctime, err := parseFlexibleTime(tm[1])
	if err != nil {
		return info, ErrIncomplete
	}

	info.Ctime = ctime
	info.Ctransid = ctransid
	info.UUID = u

	if reFull.MatchString(key) {
		info.SendParentUUID = model.ZeroUUID
	} else if sm := reSendParent.FindStringSubmatch(key); sm != nil {
		sp, err := uuid.Parse(sm[1])
		if err != nil {
			return info, ErrIncomplete
		}
		info.SendParentUUID = sp
	} else {
		return info, ErrIncomplete
	}

	if pm := reParent.FindStringSubmatch(key); pm != nil {
		p, err := uuid.Parse(pm[1])
		if err != nil {
			return info, ErrIncomplete
		}
		info.ParentUUID = p
	}

	return info, nil
}

func parseFlexibleTime(s string) (int64, error) {
	// The .t suffix is a bare Unix-second integer (see Encode); tolerate
	// nothing else since backupkey never produces anything else.
	return strconv.ParseInt(s, 10, 64)
}
