package wire

// Group identifies a management command group.
type Group uint16

// Well-known management groups.
const (
	GroupOS       Group = 0
	GroupImage    Group = 1
	GroupStat     Group = 2
	GroupSettings Group = 3
	GroupLog      Group = 4
	GroupCrash    Group = 5
	GroupSplit    Group = 6
	GroupRun      Group = 7
	GroupFS       Group = 8
	GroupShell    Group = 9
	GroupEnum     Group = 10
	GroupZephyr   Group = 63

	// GroupPerUser is the first group ID available to applications.
	GroupPerUser Group = 64
)

// String returns the group name.
func (g Group) String() string {
	switch g {
	case GroupOS:
		return "OS"
	case GroupImage:
		return "IMAGE"
	case GroupStat:
		return "STAT"
	case GroupSettings:
		return "SETTINGS"
	case GroupLog:
		return "LOG"
	case GroupCrash:
		return "CRASH"
	case GroupSplit:
		return "SPLIT"
	case GroupRun:
		return "RUN"
	case GroupFS:
		return "FS"
	case GroupShell:
		return "SHELL"
	case GroupEnum:
		return "ENUM"
	case GroupZephyr:
		return "ZEPHYR"
	default:
		if g >= GroupPerUser {
			return "PER_USER"
		}
		return "UNKNOWN"
	}
}
