package achievement

// Achievement is one unlockable tier, crossed when the user's cumulative
// score reaches Threshold. The table is ordered by ascending threshold.
type Achievement struct {
	Code      string
	Threshold int64
	Title     string
	Avatar    string
}

var table = []Achievement{
	{Code: "A1", Threshold: 1000, Title: "Palier 1000", Avatar: "assets/achievements/ach1.png"},
	{Code: "A2", Threshold: 2000, Title: "Palier 2000", Avatar: "assets/achievements/ach2.png"},
	{Code: "A3", Threshold: 3000, Title: "Palier 3000", Avatar: "assets/achievements/ach3.png"},
}

// All returns the full threshold table.
func All() []Achievement {
	out := make([]Achievement, len(table))
	copy(out, table)
	return out
}

// Unlocked returns the codes whose threshold is reached by total. The result
// is a pure function of total.
func Unlocked(total int64) []string {
	var codes []string
	for _, a := range table {
		if total >= a.Threshold {
			codes = append(codes, a.Code)
		}
	}
	return codes
}

// Merge unions the already-held codes with the target set for total.
// It returns the union and the codes the union added over current.
// Achievements only grow: current is never shrunk.
func Merge(current []string, total int64) (all, newly []string) {
	seen := make(map[string]struct{}, len(current))
	all = make([]string, 0, len(current))
	for _, c := range current {
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		all = append(all, c)
	}

	for _, c := range Unlocked(total) {
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		all = append(all, c)
		newly = append(newly, c)
	}

	return all, newly
}

// AvatarsFor maps unlocked codes to their avatar asset paths.
func AvatarsFor(codes []string) []string {
	var avatars []string
	for _, a := range table {
		for _, c := range codes {
			if a.Code == c {
				avatars = append(avatars, a.Avatar)
				break
			}
		}
	}
	return avatars
}
