package core

import "sort"

// rosters tracks who is present per district and per crew. Roster
// cardinality always matches the corresponding channel member set; both
// mutate in the same critical section under the hub's membership lock.
type rosters struct {
	districts map[string]map[string]struct{}
	crews     map[string]map[string]struct{}
}

func newRosters() *rosters {
	return &rosters{
		districts: make(map[string]map[string]struct{}),
		crews:     make(map[string]map[string]struct{}),
	}
}

func (r *rosters) districtJoin(districtID, userID string) {
	addMember(r.districts, districtID, userID)
}

func (r *rosters) districtLeave(districtID, userID string) {
	dropMember(r.districts, districtID, userID)
}

func (r *rosters) districtMembers(districtID string) []string {
	return memberList(r.districts, districtID)
}

// crewJoin adds the user and returns the roster size after the mutation.
func (r *rosters) crewJoin(crewID, userID string) int {
	addMember(r.crews, crewID, userID)
	return len(r.crews[crewID])
}

// crewLeave removes the user and returns the roster size after the
// mutation.
func (r *rosters) crewLeave(crewID, userID string) int {
	dropMember(r.crews, crewID, userID)
	return len(r.crews[crewID])
}

func (r *rosters) crewMembers(crewID string) []string {
	return memberList(r.crews, crewID)
}

func addMember(sets map[string]map[string]struct{}, key, userID string) {
	set := sets[key]
	if set == nil {
		set = make(map[string]struct{})
		sets[key] = set
	}
	set[userID] = struct{}{}
}

func dropMember(sets map[string]map[string]struct{}, key, userID string) {
	if set, ok := sets[key]; ok {
		delete(set, userID)
		if len(set) == 0 {
			delete(sets, key)
		}
	}
}

func memberList(sets map[string]map[string]struct{}, key string) []string {
	set := sets[key]
	if len(set) == 0 {
		return nil
	}
	members := make([]string, 0, len(set))
	for userID := range set {
		members = append(members, userID)
	}
	sort.Strings(members)
	return members
}
